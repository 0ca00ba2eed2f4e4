package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/schemavault/schemavault"
	"github.com/schemavault/schemavault/internal/log"
	"github.com/schemavault/schemavault/internal/mcp"
)

func stdioCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Start MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio.

This allows AI assistants to store and search table schemas directly.
Configuration is loaded from environment variables and .env file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(envFile)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")

	return cmd
}

func runStdio(envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol, so logs go to stderr.
	logger := log.NewWithWriter(os.Stderr, cfg.LogFormat(), cfg.LogLevel())

	logger.Info("starting MCP server",
		slog.String("version", version),
		slog.String("data_dir", cfg.DataDir()),
	)

	client, err := schemavault.New(
		schemavault.WithConfig(cfg),
		schemavault.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create schemavault client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close schemavault client", slog.Any("error", err))
		}
	}()

	mcpServer := mcp.NewServer(client.Catalog, version, logger)
	return mcpServer.ServeStdio()
}

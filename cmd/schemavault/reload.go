package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/schemavault/schemavault"
	"github.com/schemavault/schemavault/internal/log"
)

func reloadCmd() *cobra.Command {
	var (
		envFile string
		dataDir string
	)

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Crawl Unity Catalog and rebuild the index",
		Long: `Crawl the configured Databricks Unity Catalog workspace, embed any new
or changed table schemas, and persist the rebuilt index.

Requires DATABRICKS_HOST and DATABRICKS_TOKEN to be set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReload(cmd.Context(), envFile, dataDir)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.schemavault)")

	return cmd
}

func runReload(ctx context.Context, envFile, dataDir string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	cfg = applyOverrides(cfg, "", 0, dataDir)

	logger := log.Configure(cfg)

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

	if !client.HasSource() {
		return fmt.Errorf("no schema source configured: set DATABRICKS_HOST and DATABRICKS_TOKEN")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	stats, err := client.Reload(ctx)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	logger.Info("reload complete",
		slog.Int("added", stats.Added),
		slog.Int("updated", stats.Updated),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("skipped", stats.Skipped),
	)
	return nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/schemavault/schemavault"
	"github.com/schemavault/schemavault/infrastructure/api"
	"github.com/schemavault/schemavault/internal/log"
)

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
		dataDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP MCP server",
		Long: `Start the HTTP server hosting the MCP endpoint and health checks.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST                   Server host to bind to (default: 0.0.0.0)
  PORT                   Server port to listen on (default: 8000)
  DATA_DIR               Data directory (default: ~/.schemavault)
  LOG_LEVEL              Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT             Log format: pretty, json (default: pretty)
  INDEX_KIND             Vector index: bruteforce, hnsw (default: bruteforce)

  EMBEDDING_API_URL      OpenAI-compatible base URL (default: http://localhost:8000/v1)
  EMBEDDING_API_KEY      API key for the embedding endpoint
  EMBEDDING_MODEL        Embedding model (default: nomic-embed-text)
  EMBEDDING_DIMENSIONS   Embedding vector dimension (default: 768)
  EMBEDDING_TIMEOUT      Request timeout in seconds (default: 60)
  EMBEDDING_MAX_RETRIES  Retry attempts (default: 5)

  DATABRICKS_HOST        Databricks workspace URL (enables Unity Catalog reload)
  DATABRICKS_TOKEN       Databricks personal access token
  DATABRICKS_CATALOGS    Comma-separated catalogs to crawl (default: main)
  DATABRICKS_SCHEMAS     Comma-separated schemas to crawl (default: all)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile, host, port, dataDir)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8000)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.schemavault)")

	return cmd
}

func runServe(envFile, host string, port int, dataDir string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	cfg = applyOverrides(cfg, host, port, dataDir)

	logger := log.Configure(cfg)

	logger.Info("starting schemavault",
		slog.String("version", version),
		slog.String("addr", cfg.Addr()),
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

	// Refresh from Unity Catalog in the background so the server is
	// reachable immediately after restart.
	if client.HasSource() {
		go func() {
			stats, err := client.Reload(context.Background())
			if err != nil {
				logger.Error("unity catalog reload failed", slog.Any("error", err))
				return
			}
			logger.Info("unity catalog reload complete",
				slog.Int("added", stats.Added),
				slog.Int("updated", stats.Updated),
				slog.Int("unchanged", stats.Unchanged),
				slog.Int("skipped", stats.Skipped),
			)
		}()
	}

	apiServer := api.NewAPIServer(client.Catalog, version, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	if err := apiServer.ListenAndServe(cfg.Addr()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

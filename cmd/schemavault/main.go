// Package main is the entry point for the schemavault CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/schemavault/schemavault/internal/config"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schemavault",
		Short: "Semantic schema index server",
		Long:  `Schemavault stores database table schemas and finds them by semantic similarity, exposed over the Model Context Protocol.`,
	}

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(stdioCmd())
	cmd.AddCommand(reloadCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from .env file and environment variables.
func loadConfig(envFile string) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// applyOverrides applies command line flag overrides to the config.
func applyOverrides(cfg config.AppConfig, host string, port int, dataDir string) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}
	if dataDir != "" {
		opts = append(opts, config.WithDataDir(dataDir))
	}

	return cfg.Apply(opts...)
}

// Package cmd implements the authctl operator commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/bluewing/auth-core/config"
	"github.com/bluewing/auth-core/internal/observability"
	"github.com/bluewing/auth-core/repositories/postgres"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	// Version is set at build time
	Version = "0.1.0"

	// Global flags
	outputFormat string
	verbose      bool
)

var (
	okFmt  = color.New(color.FgGreen).SprintFunc()
	dimFmt = color.New(color.Faint).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "authctl",
	Short: "Operator CLI for the Bluewing auth service",
	Long: `authctl runs maintenance tasks against the auth database.

It reads the same environment as the server (DATABASE_URL, DB_*,
JWT_SIGNING_KEY, REFRESH_TOKEN_RETENTION, ...). Run "authctl sweep"
from cron to purge refresh tokens past the retention window.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case "table", "json", "yaml":
			return nil
		default:
			return fmt.Errorf("unknown output format %q: use table, json or yaml", outputFormat)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log database activity")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// render writes data as JSON or YAML, or calls table for the default format
func render(w io.Writer, data interface{}, table func(io.Writer) error) error {
	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case "yaml":
		out, err := yaml.Marshal(data)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return table(w)
	}
}

// environment is what the database commands operate on
type environment struct {
	cfg     *config.Config
	factory *postgres.RepositoryFactory
	logger  *zap.Logger
}

func (e *environment) Close() {
	_ = e.factory.Close()
	_ = e.logger.Sync()
}

// openEnvironment loads the configuration and connects to the database.
// Replaced in tests.
var openEnvironment = func(ctx context.Context) (*environment, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, err
	}

	level := "error"
	if verbose {
		level = "debug"
	}
	logger, err := observability.NewLogger(observability.LogConfig{Level: level, Format: "console"})
	if err != nil {
		return nil, err
	}

	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &environment{cfg: cfg, factory: factory, logger: logger}, nil
}

// Package cli wires the appointo commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appointo/internal/config"
	"appointo/internal/database"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "appointo",
		Short:         "Booking availability service: slot engine, booking API and client wizard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("APPOINTO_CONFIG_PATH"), "path to config.yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newSyncCatalogCmd(opts))
	root.AddCommand(newSlotsCmd(opts))
	root.AddCommand(newBookCmd(opts))
	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command with a context canceled on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *rootOptions) logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(o.logLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// load reads the config and builds a logger writing to stderr.
func (o *rootOptions) load() (*config.Config, zerolog.Logger, error) {
	logger := o.logger(os.Stderr)
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, logger, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger, nil
}

func openDB(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// withDefaultTimezone fills services without a time zone from the booking default.
func withDefaultTimezone(cat *config.CatalogConfig, tz string) {
	for i := range cat.Services {
		if cat.Services[i].Timezone == "" {
			cat.Services[i].Timezone = tz
		}
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "appointo %s (commit %s, built %s)\n", Version, CommitSHA, BuildDate)
		},
	}
}

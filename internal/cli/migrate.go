package cli

import (
	"fmt"

	"appointo/internal/config"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			db, err := openDB(cfg, &logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date: %s\n", db.Path())
			return nil
		},
	}
}

func newSyncCatalogCmd(opts *rootOptions) *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "sync-catalog",
		Short: "Load catalog.yaml into the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if catalogPath == "" {
				catalogPath = cfg.Catalog.Path
			}

			cat, err := config.LoadCatalog(catalogPath)
			if err != nil {
				return err
			}
			withDefaultTimezone(cat, cfg.Booking.DefaultTimezone)

			db, err := openDB(cfg, &logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.SyncCatalogFromConfig(cmd.Context(), cat); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog synced: %s\n", cat.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "catalog file (defaults to catalog.path from config)")
	return cmd
}

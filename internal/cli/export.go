package cli

import (
	"fmt"
	"os"

	"appointo/internal/export"

	"github.com/spf13/cobra"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		from, to string
		out      string
		toSheets bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export bookings of a date range to XLSX or Google Sheets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			start, end, err := export.ParseRange(from, to)
			if err != nil {
				return err
			}

			db, err := openDB(cfg, &logger)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			list, err := db.ListBookingsRange(ctx, start, end)
			if err != nil {
				return err
			}
			rows, err := export.BuildRows(ctx, db, list)
			if err != nil {
				return err
			}

			if toSheets {
				api, err := export.NewSheetsAPI(ctx, cfg.Sheets.CredentialsFile)
				if err != nil {
					return err
				}
				sink := export.NewSheetsSink(api, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, logger)
				if err := sink.Replace(ctx, rows); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d bookings to sheet %q\n", len(rows), cfg.Sheets.SheetName)
				return nil
			}

			if out == "" {
				out = fmt.Sprintf("bookings_%s_%s.xlsx", from, to)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := export.WriteBookingsXLSX(f, rows); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d bookings to %s\n", len(rows), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	cmd.Flags().BoolVar(&toSheets, "sheets", false, "replace the configured Google Sheet instead of writing a file")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

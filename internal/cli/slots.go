package cli

import (
	"fmt"
	"text/tabwriter"

	"appointo/internal/booking"
	"appointo/internal/client"
	"appointo/internal/grpcapi"
	"appointo/internal/slots"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newSlotsCmd(opts *rootOptions) *cobra.Command {
	var (
		req      slots.Request
		grpcAddr string
	)

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List available slots of an employee for an offer on a date",
		Example: "  appointo slots --offer 3 --employee 7 --date 2026-03-16\n" +
			"  appointo slots --offer 3 --employee 7 --date 2026-03-16 --booking 12 --grpc localhost:9091",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}

			var fetcher booking.SlotFetcher = client.NewClient(cfg.Client.BaseURL, cfg.Client.APIKey)
			if grpcAddr != "" {
				conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
				if err != nil {
					return fmt.Errorf("grpc connect: %w", err)
				}
				defer conn.Close()
				fetcher = grpcapi.NewClient(conn)
			}

			list, err := fetcher.GetSlots(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "no available slots")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tDATETIME")
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%s\n", s.Time, s.Datetime)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int64Var(&req.OfferID, "offer", 0, "offer id")
	cmd.Flags().Int64Var(&req.EmployeeID, "employee", 0, "employee id")
	cmd.Flags().StringVar(&req.Date, "date", "", "date in the service time zone (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&req.BookingID, "booking", 0, "booking being edited")
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "query the gRPC endpoint at this address instead of HTTP")
	return cmd
}

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newBalanceCommand(opts *options) *cobra.Command {
	var (
		sourceID int64
		asOfRaw  string
	)

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Print the balance of one source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var asOf *time.Time
			if asOfRaw != "" {
				t, err := time.Parse(time.RFC3339, asOfRaw)
				if err != nil {
					return fmt.Errorf("--as-of must be RFC 3339: %w", err)
				}
				asOf = &t
			}

			return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				balance, err := s.ledger.Sources.Balance(ctx, sourceID, asOf)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), balance.StringFixed(2))
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&sourceID, "source", 0, "source id (required)")
	_ = cmd.MarkFlagRequired("source")
	cmd.Flags().StringVar(&asOfRaw, "as-of", "", "only count entries up to this RFC 3339 time")
	return cmd
}

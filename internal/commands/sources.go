package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSourcesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List active sources with their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				sources, err := s.ledger.Sources.ListSources(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tINITIAL\tBALANCE")
				for _, b := range sources {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", b.ID, b.Name, b.InitialBalance.StringFixed(2), b.Balance.StringFixed(2))
				}
				return tw.Flush()
			})
		},
	}
}

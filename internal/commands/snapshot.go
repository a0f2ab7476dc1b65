package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dinero/internal/worker"
)

func newSnapshotCommand(opts *options) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Recompute the balance snapshot of every active source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				sources, err := s.repo.ListSources(ctx)
				if err != nil {
					return err
				}
				w := worker.NewSnapshotWorker(s.repo, s.deps.Projector, concurrency)
				if err := w.RefreshAll(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %d snapshots\n", len(sources))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", opts.cfg.SnapshotConcurrency, "sources refreshed in parallel")
	return cmd
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"dinero/internal/core"
	"dinero/internal/services"
)

type seedSource struct {
	name    string
	initial string
}

type seedTransaction struct {
	key         string
	source      string
	typ         core.TransactionType
	description string
	amount      string
	category    string
}

var (
	seedSources = []seedSource{
		{"Efectivo", "500"},
		{"Cuenta Bancaria", "2500"},
	}
	seedTransactions = []seedTransaction{
		{"seed-salario", "Cuenta Bancaria", core.Income, "Salario", "1500", "Salario"},
		{"seed-alquiler", "Cuenta Bancaria", core.Expense, "Alquiler", "800", "Vivienda"},
		{"seed-cafe", "Efectivo", core.Expense, "Café", "5", "Comida"},
	}
)

func newInitDBCommand(opts *options) *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create or migrate the ledger database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Database ready at %s (schema v%d)\n", opts.dbPath, s.repo.SchemaVersion())
				if !seed {
					return nil
				}
				created, err := runSeed(ctx, s.ledger, time.Now().UTC())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d sources and %d transactions\n", created.sources, created.transactions)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "insert sample sources and transactions")
	return cmd
}

type seedResult struct {
	sources      int
	transactions int
}

// runSeed inserts the sample data. Re-running it is harmless: existing
// sources are reused and transactions carry fixed idempotency keys.
func runSeed(ctx context.Context, l *services.Ledger, now time.Time) (seedResult, error) {
	var res seedResult

	ids := make(map[string]int64, len(seedSources))
	for _, ss := range seedSources {
		src, err := l.Sources.CreateSource(ctx, ss.name, decimal.RequireFromString(ss.initial))
		if err == nil {
			res.sources++
			ids[ss.name] = src.ID
			continue
		}
		if !errors.Is(err, core.ErrDuplicateSource) {
			return res, fmt.Errorf("seed source %q: %w", ss.name, err)
		}
	}

	if len(ids) < len(seedSources) {
		existing, err := l.Sources.ListSources(ctx)
		if err != nil {
			return res, fmt.Errorf("list sources: %w", err)
		}
		for _, b := range existing {
			if _, ok := ids[b.Name]; !ok {
				ids[b.Name] = b.ID
			}
		}
	}

	for _, st := range seedTransactions {
		id, ok := ids[st.source]
		if !ok {
			return res, fmt.Errorf("seed transaction %q: source %q is archived", st.key, st.source)
		}
		before, err := l.Sources.ListTransactions(ctx, id)
		if err != nil {
			return res, err
		}
		tx, err := l.Transactions.CreateTransaction(ctx, services.CreateTransactionRequest{
			Type:           st.typ,
			Description:    st.description,
			Amount:         decimal.RequireFromString(st.amount),
			Category:       st.category,
			SourceID:       id,
			OccurredAt:     now,
			IdempotencyKey: st.key,
		})
		if err != nil {
			return res, fmt.Errorf("seed transaction %q: %w", st.key, err)
		}
		if !containsEntry(before, tx.ID) {
			res.transactions++
		}
	}
	return res, nil
}

func containsEntry(entries []core.Transaction, id int64) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"dinero/internal/core"
)

const (
	recentTransactionsLimit = 10
	chartMonths             = 6
	monthLabelLayout        = "Jan 2006"
)

// DashboardService aggregates the figures served to the dashboard. Every
// call recomputes from the ledger.
type DashboardService struct {
	deps    Deps
	sources *SourceService
}

func NewDashboardService(d Deps) *DashboardService {
	d = d.withDefaults()
	return &DashboardService{deps: d, sources: NewSourceService(d)}
}

// Dashboard builds the summary, charts and recent list as seen at now. The
// active sources stay locked while the ledger is read, so balances and
// totals never show one leg of a transfer without the other.
func (s *DashboardService) Dashboard(ctx context.Context, now time.Time) (core.DashboardData, error) {
	sources, unlock, err := s.sources.lockActive(ctx)
	if err != nil {
		return core.DashboardData{}, err
	}
	defer unlock()

	var (
		balances []core.SourceBalance
		recent   []core.Transaction
		all      []core.Transaction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balances, err = s.sources.balances(gctx, sources)
		return err
	})
	g.Go(func() error {
		storeCtx, cancel := s.deps.storeCtx(gctx)
		defer cancel()
		var err error
		recent, err = s.deps.Store.ListTransactions(storeCtx, core.TransactionFilter{Limit: recentTransactionsLimit})
		if err != nil {
			return fmt.Errorf("list recent transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		storeCtx, cancel := s.deps.storeCtx(gctx)
		defer cancel()
		var err error
		all, err = s.deps.Store.ListTransactions(storeCtx, core.TransactionFilter{})
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.DashboardData{}, err
	}

	data := core.DashboardData{
		Summary:            summarize(balances, all),
		RecentTransactions: recent,
		Charts: core.Charts{
			IncomeVsExpense:     incomeVsExpense(all, now),
			ExpenseDistribution: expenseDistribution(all),
		},
	}
	if data.RecentTransactions == nil {
		data.RecentTransactions = []core.Transaction{}
	}
	return data, nil
}

// summarize totals balances over active sources and income/expense over
// all entries except transfer legs.
func summarize(balances []core.SourceBalance, entries []core.Transaction) core.Summary {
	sum := core.Summary{
		TotalBalance: decimal.Zero,
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
	}
	for _, b := range balances {
		sum.TotalBalance = sum.TotalBalance.Add(b.Balance)
	}
	for _, e := range entries {
		if e.IsTransferLeg() {
			continue
		}
		switch e.Type {
		case core.Income:
			sum.TotalIncome = sum.TotalIncome.Add(e.Amount)
		case core.Expense:
			sum.TotalExpense = sum.TotalExpense.Add(e.Amount)
		}
	}
	return sum
}

// incomeVsExpense buckets entries into the chartMonths calendar months
// ending with the month of now, oldest first, in UTC.
func incomeVsExpense(entries []core.Transaction, now time.Time) core.IncomeVsExpense {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(chartMonths - 1), 0)

	out := core.IncomeVsExpense{
		Labels:  make([]string, chartMonths),
		Income:  make([]decimal.Decimal, chartMonths),
		Expense: make([]decimal.Decimal, chartMonths),
	}
	for i := 0; i < chartMonths; i++ {
		out.Labels[i] = first.AddDate(0, i, 0).Format(monthLabelLayout)
		out.Income[i] = decimal.Zero
		out.Expense[i] = decimal.Zero
	}

	for _, e := range entries {
		if e.IsTransferLeg() {
			continue
		}
		at := e.OccurredAt.UTC()
		idx := (at.Year()-first.Year())*12 + int(at.Month()) - int(first.Month())
		if idx < 0 || idx >= chartMonths {
			continue
		}
		switch e.Type {
		case core.Income:
			out.Income[idx] = out.Income[idx].Add(e.Amount)
		case core.Expense:
			out.Expense[idx] = out.Expense[idx].Add(e.Amount)
		}
	}
	return out
}

// expenseDistribution sums expenses per category, largest first.
func expenseDistribution(entries []core.Transaction) core.ExpenseDistribution {
	totals := make(map[string]decimal.Decimal)
	for _, e := range entries {
		if e.Type != core.Expense || e.IsTransferLeg() {
			continue
		}
		totals[e.Category] = totals[e.Category].Add(e.Amount)
	}

	rows := make([]core.CategoryAmount, 0, len(totals))
	for name, amount := range totals {
		rows = append(rows, core.CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].Amount.Cmp(rows[j].Amount); c != 0 {
			return c > 0
		}
		return rows[i].Name < rows[j].Name
	})

	out := core.ExpenseDistribution{
		Labels: make([]string, len(rows)),
		Data:   make([]decimal.Decimal, len(rows)),
	}
	for i, r := range rows {
		out.Labels[i] = r.Name
		out.Data[i] = r.Amount
	}
	return out
}

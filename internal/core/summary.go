package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// Summary holds the headline dashboard figures. Transfer legs are excluded
// from the income and expense totals.
type Summary struct {
	TotalBalance decimal.Decimal `json:"total_balance"`
	TotalIncome  decimal.Decimal `json:"total_income"`
	TotalExpense decimal.Decimal `json:"total_expense"`
}

// IncomeVsExpense is a month-by-month series, oldest month first.
type IncomeVsExpense struct {
	Labels  []string          `json:"labels"`
	Income  []decimal.Decimal `json:"income"`
	Expense []decimal.Decimal `json:"expense"`
}

// ExpenseDistribution is the expense total per category.
type ExpenseDistribution struct {
	Labels []string          `json:"labels"`
	Data   []decimal.Decimal `json:"data"`
}

type Charts struct {
	IncomeVsExpense     IncomeVsExpense     `json:"income_vs_expense"`
	ExpenseDistribution ExpenseDistribution `json:"expense_distribution"`
}

// DashboardData is the aggregate served to the dashboard.
type DashboardData struct {
	Summary            Summary       `json:"summary"`
	Charts             Charts        `json:"charts"`
	RecentTransactions []Transaction `json:"recent_transactions"`
}

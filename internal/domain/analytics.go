package domain

import "github.com/shopspring/decimal"

// ============================================================
// Financial Summary (GET /v1/customers/{id}/financial/summary)
// ============================================================

// FinancialSummary is the dashboard header: cash flow, spending and trends.
type FinancialSummary struct {
	CustomerID    string           `json:"customerId"`
	Period        *FinancialPeriod `json:"period"`
	CashFlow      *CashFlowSummary `json:"cashFlow"`
	Spending      *SpendingDetail  `json:"spending"`
	TopCategories []TopCategory    `json:"topCategories"`
	MonthlyTrend  []MonthlyTrend   `json:"monthlyTrend"`
}

// FinancialPeriod is the time range for the financial summary.
type FinancialPeriod struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

// CashFlowSummary shows income vs expenses.
type CashFlowSummary struct {
	TotalIncome              decimal.Decimal `json:"totalIncome"`
	TotalExpenses            decimal.Decimal `json:"totalExpenses"`
	NetCashFlow              decimal.Decimal `json:"netCashFlow"`
	ComparedToPreviousPeriod float64         `json:"comparedToPreviousPeriod"`
}

// SpendingDetail shows spending analytics.
type SpendingDetail struct {
	TotalSpent               decimal.Decimal `json:"totalSpent"`
	AverageDaily             decimal.Decimal `json:"averageDaily"`
	HighestExpense           *HighestExpense `json:"highestExpense,omitempty"`
	ComparedToPreviousPeriod float64         `json:"comparedToPreviousPeriod"`
}

// HighestExpense represents the highest single expense.
type HighestExpense struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Category    string          `json:"category"`
}

// Trend values for TopCategory.
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// TopCategory is a spending category with trend.
type TopCategory struct {
	Category         string          `json:"category"`
	Amount           decimal.Decimal `json:"amount"`
	Percentage       float64         `json:"percentage"`
	TransactionCount int             `json:"transactionCount"`
	Trend            string          `json:"trend"` // up, down, stable
}

// MonthlyTrend shows monthly income/expenses.
type MonthlyTrend struct {
	Month    string          `json:"month"`
	Label    string          `json:"label"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Balance  decimal.Decimal `json:"balance"`
}

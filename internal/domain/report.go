package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Chart report structures
// ============================================================

// MetricSet maps a metric name ("income", "expenses" or a category) to its sum.
type MetricSet map[string]decimal.Decimal

// Get returns the named metric, or zero when it was never accumulated.
func (m MetricSet) Get(name string) decimal.Decimal {
	if v, ok := m[name]; ok {
		return v
	}
	return decimal.Zero
}

// Add accumulates amount into the named metric.
func (m MetricSet) Add(name string, amount decimal.Decimal) {
	m[name] = m.Get(name).Add(amount)
}

// Clone returns an independent copy.
func (m MetricSet) Clone() MetricSet {
	out := make(MetricSet, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Bucket is one grain-aligned slot of a chart series.
type Bucket struct {
	Start   time.Time `json:"start"`
	Label   string    `json:"label"`
	Metrics MetricSet `json:"metrics"`
}

// CategoryTotal is the spend of one category over the whole input.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// RankedCategories holds the top-N categories (descending) and the folded remainder.
// Other is nil when there was nothing left to fold.
type RankedCategories struct {
	Top   []CategoryTotal `json:"top"`
	Other *CategoryTotal  `json:"other,omitempty"`
}

// Names returns the ranked category names followed by the overflow name, if any.
func (r RankedCategories) Names() []string {
	names := make([]string, 0, len(r.Top)+1)
	for _, ct := range r.Top {
		names = append(names, ct.Category)
	}
	if r.Other != nil {
		names = append(names, r.Other.Category)
	}
	return names
}

// Contains reports whether category is one of the top entries.
func (r RankedCategories) Contains(category string) bool {
	for _, ct := range r.Top {
		if ct.Category == category {
			return true
		}
	}
	return false
}

// CashflowTotals sums the whole report window.
type CashflowTotals struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
}

// CashflowReport is the chart-ready output for one customer and window.
type CashflowReport struct {
	ID             string           `json:"id,omitempty"`
	CustomerID     string           `json:"customerId,omitempty"`
	Period         string           `json:"period,omitempty"`
	Grain          TimeGrain        `json:"grain"`
	From           *time.Time       `json:"from,omitempty"`
	To             *time.Time       `json:"to,omitempty"`
	Totals         CashflowTotals   `json:"totals"`
	Buckets        []Bucket         `json:"buckets"`
	Categories     RankedCategories `json:"categories"`
	CategorySeries []Bucket         `json:"categorySeries"`
	GeneratedAt    time.Time        `json:"generatedAt"`

	// OrphanCount counts transactions no bucket claimed; always zero unless something is broken.
	OrphanCount int `json:"-"`
}

// CategoryReport is the category-only projection of a CashflowReport.
type CategoryReport struct {
	CustomerID string           `json:"customerId"`
	Grain      TimeGrain        `json:"grain"`
	Categories RankedCategories `json:"categories"`
	Series     []Bucket         `json:"series"`
}

// ReportRequest describes which window and shape a caller wants.
type ReportRequest struct {
	Period        string
	Grain         TimeGrain
	TopN          int
	ReferenceDate time.Time
}

// PreviewRequest is the body of POST /v1/reports/preview.
type PreviewRequest struct {
	Transactions []Transaction `json:"transactions"`
	Grain        string        `json:"grain,omitempty"`
	TopN         int           `json:"topN,omitempty"`
	From         *time.Time    `json:"from,omitempty"`
	To           *time.Time    `json:"to,omitempty"`
}

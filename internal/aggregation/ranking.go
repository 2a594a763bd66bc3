package aggregation

import (
	"slices"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	// DefaultTopN is used when a caller asks for zero or fewer categories.
	DefaultTopN = 5

	// CategoryOther absorbs every category ranked below the top N.
	CategoryOther = "Other"

	// CategoryOtherRest names the fold when a real category called Other
	// is among the top N.
	CategoryOtherRest = "Other (rest)"

	// CategoryUncategorized groups expenses with a blank category.
	CategoryUncategorized = "Uncategorized"
)

// RankCategories totals expenses per category and keeps the topN largest.
// Ties keep the order in which categories were first seen in txns. When more
// than topN categories exist, the remainder is folded into Other.
func RankCategories(txns []domain.Transaction, topN int) domain.RankedCategories {
	if topN <= 0 {
		topN = DefaultTopN
	}

	totals := make(map[string]decimal.Decimal)
	var order []string
	for _, tx := range txns {
		if !tx.IsExpense() {
			continue
		}
		name := tx.CategoryOrDefault(CategoryUncategorized)
		sum, seen := totals[name]
		if !seen {
			order = append(order, name)
		}
		totals[name] = sum.Add(tx.Amount)
	}

	ranked := make([]domain.CategoryTotal, 0, len(order))
	for _, name := range order {
		ranked = append(ranked, domain.CategoryTotal{Category: name, Total: totals[name]})
	}
	slices.SortStableFunc(ranked, func(a, b domain.CategoryTotal) int {
		return b.Total.Cmp(a.Total)
	})

	if len(ranked) <= topN {
		return domain.RankedCategories{Top: ranked}
	}

	rest := decimal.Zero
	for _, ct := range ranked[topN:] {
		rest = rest.Add(ct.Total)
	}
	top := ranked[:topN:topN]
	return domain.RankedCategories{
		Top:   top,
		Other: &domain.CategoryTotal{Category: foldName(top), Total: rest},
	}
}

// foldName picks a name for the folded remainder that no top category uses.
func foldName(top []domain.CategoryTotal) string {
	taken := make(map[string]bool, len(top))
	for _, ct := range top {
		taken[ct.Category] = true
	}
	name := CategoryOther
	if taken[name] {
		name = CategoryOtherRest
	}
	for taken[name] {
		name += "+"
	}
	return name
}

// SeriesByCategory spreads expenses over copies of buckets, one metric per
// ranked category plus the fold when ranked carries it. Expenses outside the
// top categories land in the fold, keyed by ranked.Other.Category. Expenses
// without a bucket are returned.
func SeriesByCategory(txns []domain.Transaction, buckets []domain.Bucket, grain domain.TimeGrain, ranked domain.RankedCategories) ([]domain.Bucket, []domain.Transaction) {
	names := ranked.Names()
	out := make([]domain.Bucket, len(buckets))
	for i, b := range buckets {
		m := make(domain.MetricSet, len(names))
		for _, name := range names {
			m[name] = decimal.Zero
		}
		out[i] = domain.Bucket{Start: b.Start, Label: b.Label, Metrics: m}
	}

	top := make(map[string]struct{}, len(ranked.Top))
	for _, ct := range ranked.Top {
		top[ct.Category] = struct{}{}
	}

	fold := CategoryOther
	if ranked.Other != nil {
		fold = ranked.Other.Category
	}

	idx := newBucketIndex(out, grain)
	var orphans []domain.Transaction
	for _, tx := range txns {
		if !tx.IsExpense() {
			continue
		}
		i, ok := idx.find(tx.OccurredAt)
		if !ok {
			orphans = append(orphans, tx)
			continue
		}
		name := tx.CategoryOrDefault(CategoryUncategorized)
		if _, ok := top[name]; !ok {
			name = fold
		}
		out[i].Metrics.Add(name, tx.Amount)
	}
	return out, orphans
}

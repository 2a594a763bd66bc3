package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/aggregation"
	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// trendTolerance is the relative change under which a category counts as stable.
var trendTolerance = decimal.NewFromFloat(0.05)

var monthLabels = [...]string{"Jan", "Fev", "Mar", "Abr", "Mai", "Jun", "Jul", "Ago", "Set", "Out", "Nov", "Dez"}

// ============================================================
// Financial Summary (aggregated view for the frontend)
// ============================================================

// GetFinancialSummary returns cash flow, spending, top categories and the
// monthly trend for period, compared against the period right before it.
func (s *ReportService) GetFinancialSummary(ctx context.Context, customerID, period string, ref time.Time) (*domain.FinancialSummary, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.GetFinancialSummary")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID), attribute.String("report.period", period))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("financial_summary", time.Since(start)) }()

	if strings.TrimSpace(customerID) == "" {
		return nil, &domain.ErrValidation{Field: "customerId", Message: "required"}
	}
	spec, err := resolvePeriod(period, s.referenceDate(ref), s.Location())
	if err != nil {
		return nil, err
	}

	var current, previous []domain.Transaction
	err = s.bulkhead.Do(ctx, func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			current, err = s.fetch(gctx, customerID, spec.Window)
			return err
		})
		if spec.previous != nil {
			g.Go(func() error {
				var err error
				previous, err = s.fetch(gctx, customerID, spec.previous)
				return err
			})
		}
		return g.Wait()
	})
	if err != nil {
		s.metrics.IncrRequest("error")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.ErrTimeout{Operation: "financial summary"}
		}
		return nil, fmt.Errorf("financial summary: %w", err)
	}

	summary, err := s.summarize(customerID, spec, current, previous)
	if err != nil {
		s.metrics.IncrRequest("error")
		return nil, err
	}
	s.metrics.IncrRequest("success")
	return summary, nil
}

func (s *ReportService) summarize(customerID string, spec periodSpec, current, previous []domain.Transaction) (*domain.FinancialSummary, error) {
	report, err := s.buildStored(customerID, current, aggregation.Request{Grain: domain.GrainMonth, Window: spec.Window})
	if err != nil {
		return nil, err
	}

	prevTotals := domain.CashflowTotals{}
	var prevInWindow []domain.Transaction
	if spec.previous != nil {
		prevReport, err := s.buildStored(customerID, previous, aggregation.Request{Grain: domain.GrainMonth, Window: spec.previous})
		if err != nil {
			return nil, err
		}
		prevTotals = prevReport.Totals
		prevInWindow = s.inWindow(previous, spec.previous)
	}

	txns := s.inWindow(current, spec.Window)
	totals := report.Totals

	summary := &domain.FinancialSummary{
		CustomerID: customerID,
		Period:     periodOf(spec),
		CashFlow: &domain.CashFlowSummary{
			TotalIncome:              totals.Income,
			TotalExpenses:            totals.Expenses,
			NetCashFlow:              totals.Net,
			ComparedToPreviousPeriod: percentChange(totals.Net, prevTotals.Net),
		},
		Spending: &domain.SpendingDetail{
			TotalSpent:               totals.Expenses,
			AverageDaily:             averageDaily(totals.Expenses, spec, txns),
			HighestExpense:           highestExpense(txns),
			ComparedToPreviousPeriod: percentChange(totals.Expenses, prevTotals.Expenses),
		},
		TopCategories: topCategories(txns, prevInWindow, report.Categories, totals.Expenses),
		MonthlyTrend:  monthlyTrend(report.Buckets),
	}

	s.logger.Info("financial summary built",
		zap.String("customer_id", customerID),
		zap.String("period", spec.Name),
		zap.Int("transactions", len(txns)),
	)
	return summary, nil
}

// inWindow returns txns inside w, moved into the report location.
func (s *ReportService) inWindow(txns []domain.Transaction, w *aggregation.Window) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(txns))
	for _, tx := range txns {
		tx.OccurredAt = tx.OccurredAt.In(s.Location())
		if w != nil && !w.Contains(tx.OccurredAt) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func periodOf(spec periodSpec) *domain.FinancialPeriod {
	p := &domain.FinancialPeriod{Label: spec.Label}
	if spec.Window != nil {
		p.From = spec.Window.From.Format(dateLayout)
		p.To = spec.Window.To.Format(dateLayout)
	}
	return p
}

// percentChange is the change from prev to cur in percent, two decimals.
// Zero when there is nothing to compare against.
func percentChange(cur, prev decimal.Decimal) float64 {
	if prev.IsZero() {
		return 0
	}
	return cur.Sub(prev).Div(prev.Abs()).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

func averageDaily(spent decimal.Decimal, spec periodSpec, txns []domain.Transaction) decimal.Decimal {
	days := spec.Days()
	if days == 0 {
		lo, hi, ok := aggregation.Bounds(txns)
		if !ok {
			return decimal.Zero
		}
		days = int(aggregation.AlignToGrainStart(hi, domain.GrainDay).Sub(aggregation.AlignToGrainStart(lo, domain.GrainDay)).Round(24*time.Hour)/(24*time.Hour)) + 1
	}
	return spent.Div(decimal.NewFromInt(int64(days))).Round(2)
}

func highestExpense(txns []domain.Transaction) *domain.HighestExpense {
	var top *domain.Transaction
	for i := range txns {
		tx := &txns[i]
		if !tx.IsExpense() {
			continue
		}
		if top == nil || tx.Amount.GreaterThan(top.Amount) {
			top = tx
		}
	}
	if top == nil {
		return nil
	}
	return &domain.HighestExpense{
		Description: top.Description,
		Amount:      top.Amount,
		Date:        top.OccurredAt.Format(dateLayout),
		Category:    top.CategoryOrDefault(aggregation.CategoryUncategorized),
	}
}

func topCategories(txns, previous []domain.Transaction, ranked domain.RankedCategories, spent decimal.Decimal) []domain.TopCategory {
	fold := aggregation.CategoryOther
	if ranked.Other != nil {
		fold = ranked.Other.Category
	}
	counts := make(map[string]int)
	for _, tx := range txns {
		if !tx.IsExpense() {
			continue
		}
		name := tx.CategoryOrDefault(aggregation.CategoryUncategorized)
		if !ranked.Contains(name) {
			name = fold
		}
		counts[name]++
	}

	prev := make(map[string]decimal.Decimal)
	for _, ct := range aggregation.RankCategories(previous, len(previous)+1).Top {
		prev[ct.Category] = ct.Total
	}

	entries := ranked.Top
	if ranked.Other != nil {
		entries = append(entries[:len(entries):len(entries)], *ranked.Other)
	}

	out := make([]domain.TopCategory, 0, len(entries))
	for i, ct := range entries {
		pct := float64(0)
		if spent.IsPositive() {
			pct = ct.Total.Div(spent).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		}
		// The folded remainder has no single category to compare against.
		trend := domain.TrendStable
		if i < len(ranked.Top) {
			trend = trendOf(ct.Total, prev[ct.Category])
		}
		out = append(out, domain.TopCategory{
			Category:         ct.Category,
			Amount:           ct.Total,
			Percentage:       pct,
			TransactionCount: counts[ct.Category],
			Trend:            trend,
		})
	}
	return out
}

func trendOf(cur, prev decimal.Decimal) string {
	if prev.IsZero() {
		if cur.IsPositive() {
			return domain.TrendUp
		}
		return domain.TrendStable
	}
	change := cur.Sub(prev).Div(prev)
	switch {
	case change.GreaterThan(trendTolerance):
		return domain.TrendUp
	case change.LessThan(trendTolerance.Neg()):
		return domain.TrendDown
	}
	return domain.TrendStable
}

func monthlyTrend(buckets []domain.Bucket) []domain.MonthlyTrend {
	out := make([]domain.MonthlyTrend, 0, len(buckets))
	for _, b := range buckets {
		income := b.Metrics.Get(aggregation.MetricIncome)
		expenses := b.Metrics.Get(aggregation.MetricExpenses)
		out = append(out, domain.MonthlyTrend{
			Month:    b.Start.Format("2006-01"),
			Label:    fmt.Sprintf("%s/%d", monthLabels[b.Start.Month()-1], b.Start.Year()),
			Income:   income,
			Expenses: expenses,
			Balance:  income.Sub(expenses),
		})
	}
	return out
}

package aggregation

import (
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/shopspring/decimal"

	"go.uber.org/zap"
)

// Window restricts a build to [From, To) and spans the buckets over it,
// so leading and trailing periods without data still appear.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls in [From, To).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Request shapes one build. A zero Grain lets the engine choose; a TopN of
// zero falls back to the engine default.
type Request struct {
	Grain  domain.TimeGrain
	TopN   int
	Window *Window
}

// Engine runs the full pipeline: grain, buckets, totals, ranked categories.
// It holds only configuration and is safe for concurrent use.
type Engine struct {
	logger      *zap.Logger
	loc         *time.Location
	maxBuckets  int
	defaultTopN int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the zone calendar periods are computed in. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithMaxBuckets caps the bucket count of a build. Engines are uncapped
// unless this is set; n <= 0 removes the cap.
func WithMaxBuckets(n int) Option {
	return func(e *Engine) { e.maxBuckets = n }
}

// WithDefaultTopN sets the category count used when a request leaves TopN unset.
func WithDefaultTopN(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.defaultTopN = n
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:      logger,
		loc:         time.UTC,
		defaultTopN: DefaultTopN,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the zone the engine buckets in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Build aggregates txns into a report. Malformed transactions fail the whole
// build with *domain.ErrValidation; an empty input is not an error.
func (e *Engine) Build(txns []domain.Transaction, req Request) (*domain.CashflowReport, error) {
	if req.Grain != domain.GrainUnspecified && !req.Grain.Valid() {
		return nil, &domain.ErrValidation{Field: "grain", Message: fmt.Sprintf("unknown grain %q", string(req.Grain))}
	}

	var window *Window
	if req.Window != nil {
		w := Window{From: req.Window.From.In(e.loc), To: req.Window.To.In(e.loc)}
		if !w.To.After(w.From) {
			return nil, &domain.ErrValidation{Field: "window", Message: "to must be after from"}
		}
		window = &w
	}

	selected, err := e.normalise(txns, window)
	if err != nil {
		return nil, err
	}

	topN := req.TopN
	if topN <= 0 {
		topN = e.defaultTopN
	}

	report := &domain.CashflowReport{
		Grain:          SelectGrain(nil, req.Grain),
		Totals:         domain.CashflowTotals{Income: decimal.Zero, Expenses: decimal.Zero, Net: decimal.Zero},
		Buckets:        []domain.Bucket{},
		Categories:     domain.RankedCategories{Top: []domain.CategoryTotal{}},
		CategorySeries: []domain.Bucket{},
	}

	var lo, hi time.Time
	if window != nil {
		from, to := window.From, window.To
		report.From, report.To = &from, &to
		lo, hi = window.From, window.To.Add(-time.Nanosecond)
	} else {
		var ok bool
		if lo, hi, ok = Bounds(selected); !ok {
			return report, nil
		}
	}

	grain := req.Grain
	if grain == domain.GrainUnspecified {
		grain = grainForSpan(lo, hi)
	}
	if n := BucketCount(lo, hi, grain); e.maxBuckets > 0 && n > e.maxBuckets {
		return nil, &domain.ErrValidation{
			Field:   "grain",
			Message: fmt.Sprintf("%d %s buckets exceed the limit of %d; choose a coarser grain or a shorter period", n, grain, e.maxBuckets),
		}
	}

	buckets := GenerateBuckets(lo, hi, grain)
	aggregated, orphans := Aggregate(selected, buckets, grain)
	if len(orphans) > 0 {
		ids := make([]string, 0, len(orphans))
		for _, tx := range orphans {
			ids = append(ids, tx.ID)
		}
		e.logger.Error("transactions matched no bucket",
			zap.String("grain", string(grain)),
			zap.Int("buckets", len(buckets)),
			zap.Strings("transaction_ids", ids),
		)
	}

	ranked := RankCategories(selected, topN)
	// Same buckets and index as Aggregate: series orphans are a subset of
	// the expense orphans already logged above.
	series, _ := SeriesByCategory(selected, buckets, grain, ranked)

	report.Grain = grain
	report.Buckets = aggregated
	report.Categories = ranked
	report.CategorySeries = series
	report.Totals = totalsOf(aggregated)
	report.OrphanCount = len(orphans)
	return report, nil
}

// normalise validates every transaction, moves it into the engine location
// and drops what falls outside window.
func (e *Engine) normalise(txns []domain.Transaction, window *Window) ([]domain.Transaction, error) {
	out := make([]domain.Transaction, 0, len(txns))
	for i, tx := range txns {
		if err := tx.Validate(); err != nil {
			var ve *domain.ErrValidation
			if errors.As(err, &ve) {
				return nil, &domain.ErrValidation{
					Field:   fmt.Sprintf("transactions[%d].%s", i, ve.Field),
					Message: ve.Message,
				}
			}
			return nil, err
		}
		tx.OccurredAt = tx.OccurredAt.In(e.loc)
		if window != nil && !window.Contains(tx.OccurredAt) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func totalsOf(buckets []domain.Bucket) domain.CashflowTotals {
	income, expenses := decimal.Zero, decimal.Zero
	for _, b := range buckets {
		income = income.Add(b.Metrics.Get(MetricIncome))
		expenses = expenses.Add(b.Metrics.Get(MetricExpenses))
	}
	return domain.CashflowTotals{Income: income, Expenses: expenses, Net: income.Sub(expenses)}
}

// Package service implements the report use cases on top of the
// aggregation engine and the transactions store.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/aggregation"
	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/observability"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/resilience"
	"github.com/boddenberg/cashflow-reports-bfa/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var reportTracer = otel.Tracer("service/reports")

const defaultBuildTimeout = 30 * time.Second

// ReportService builds cashflow, category and summary reports for customers.
type ReportService struct {
	store    port.TransactionsFetcher
	engine   *aggregation.Engine
	cache    port.Cache[*domain.CashflowReport]
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time

	buildTimeout time.Duration
}

// NewReportService creates a ReportService.
func NewReportService(
	store port.TransactionsFetcher,
	engine *aggregation.Engine,
	cache port.Cache[*domain.CashflowReport],
	bulkhead *resilience.Bulkhead,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		store:    store,
		engine:   engine,
		cache:    cache,
		bulkhead: bulkhead,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,

		buildTimeout: defaultBuildTimeout,
	}
}

// WithBuildTimeout bounds a shared report build. The build does not follow
// the cancellation of the request that started it.
func (s *ReportService) WithBuildTimeout(d time.Duration) *ReportService {
	if d > 0 {
		s.buildTimeout = d
	}
	return s
}

// WithClock replaces the clock used for default reference dates and timestamps.
func (s *ReportService) WithClock(now func() time.Time) *ReportService {
	s.now = now
	return s
}

// Location returns the zone reports are bucketed in.
func (s *ReportService) Location() *time.Location {
	return s.engine.Location()
}

// ============================================================
// Cashflow report
// ============================================================

// GetCashflowReport returns the bucketed income/expense report for a customer.
// Identical requests within the cache TTL share one build.
func (s *ReportService) GetCashflowReport(ctx context.Context, customerID string, req domain.ReportRequest) (*domain.CashflowReport, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.GetCashflowReport")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", customerID),
		attribute.String("report.period", req.Period),
		attribute.String("report.grain", req.Grain.String()),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("cashflow_report", time.Since(start)) }()

	if strings.TrimSpace(customerID) == "" {
		return nil, &domain.ErrValidation{Field: "customerId", Message: "required"}
	}
	if req.Grain != domain.GrainUnspecified && !req.Grain.Valid() {
		return nil, &domain.ErrValidation{Field: "grain", Message: "must be one of day, week, month, year"}
	}
	if req.TopN < 0 {
		return nil, &domain.ErrValidation{Field: "top", Message: "must not be negative"}
	}

	ref := s.referenceDate(req.ReferenceDate)
	spec, err := resolvePeriod(req.Period, ref, s.Location())
	if err != nil {
		return nil, err
	}
	grain := req.Grain
	if grain == domain.GrainUnspecified {
		grain = spec.Grain
	}

	key := fmt.Sprintf("%s|%s|%s|%d|%s", customerID, spec.Name, grain, req.TopN, ref.Format(dateLayout))
	report, hit, err := s.cache.GetOrLoad(ctx, key, func(ctx context.Context) (*domain.CashflowReport, error) {
		ctx, cancel := context.WithTimeout(ctx, s.buildTimeout)
		defer cancel()
		return s.buildCustomerReport(ctx, customerID, spec, grain, req.TopN)
	})
	if err != nil {
		s.metrics.IncrRequest("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if hit {
		s.metrics.IncrCacheHit("report")
	} else {
		s.metrics.IncrCacheMiss("report")
	}
	s.metrics.IncrRequest("success")
	span.SetAttributes(attribute.Bool("cache.hit", hit), attribute.Int("report.buckets", len(report.Buckets)))
	return report, nil
}

func (s *ReportService) buildCustomerReport(ctx context.Context, customerID string, spec periodSpec, grain domain.TimeGrain, topN int) (*domain.CashflowReport, error) {
	var report *domain.CashflowReport
	err := s.bulkhead.Do(ctx, func() error {
		txns, err := s.fetch(ctx, customerID, spec.Window)
		if err != nil {
			return err
		}

		report, err = s.buildStored(customerID, txns, aggregation.Request{Grain: grain, TopN: topN, Window: spec.Window})
		return err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.ErrTimeout{Operation: "report build"}
		}
		return nil, err
	}

	report.CustomerID = customerID
	report.Period = spec.Name
	s.logger.Info("cashflow report built",
		zap.String("customer_id", customerID),
		zap.String("period", spec.Name),
		zap.String("grain", string(report.Grain)),
		zap.Int("buckets", len(report.Buckets)),
	)
	return report, nil
}

// fetch loads the customer's transactions covering window (or everything).
func (s *ReportService) fetch(ctx context.Context, customerID string, window *aggregation.Window) ([]domain.Transaction, error) {
	from, to := storeRange(window)
	txns, err := s.store.ListTransactions(ctx, customerID, from, to)
	if err != nil {
		var ext *domain.ErrExternalService
		if errors.As(err, &ext) {
			s.metrics.IncrExternalError(ext.Service)
		}
		s.logger.Warn("could not list transactions",
			zap.String("customer_id", customerID),
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err),
		)
		return nil, err
	}
	return txns, nil
}

// build runs the engine and stamps report identity and metrics.
func (s *ReportService) build(txns []domain.Transaction, req aggregation.Request) (*domain.CashflowReport, error) {
	report, err := s.engine.Build(txns, req)
	if err != nil {
		return nil, err
	}
	report.ID = uuid.NewString()
	report.GeneratedAt = s.now().UTC()
	s.metrics.RecordReport(report.Grain, len(report.Buckets), report.OrphanCount)
	return report, nil
}

// buildStored is build for transactions that came from the store. A
// transaction the engine rejects there is bad upstream data, not a bad request.
func (s *ReportService) buildStored(customerID string, txns []domain.Transaction, req aggregation.Request) (*domain.CashflowReport, error) {
	report, err := s.build(txns, req)
	if err != nil {
		var ve *domain.ErrValidation
		if errors.As(err, &ve) && strings.HasPrefix(ve.Field, "transactions[") {
			s.logger.Error("store returned malformed transaction",
				zap.String("customer_id", customerID),
				zap.Error(err),
			)
			s.metrics.IncrExternalError("transactions")
			return nil, &domain.ErrExternalService{Service: "transactions", Err: err}
		}
		return nil, err
	}
	return report, nil
}

// ============================================================
// Category report
// ============================================================

// GetCategoryReport returns the ranked categories and their stacked series.
func (s *ReportService) GetCategoryReport(ctx context.Context, customerID string, req domain.ReportRequest) (*domain.CategoryReport, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.GetCategoryReport")
	defer span.End()

	report, err := s.GetCashflowReport(ctx, customerID, req)
	if err != nil {
		return nil, err
	}
	return &domain.CategoryReport{
		CustomerID: customerID,
		Grain:      report.Grain,
		Categories: report.Categories,
		Series:     report.CategorySeries,
	}, nil
}

// ============================================================
// Preview (caller-supplied transactions)
// ============================================================

// Preview aggregates the transactions in req without touching the store.
func (s *ReportService) Preview(ctx context.Context, req domain.PreviewRequest) (*domain.CashflowReport, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.Preview")
	defer span.End()
	span.SetAttributes(attribute.Int("transactions.count", len(req.Transactions)))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("preview_report", time.Since(start)) }()

	grain, err := domain.ParseTimeGrain(req.Grain)
	if err != nil {
		return nil, err
	}
	if req.TopN < 0 {
		return nil, &domain.ErrValidation{Field: "topN", Message: "must not be negative"}
	}

	var window *aggregation.Window
	switch {
	case req.From != nil && req.To != nil:
		window = &aggregation.Window{From: *req.From, To: *req.To}
	case req.From != nil || req.To != nil:
		return nil, &domain.ErrValidation{Field: "window", Message: "from and to must be given together"}
	}

	var report *domain.CashflowReport
	err = s.bulkhead.Do(ctx, func() error {
		var buildErr error
		report, buildErr = s.build(req.Transactions, aggregation.Request{Grain: grain, TopN: req.TopN, Window: window})
		return buildErr
	})
	if err != nil {
		s.metrics.IncrRequest("error")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.ErrTimeout{Operation: "preview build"}
		}
		return nil, err
	}
	s.metrics.IncrRequest("success")
	return report, nil
}

// InvalidateCustomer drops cached reports for customerID built for ref.
// Used after imports so the next request sees fresh data.
func (s *ReportService) InvalidateCustomer(customerID string, req domain.ReportRequest) {
	ref := s.referenceDate(req.ReferenceDate)
	spec, err := resolvePeriod(req.Period, ref, s.Location())
	if err != nil {
		return
	}
	grain := req.Grain
	if grain == domain.GrainUnspecified {
		grain = spec.Grain
	}
	s.cache.Delete(fmt.Sprintf("%s|%s|%s|%d|%s", customerID, spec.Name, grain, req.TopN, ref.Format(dateLayout)))
}

func (s *ReportService) referenceDate(ref time.Time) time.Time {
	if ref.IsZero() {
		return s.now().In(s.Location())
	}
	return ref.In(s.Location())
}

package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/aggregation"
	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/cache"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/observability"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/resilience"
	"github.com/boddenberg/cashflow-reports-bfa/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- Mocks ---

type storeCall struct {
	customerID, from, to string
}

type mockStore struct {
	mu    sync.Mutex
	txns  []domain.Transaction
	err   error
	calls []storeCall
}

func (m *mockStore) ListTransactions(_ context.Context, customerID, from, to string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, storeCall{customerID, from, to})
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Transaction
	for _, tx := range m.txns {
		day := tx.OccurredAt.UTC().Format("2006-01-02")
		if from != "" && day < from {
			continue
		}
		if to != "" && day >= to {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (m *mockStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// --- Helpers ---

var fixedNow = time.Date(2024, 6, 30, 15, 0, 0, 0, time.UTC)

func newService(t *testing.T, store *mockStore) *service.ReportService {
	t.Helper()
	c := cache.New[*domain.CashflowReport](time.Minute)
	t.Cleanup(c.Close)
	return service.NewReportService(
		store,
		aggregation.NewEngine(zap.NewNop()),
		c,
		resilience.NewBulkhead(4),
		observability.NewMetrics(),
		zap.NewNop(),
	).WithClock(func() time.Time { return fixedNow })
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func tx(id string, kind domain.TransactionKind, amount string, at time.Time, category string) domain.Transaction {
	return domain.Transaction{
		ID:          id,
		Kind:        kind,
		Amount:      decimal.RequireFromString(amount),
		OccurredAt:  at,
		Category:    category,
		Description: id,
	}
}

func equalAmount(t *testing.T, name string, want string, got decimal.Decimal) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s: expected %s, got %s", name, want, got)
	}
}

// --- Tests ---

func TestGetCashflowReport_ThirtyDays(t *testing.T) {
	store := &mockStore{txns: []domain.Transaction{
		tx("in-1", domain.KindIncome, "1000", day(2024, 6, 5), "salary"),
		tx("out-1", domain.KindExpense, "250.50", day(2024, 6, 10), "rent"),
		tx("old", domain.KindExpense, "99", day(2024, 4, 1), "rent"),
	}}
	svc := newService(t, store)

	report, err := svc.GetCashflowReport(context.Background(), "cust-1", domain.ReportRequest{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(store.calls) != 1 {
		t.Fatalf("expected 1 store call, got %d", len(store.calls))
	}
	if got := store.calls[0]; got.from != "2024-06-01" || got.to != "2024-07-01" {
		t.Errorf("unexpected store range %+v", got)
	}
	if report.Grain != domain.GrainDay {
		t.Errorf("expected day grain, got %s", report.Grain)
	}
	if len(report.Buckets) != 30 {
		t.Errorf("expected 30 buckets, got %d", len(report.Buckets))
	}
	if report.Period != "30d" || report.CustomerID != "cust-1" {
		t.Errorf("unexpected identity: period=%q customer=%q", report.Period, report.CustomerID)
	}
	if report.ID == "" {
		t.Error("expected report ID")
	}
	if !report.GeneratedAt.Equal(fixedNow) {
		t.Errorf("expected generatedAt %v, got %v", fixedNow, report.GeneratedAt)
	}
	equalAmount(t, "income", "1000", report.Totals.Income)
	equalAmount(t, "expenses", "250.50", report.Totals.Expenses)
	equalAmount(t, "net", "749.50", report.Totals.Net)
}

func TestGetCashflowReport_SixMonthsIsMonthly(t *testing.T) {
	store := &mockStore{txns: []domain.Transaction{
		tx("a", domain.KindExpense, "10", day(2024, 3, 15), "food"),
	}}
	svc := newService(t, store)

	report, err := svc.GetCashflowReport(context.Background(), "cust-1", domain.ReportRequest{
		Period:        "6months",
		ReferenceDate: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if report.Grain != domain.GrainMonth {
		t.Errorf("expected month grain, got %s", report.Grain)
	}
	if len(report.Buckets) != 6 {
		t.Fatalf("expected 6 buckets, got %d", len(report.Buckets))
	}
	if report.Buckets[0].Label != "Jan 2024" || report.Buckets[5].Label != "Jun 2024" {
		t.Errorf("unexpected labels %q .. %q", report.Buckets[0].Label, report.Buckets[5].Label)
	}
}

func TestGetCashflowReport_CachesIdenticalRequests(t *testing.T) {
	store := &mockStore{txns: []domain.Transaction{
		tx("a", domain.KindIncome, "10", day(2024, 6, 20), ""),
	}}
	svc := newService(t, store)
	req := domain.ReportRequest{Period: "7d", Grain: domain.GrainDay}

	first, err := svc.GetCashflowReport(context.Background(), "cust-1", req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := svc.GetCashflowReport(context.Background(), "cust-1", req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if store.callCount() != 1 {
		t.Errorf("expected 1 store call, got %d", store.callCount())
	}
	if first.ID != second.ID {
		t.Error("expected cached report to be returned")
	}

	svc.InvalidateCustomer("cust-1", req)
	if _, err := svc.GetCashflowReport(context.Background(), "cust-1", req); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if store.callCount() != 2 {
		t.Errorf("expected rebuild after invalidation, got %d store calls", store.callCount())
	}
}

func TestGetCashflowReport_Validation(t *testing.T) {
	svc := newService(t, &mockStore{})

	tests := []struct {
		name       string
		customerID string
		req        domain.ReportRequest
		field      string
	}{
		{"missing customer", " ", domain.ReportRequest{}, "customerId"},
		{"unknown period", "c", domain.ReportRequest{Period: "fortnight"}, "period"},
		{"unknown grain", "c", domain.ReportRequest{Grain: "hour"}, "grain"},
		{"negative top", "c", domain.ReportRequest{TopN: -1}, "top"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetCashflowReport(context.Background(), tt.customerID, tt.req)
			var ve *domain.ErrValidation
			if !errors.As(err, &ve) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ve.Field)
			}
		})
	}
}

func TestGetCashflowReport_StoreError(t *testing.T) {
	store := &mockStore{err: &domain.ErrExternalService{Service: "supabase/transactions", Err: errors.New("boom")}}
	svc := newService(t, store)

	_, err := svc.GetCashflowReport(context.Background(), "cust-1", domain.ReportRequest{})
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}

	// failures are not cached
	if _, err := svc.GetCashflowReport(context.Background(), "cust-1", domain.ReportRequest{}); err == nil {
		t.Fatal("expected error on second call")
	}
	if store.callCount() != 2 {
		t.Errorf("expected 2 store calls, got %d", store.callCount())
	}
}

func TestGetCashflowReport_MalformedStoreData(t *testing.T) {
	store := &mockStore{txns: []domain.Transaction{
		tx("bad", domain.KindExpense, "10", time.Time{}, "food"),
	}}
	svc := newService(t, store)

	_, err := svc.GetCashflowReport(context.Background(), "cust-1", domain.ReportRequest{Period: "all"})

	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}

func TestGetCategoryReport(t *testing.T) {
	store := &mockStore{txns: []domain.Transaction{
		tx("a", domain.KindExpense, "30", day(2024, 6, 25), "food"),
		tx("b", domain.KindExpense, "20", day(2024, 6, 26), "rent"),
		tx("c", domain.KindExpense, "5", day(2024, 6, 27), "fun"),
		tx("d", domain.KindIncome, "500", day(2024, 6, 27), "salary"),
	}}
	svc := newService(t, store)

	report, err := svc.GetCategoryReport(context.Background(), "cust-1", domain.ReportRequest{Period: "7d", TopN: 2})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(report.Categories.Top) != 2 {
		t.Fatalf("expected 2 top categories, got %d", len(report.Categories.Top))
	}
	if report.Categories.Top[0].Category != "food" || report.Categories.Top[1].Category != "rent" {
		t.Errorf("unexpected ranking %+v", report.Categories.Top)
	}
	if report.Categories.Other == nil {
		t.Fatal("expected Other")
	}
	equalAmount(t, "other", "5", report.Categories.Other.Total)
	if len(report.Series) != 7 {
		t.Errorf("expected 7 series buckets, got %d", len(report.Series))
	}
}

func TestPreview(t *testing.T) {
	store := &mockStore{}
	svc := newService(t, store)

	report, err := svc.Preview(context.Background(), domain.PreviewRequest{
		Transactions: []domain.Transaction{
			tx("a", domain.KindIncome, "100", day(2024, 1, 1), ""),
			tx("b", domain.KindExpense, "40", day(2024, 3, 31), "food"),
		},
		Grain: "month",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(report.Buckets) != 3 {
		t.Errorf("expected 3 buckets, got %d", len(report.Buckets))
	}
	if store.callCount() != 0 {
		t.Error("preview must not touch the store")
	}
	equalAmount(t, "net", "60", report.Totals.Net)
}

func TestPreview_Validation(t *testing.T) {
	svc := newService(t, &mockStore{})
	from := day(2024, 1, 1)

	tests := []struct {
		name  string
		req   domain.PreviewRequest
		field string
	}{
		{"bad grain", domain.PreviewRequest{Grain: "fortnight"}, "grain"},
		{"half window", domain.PreviewRequest{From: &from}, "window"},
		{"zero date", domain.PreviewRequest{Transactions: []domain.Transaction{
			tx("z", domain.KindIncome, "1", time.Time{}, ""),
		}}, "transactions[0].occurredAt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Preview(context.Background(), tt.req)
			var ve *domain.ErrValidation
			if !errors.As(err, &ve) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ve.Field)
			}
		})
	}
}

// blockingStore holds every list call until release is closed or ctx ends.
type blockingStore struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	txns    []domain.Transaction
}

func (b *blockingStore) ListTransactions(ctx context.Context, _, _, _ string) ([]domain.Transaction, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return b.txns, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newBlockingService(t *testing.T, store *blockingStore) *service.ReportService {
	t.Helper()
	c := cache.New[*domain.CashflowReport](time.Minute)
	t.Cleanup(c.Close)
	return service.NewReportService(
		store,
		aggregation.NewEngine(zap.NewNop()),
		c,
		resilience.NewBulkhead(4),
		observability.NewMetrics(),
		zap.NewNop(),
	).WithClock(func() time.Time { return fixedNow })
}

func TestGetCashflowReport_CancelledCallerDoesNotFailOthers(t *testing.T) {
	store := &blockingStore{
		started: make(chan struct{}),
		release: make(chan struct{}),
		txns:    []domain.Transaction{tx("a", domain.KindIncome, "100", day(2024, 6, 28), "")},
	}
	svc := newBlockingService(t, store)
	req := domain.ReportRequest{Period: "7d"}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetCashflowReport(firstCtx, "cust-1", req)
		firstErr <- err
	}()
	<-store.started

	type result struct {
		report *domain.CashflowReport
		err    error
	}
	second := make(chan result, 1)
	go func() {
		r, err := svc.GetCashflowReport(context.Background(), "cust-1", req)
		second <- result{r, err}
	}()

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancelled caller to get context.Canceled, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	close(store.release)
	res := <-second
	if res.err != nil {
		t.Fatalf("expected the waiting caller to succeed, got %v", res.err)
	}
	equalAmount(t, "income", "100", res.report.Totals.Income)
}

func TestGetCashflowReport_BuildTimeout(t *testing.T) {
	store := &blockingStore{started: make(chan struct{}), release: make(chan struct{})}
	svc := newBlockingService(t, store).WithBuildTimeout(20 * time.Millisecond)

	_, err := svc.GetCashflowReport(context.Background(), "cust-1", domain.ReportRequest{Period: "7d"})

	var te *domain.ErrTimeout
	if !errors.As(err, &te) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/aggregation"
	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/boddenberg/cashflow-reports-bfa/internal/handler"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/cache"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/client"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/observability"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/resilience"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/sqlite"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/supabase"
	"github.com/boddenberg/cashflow-reports-bfa/internal/port"
	"github.com/boddenberg/cashflow-reports-bfa/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const jwtSecret = "integration-secret-0123456789"

var resilienceCfg = resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}

// newServer wires the real service, router and middleware around store.
func newServer(t *testing.T, store port.TransactionsFetcher, health port.HealthChecker, verifier *service.TokenVerifier) (*httptest.Server, *observability.Metrics) {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	reportCache := cache.New[*domain.CashflowReport](time.Minute)
	t.Cleanup(reportCache.Close)

	svc := service.NewReportService(
		store,
		aggregation.NewEngine(logger),
		reportCache,
		resilience.NewBulkhead(resilienceCfg.MaxConcurrency),
		metrics,
		logger,
	)
	srv := httptest.NewServer(handler.NewRouter(svc, health, verifier, metrics, logger))
	t.Cleanup(srv.Close)
	return srv, metrics
}

func get(t *testing.T, url, token string, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

// TestIntegration_TransactionsAPI runs the full flow against a mock Transactions API
// with bearer auth enabled.
func TestIntegration_TransactionsAPI(t *testing.T) {
	var gotQuery string
	txServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/customers/unknown/transactions" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		transactions := []domain.Transaction{
			{ID: "tx-1", Kind: domain.KindIncome, Amount: decimal.NewFromInt(50000), OccurredAt: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC), Category: "revenue"},
			{ID: "tx-2", Kind: domain.KindExpense, Amount: decimal.NewFromInt(20000), OccurredAt: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), Category: "supplier"},
			{ID: "tx-3", Kind: domain.KindExpense, Amount: decimal.NewFromInt(5000), OccurredAt: time.Date(2024, 6, 28, 9, 0, 0, 0, time.UTC), Category: "utilities"},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(transactions)
	}))
	defer txServer.Close()

	cb := resilience.NewCircuitBreaker("transactions-api", zap.NewNop())
	httpClient := &http.Client{Timeout: 5 * time.Second}
	verifier := service.NewTokenVerifier(jwtSecret)
	srv, _ := newServer(t, client.NewTransactionsClient(httpClient, txServer.URL, cb, resilienceCfg), nil, verifier)

	token, err := verifier.SignAccessToken("cust-integration-1", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var report domain.CashflowReport
	status := get(t, srv.URL+"/v1/customers/cust-integration-1/reports/cashflow?period=30d&ref=2024-06-30", token, &report)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if gotQuery != "from=2024-06-01&to=2024-07-01" {
		t.Errorf("unexpected upstream query %q", gotQuery)
	}
	if len(report.Buckets) != 30 || report.Grain != domain.GrainDay {
		t.Errorf("expected 30 day buckets, got %d %s buckets", len(report.Buckets), report.Grain)
	}
	if !report.Totals.Net.Equal(decimal.NewFromInt(25000)) {
		t.Errorf("expected net 25000, got %s", report.Totals.Net)
	}
	if len(report.Categories.Top) != 2 || report.Categories.Top[0].Category != "supplier" {
		t.Errorf("unexpected categories %+v", report.Categories)
	}

	var summary domain.FinancialSummary
	status = get(t, srv.URL+"/v1/customers/cust-integration-1/financial/summary?period=30d&ref=2024-06-30", token, &summary)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !summary.CashFlow.TotalExpenses.Equal(decimal.NewFromInt(25000)) {
		t.Errorf("expected expenses 25000, got %s", summary.CashFlow.TotalExpenses)
	}

	if status := get(t, srv.URL+"/v1/customers/cust-integration-1/reports/cashflow", "", nil); status != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", status)
	}
	if status := get(t, srv.URL+"/v1/customers/someone-else/reports/cashflow", token, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for another customer, got %d", status)
	}

	unknownToken, _ := verifier.SignAccessToken("unknown", time.Minute)
	if status := get(t, srv.URL+"/v1/customers/unknown/reports/cashflow", unknownToken, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for unknown customer, got %d", status)
	}
}

// TestIntegration_Supabase reads signed PostgREST rows through the Supabase adapter.
func TestIntegration_Supabase(t *testing.T) {
	pgServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("select") == "id" {
			w.Write([]byte(`[]`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"id":"r1","customer_id":"cust-1","date":"2024-04-10","amount":3200.00,"type":"credit","category":"sales"},
			{"id":"r2","customer_id":"cust-1","date":"2024-05-02T08:30:00","amount":-1200.40,"type":"debit","category":"rent"},
			{"id":"r3","customer_id":"cust-1","date":"2024-06-15T12:00:00Z","amount":-99.60,"type":"debit","category":""}
		]`)
	}))
	defer pgServer.Close()

	cb := resilience.NewCircuitBreaker("supabase", zap.NewNop())
	sb := supabase.NewClient(&http.Client{Timeout: 5 * time.Second}, pgServer.URL, "anon", "service", cb, resilienceCfg, zap.NewNop())
	srv, metrics := newServer(t, sb, sb, nil)

	var report domain.CashflowReport
	status := get(t, srv.URL+"/v1/customers/cust-1/reports/cashflow?period=6months&ref=2024-06-30", "", &report)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if report.Grain != domain.GrainMonth || len(report.Buckets) != 6 {
		t.Fatalf("expected 6 month buckets, got %d %s", len(report.Buckets), report.Grain)
	}
	april := report.Buckets[3]
	if april.Label != "Apr 2024" || !april.Metrics.Get(aggregation.MetricIncome).Equal(decimal.NewFromInt(3200)) {
		t.Errorf("unexpected April bucket %+v", april)
	}
	if !report.Totals.Expenses.Equal(decimal.RequireFromString("1300")) {
		t.Errorf("expected expenses 1300, got %s", report.Totals.Expenses)
	}
	if report.Categories.Top[1].Category != aggregation.CategoryUncategorized {
		t.Errorf("expected blank category to rank as %s, got %+v", aggregation.CategoryUncategorized, report.Categories.Top)
	}

	// a second identical request is served from cache
	get(t, srv.URL+"/v1/customers/cust-1/reports/cashflow?period=6months&ref=2024-06-30", "", nil)
	if snap := metrics.GetReportSnapshot(); snap.CacheHitRate != 0.5 {
		t.Errorf("expected cache hit rate 0.5, got %v", snap.CacheHitRate)
	}

	if status := get(t, srv.URL+"/readyz", "", nil); status != http.StatusOK {
		t.Errorf("expected ready, got %d", status)
	}
}

// TestIntegration_UpstreamFailure maps a failing store to 502.
func TestIntegration_UpstreamFailure(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	cb := resilience.NewCircuitBreaker("transactions-api", zap.NewNop())
	store := client.NewTransactionsClient(&http.Client{Timeout: time.Second}, failing.URL, cb, resilienceCfg)
	srv, _ := newServer(t, store, nil, nil)

	if status := get(t, srv.URL+"/v1/customers/c/reports/cashflow", "", nil); status != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", status)
	}
}

// TestIntegration_SQLite serves reports from the embedded store.
func TestIntegration_SQLite(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "tx.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	_, err = store.InsertTransactions(context.Background(), "cust-1", []domain.Transaction{
		{Kind: domain.KindIncome, Amount: decimal.NewFromInt(900), OccurredAt: time.Date(2024, 6, 24, 10, 0, 0, 0, time.UTC)},
		{Kind: domain.KindExpense, Amount: decimal.NewFromInt(300), OccurredAt: time.Date(2024, 6, 26, 10, 0, 0, 0, time.UTC), Category: "food"},
		{Kind: domain.KindExpense, Amount: decimal.NewFromInt(200), OccurredAt: time.Date(2024, 6, 17, 10, 0, 0, 0, time.UTC), Category: "food"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	srv, _ := newServer(t, store, store, nil)

	var summary domain.FinancialSummary
	status := get(t, srv.URL+"/v1/customers/cust-1/financial/summary?period=7d&ref=2024-06-30", "", &summary)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if summary.Spending.ComparedToPreviousPeriod != 50 {
		t.Errorf("expected spending +50%%, got %v", summary.Spending.ComparedToPreviousPeriod)
	}
	if len(summary.TopCategories) != 1 || summary.TopCategories[0].Trend != domain.TrendUp {
		t.Errorf("unexpected categories %+v", summary.TopCategories)
	}
}

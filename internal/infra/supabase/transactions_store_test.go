package supabase_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/resilience"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/supabase"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestClient(srv *httptest.Server) *supabase.Client {
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}
	return supabase.NewClient(srv.Client(), srv.URL, "anon", "service", resilience.NewCircuitBreaker("supabase-test", zap.NewNop()), cfg, zap.NewNop())
}

func TestListTransactions_MapsSignedAmounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/customer_transactions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("apikey"); got != "anon" {
			t.Errorf("expected apikey header, got %q", got)
		}
		q := r.URL.Query()
		if q.Get("customer_id") != "eq.c-1" {
			t.Errorf("unexpected customer filter %q", q.Get("customer_id"))
		}
		if dates := q["date"]; len(dates) != 2 || dates[0] != "gte.2024-01-01" || dates[1] != "lt.2024-02-01" {
			t.Errorf("unexpected date filters %v", dates)
		}
		w.Write([]byte(`[
			{"id":"t1","customer_id":"c-1","date":"2024-01-05T10:00:00Z","amount":"1500.00","type":"credit","category":"sales"},
			{"id":"t2","customer_id":"c-1","date":"2024-01-06","amount":-89.9,"category":"food","description":"lunch"}
		]`))
	}))
	defer srv.Close()

	txns, err := newTestClient(srv).ListTransactions(context.Background(), "c-1", "2024-01-01", "2024-02-01")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txns))
	}
	if txns[0].Kind != domain.KindIncome || !txns[0].Amount.Equal(decimal.RequireFromString("1500")) {
		t.Errorf("unexpected income mapping: %+v", txns[0])
	}
	if txns[1].Kind != domain.KindExpense || !txns[1].Amount.Equal(decimal.RequireFromString("89.9")) {
		t.Errorf("unexpected expense mapping: %+v", txns[1])
	}
	if !txns[1].OccurredAt.Equal(time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %s", txns[1].OccurredAt)
	}
}

func TestListTransactions_Pages(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Query().Get("offset") {
		case "0":
			w.Write([]byte(`[{"id":"a","date":"2024-01-01","amount":1},{"id":"b","date":"2024-01-02","amount":2}]`))
		case "2":
			w.Write([]byte(`[{"id":"c","date":"2024-01-03","amount":3}]`))
		default:
			t.Errorf("unexpected offset %s", r.URL.Query().Get("offset"))
		}
	}))
	defer srv.Close()

	txns, err := newTestClient(srv).WithPageSize(2).ListTransactions(context.Background(), "c-1", "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(txns) != 3 {
		t.Errorf("expected 3 transactions, got %d", len(txns))
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 page requests, got %d", calls.Load())
	}
}

func TestListTransactions_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	txns, err := newTestClient(srv).ListTransactions(context.Background(), "c-1", "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if txns == nil || len(txns) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", txns)
	}
}

func TestListTransactions_RejectsMalformedDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"bad","date":"yesterday","amount":1}]`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListTransactions(context.Background(), "c-1", "", "")

	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}

func TestListTransactions_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv).ListTransactions(context.Background(), "c-1", "", ""); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestInsertTransactions_SendsSignedRows(t *testing.T) {
	var body []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if !strings.Contains(r.Header.Get("Prefer"), "merge-duplicates") {
			t.Errorf("expected upsert preference, got %q", r.Header.Get("Prefer"))
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("invalid body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	txns := []domain.Transaction{
		{Kind: domain.KindExpense, Amount: decimal.RequireFromString("12.5"), OccurredAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Category: "food"},
	}
	n, err := newTestClient(srv).InsertTransactions(context.Background(), "c-1", txns)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 1 || len(body) != 1 {
		t.Fatalf("expected one row, got n=%d body=%v", n, body)
	}
	if body[0]["amount"] != "-12.5" {
		t.Errorf("expected negative amount, got %v", body[0]["amount"])
	}
	if body[0]["id"] == "" || body[0]["customer_id"] != "c-1" {
		t.Errorf("expected generated id and customer, got %v", body[0])
	}
}

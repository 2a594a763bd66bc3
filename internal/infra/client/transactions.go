// Package client holds plain HTTP adapters for upstream APIs.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

// TransactionsClient fetches transaction data from the Transactions API.
type TransactionsClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewTransactionsClient creates a new TransactionsClient.
func NewTransactionsClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *TransactionsClient {
	return &TransactionsClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

// ListTransactions fetches customer transactions in [from, to) with retry,
// circuit breaker, and tracing. An unknown customer is *domain.ErrNotFound.
func (c *TransactionsClient) ListTransactions(ctx context.Context, customerID, from, to string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "TransactionsClient.ListTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	endpoint := fmt.Sprintf("%s/v1/customers/%s/transactions", c.baseURL, url.PathEscape(customerID))
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	transactions, err := resilience.Call(ctx, c.cb, c.cfg, func() ([]domain.Transaction, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, resilience.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, resilience.Permanent(&domain.ErrNotFound{Resource: "customer", ID: customerID})
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("transactions API returned status %d", resp.StatusCode)
		}

		var out []domain.Transaction
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, resilience.Permanent(fmt.Errorf("decoding transactions: %w", err))
		}
		return out, nil
	})

	if err != nil {
		switch err.(type) {
		case *domain.ErrNotFound, *domain.ErrCircuitOpen, *domain.ErrTimeout:
			return nil, err
		}
		return nil, &domain.ErrExternalService{Service: "transactions", Err: err}
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	span.SetAttributes(attribute.Int("transactions.count", len(transactions)))
	return transactions, nil
}

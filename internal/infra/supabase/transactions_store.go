package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/resilience"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const transactionsTable = "customer_transactions"

// ============================================================
// Transactions (implements port.TransactionsFetcher / TransactionsWriter)
// ============================================================

// transactionRow maps customer_transactions columns.
// Amount is signed: negative values are expenses.
type transactionRow struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type,omitempty"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
}

var rowDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseRowDate(s string) (time.Time, error) {
	for _, layout := range rowDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func (r transactionRow) toDomain() (domain.Transaction, error) {
	occurredAt, err := parseRowDate(r.Date)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", r.ID, err)
	}

	kind := domain.KindIncome
	if r.Amount.IsNegative() || strings.EqualFold(r.Type, "debit") {
		kind = domain.KindExpense
	}

	return domain.Transaction{
		ID:          r.ID,
		Kind:        kind,
		Amount:      r.Amount.Abs(),
		OccurredAt:  occurredAt,
		Category:    r.Category,
		Description: r.Description,
	}, nil
}

func rowFromDomain(customerID string, tx domain.Transaction) transactionRow {
	amount := tx.Amount.Abs()
	txType := "credit"
	if tx.IsExpense() {
		amount = amount.Neg()
		txType = "debit"
	}
	id := tx.ID
	if id == "" {
		id = uuid.NewString()
	}
	return transactionRow{
		ID:          id,
		CustomerID:  customerID,
		Date:        tx.OccurredAt.UTC().Format(time.RFC3339Nano),
		Amount:      amount,
		Type:        txType,
		Category:    tx.Category,
		Description: tx.Description,
	}
}

func transactionsQuery(customerID, from, to string, limit, offset int) string {
	q := url.Values{}
	q.Set("customer_id", "eq."+customerID)
	q.Set("order", "date.asc,id.asc")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	if from != "" {
		q.Add("date", "gte."+from)
	}
	if to != "" {
		q.Add("date", "lt."+to)
	}
	return transactionsTable + "?" + q.Encode()
}

// ListTransactions pages through a customer's transactions in [from, to).
func (c *Client) ListTransactions(ctx context.Context, customerID, from, to string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTransactions")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", customerID),
		attribute.String("range.from", from),
		attribute.String("range.to", to),
	)

	transactions := []domain.Transaction{}
	for offset := 0; ; offset += c.pageSize {
		rows, err := resilience.Call(ctx, c.cb, c.cfg, func() ([]transactionRow, error) {
			body, err := c.doRequest(ctx, transactionsQuery(customerID, from, to, c.pageSize, offset))
			if err != nil {
				return nil, err
			}
			if body == nil {
				return nil, nil
			}
			var rows []transactionRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return nil, resilience.Permanent(fmt.Errorf("failed to decode transactions: %w", err))
			}
			return rows, nil
		})
		if err != nil {
			return nil, wrapStoreError(err)
		}

		for _, r := range rows {
			tx, err := r.toDomain()
			if err != nil {
				c.logger.Error("supabase: rejecting malformed transaction",
					zap.String("customer_id", customerID),
					zap.Error(err),
				)
				return nil, &domain.ErrExternalService{Service: "supabase/transactions", Err: err}
			}
			transactions = append(transactions, tx)
		}
		if len(rows) < c.pageSize {
			break
		}
	}

	span.SetAttributes(attribute.Int("transactions.count", len(transactions)))
	return transactions, nil
}

// InsertTransactions stores txns for customerID in one request.
func (c *Client) InsertTransactions(ctx context.Context, customerID string, txns []domain.Transaction) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.InsertTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID), attribute.Int("transactions.count", len(txns)))

	if len(txns) == 0 {
		return 0, nil
	}

	rows := make([]transactionRow, 0, len(txns))
	for i, tx := range txns {
		if err := tx.Validate(); err != nil {
			return 0, fmt.Errorf("transaction %d: %w", i, err)
		}
		rows = append(rows, rowFromDomain(customerID, tx))
	}

	_, err := resilience.Call(ctx, c.cb, c.cfg, func() ([]byte, error) {
		return c.doPost(ctx, transactionsTable, rows)
	})
	if err != nil {
		return 0, wrapStoreError(err)
	}
	return len(rows), nil
}

// wrapStoreError keeps breaker and timeout errors typed and wraps the rest.
func wrapStoreError(err error) error {
	switch err.(type) {
	case *domain.ErrCircuitOpen, *domain.ErrTimeout:
		return err
	}
	return &domain.ErrExternalService{Service: "supabase/transactions", Err: err}
}

// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
)

// TransactionsFetcher retrieves a customer's transactions.
// from and to are YYYY-MM-DD dates; empty means unbounded and to is exclusive.
// Implemented by the Supabase, HTTP and SQLite adapters.
type TransactionsFetcher interface {
	ListTransactions(ctx context.Context, customerID, from, to string) ([]domain.Transaction, error)
}

// TransactionsWriter stores transactions for a customer.
type TransactionsWriter interface {
	InsertTransactions(ctx context.Context, customerID string, txns []domain.Transaction) (int, error)
}

// HealthChecker is implemented by backends that can report readiness.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (T, bool, error)
}

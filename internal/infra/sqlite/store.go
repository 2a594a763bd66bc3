// Package sqlite is a local transactions store backed by modernc.org/sqlite.
// It serves development setups and the reportctl import command.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("sqlite")

// occurredAtLayout is fixed-width so stored timestamps sort lexically and
// compare correctly against YYYY-MM-DD bounds.
const occurredAtLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements port.TransactionsFetcher and port.TransactionsWriter.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates the database file if needed, applies migrations and returns a Store.
func Open(dbPath string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite store ready", zap.String("path", dbPath))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListTransactions returns a customer's transactions in [from, to), oldest first.
func (s *Store) ListTransactions(ctx context.Context, customerID, from, to string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	query := `SELECT id, kind, amount, occurred_at, category, description
		FROM transactions WHERE customer_id = ?`
	args := []any{customerID}
	if from != "" {
		query += " AND occurred_at >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND occurred_at < ?"
		args = append(args, to)
	}
	query += " ORDER BY occurred_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "sqlite", Err: fmt.Errorf("query transactions: %w", err)}
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		var (
			tx                 domain.Transaction
			kind, amount, when string
		)
		if err := rows.Scan(&tx.ID, &kind, &amount, &when, &tx.Category, &tx.Description); err != nil {
			return nil, &domain.ErrExternalService{Service: "sqlite", Err: fmt.Errorf("scan transaction: %w", err)}
		}
		tx.Kind = domain.TransactionKind(kind)
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, &domain.ErrExternalService{Service: "sqlite", Err: fmt.Errorf("transaction %s amount: %w", tx.ID, err)}
		}
		if tx.OccurredAt, err = time.Parse(occurredAtLayout, when); err != nil {
			return nil, &domain.ErrExternalService{Service: "sqlite", Err: fmt.Errorf("transaction %s occurred_at: %w", tx.ID, err)}
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.ErrExternalService{Service: "sqlite", Err: err}
	}

	span.SetAttributes(attribute.Int("transactions.count", len(transactions)))
	return transactions, nil
}

// InsertTransactions upserts txns for customerID in a single transaction.
// Transactions without an ID get a fresh UUID.
func (s *Store) InsertTransactions(ctx context.Context, customerID string, txns []domain.Transaction) (int, error) {
	ctx, span := tracer.Start(ctx, "SQLite.InsertTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID), attribute.Int("transactions.count", len(txns)))

	for i, tx := range txns {
		if err := tx.Validate(); err != nil {
			return 0, fmt.Errorf("transaction %d: %w", i, err)
		}
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, `INSERT INTO transactions
		(id, customer_id, kind, amount, occurred_at, category, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_id = excluded.customer_id,
			kind = excluded.kind,
			amount = excluded.amount,
			occurred_at = excluded.occurred_at,
			category = excluded.category,
			description = excluded.description`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, tx := range txns {
		id := tx.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx,
			id,
			customerID,
			string(tx.Kind),
			tx.Amount.String(),
			tx.OccurredAt.UTC().Format(occurredAtLayout),
			tx.Category,
			tx.Description,
		); err != nil {
			return 0, fmt.Errorf("insert transaction %s: %w", id, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("transactions stored",
		zap.String("customer_id", customerID),
		zap.Int("count", len(txns)),
	)
	return len(txns), nil
}

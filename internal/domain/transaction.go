package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Transactions
// ============================================================

// TransactionKind tells whether a transaction adds to income or expenses.
type TransactionKind string

const (
	KindIncome  TransactionKind = "income"
	KindExpense TransactionKind = "expense"
)

// Valid reports whether k is one of the known kinds.
func (k TransactionKind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// Transaction is a single money movement supplied by the caller.
// Amount is always non-negative; Kind carries the direction.
type Transaction struct {
	ID          string          `json:"id"`
	Kind        TransactionKind `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Validate rejects transactions whose placement or sign is undefined.
func (t Transaction) Validate() error {
	if t.OccurredAt.IsZero() {
		return &ErrValidation{Field: "occurredAt", Message: "required"}
	}
	if !t.Kind.Valid() {
		return &ErrValidation{Field: "kind", Message: "must be income or expense"}
	}
	if t.Amount.IsNegative() {
		return &ErrValidation{Field: "amount", Message: "must not be negative"}
	}
	return nil
}

// IsExpense reports whether the transaction counts towards spending.
func (t Transaction) IsExpense() bool {
	return t.Kind == KindExpense
}

// CategoryOrDefault returns the trimmed category, or fallback when none is set.
func (t Transaction) CategoryOrDefault(fallback string) string {
	if c := strings.TrimSpace(t.Category); c != "" {
		return c
	}
	return fallback
}

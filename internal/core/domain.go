package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the minute-precision layout used for generated timestamps.
const TimestampLayout = "2006-01-02 15:04"

const (
	KindExpense Kind = "Expense"
	KindIncome  Kind = "Income"
)

type (
	// Kind tells whether a movement takes money out or brings it in.
	Kind string

	// Movement is a single ledger entry owned by a user.
	Movement struct {
		ID          string          `json:"id"`
		User        string          `json:"user"`
		Timestamp   string          `json:"timestamp"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		Category    string          `json:"category"`
		Kind        Kind            `json:"kind"`
	}

	// MovementInput carries the caller-supplied fields of a new movement.
	// An empty Timestamp means "now".
	MovementInput struct {
		User        string          `json:"user" validate:"required"`
		Timestamp   string          `json:"timestamp"`
		Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
		Description string          `json:"description" validate:"required"`
		Category    string          `json:"category" validate:"required"`
		Kind        Kind            `json:"kind"`
	}

	// Category is a per-user label for movements.
	Category struct {
		User string `json:"user"`
		Name string `json:"name"`
	}
)

// ParseKind maps free text onto a Kind. Anything that is not recognisably an
// income (including the legacy "Ingreso" label) is an expense.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "ingreso":
		return KindIncome
	default:
		return KindExpense
	}
}

func (k Kind) String() string { return string(k) }

// Normalize returns the canonical form of k.
func (k Kind) Normalize() Kind { return ParseKind(string(k)) }

// Signed returns the amount with the sign it contributes to the balance.
func (m Movement) Signed() decimal.Decimal {
	if m.Kind == KindIncome {
		return m.Amount
	}
	return m.Amount.Neg()
}

// FormatTimestamp renders t with minute precision.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Normalize trims the free-text fields and canonicalises the kind.
func (in MovementInput) Normalize() MovementInput {
	in.User = strings.TrimSpace(in.User)
	in.Timestamp = strings.TrimSpace(in.Timestamp)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.Kind = in.Kind.Normalize()
	return in
}

// SameName reports whether two category names collide for a user.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

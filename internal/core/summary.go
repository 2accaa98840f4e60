package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// Summary totals a set of movements by kind.
type Summary struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
	Count   int             `json:"count"`
}

// MovementFilter selects movements. Zero values do not filter.
//
// From and To are compared lexically against the timestamp and are both
// inclusive. A To that is a bare date (YYYY-MM-DD) includes the whole day.
type MovementFilter struct {
	From       string
	To         string
	Categories []string
	Kinds      []Kind
}

// Match reports whether m passes every criterion of f.
func (f MovementFilter) Match(m Movement) bool {
	if from := strings.TrimSpace(f.From); from != "" && m.Timestamp < from {
		return false
	}
	if to := strings.TrimSpace(f.To); to != "" && m.Timestamp > to && !strings.HasPrefix(m.Timestamp, to) {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if k.Normalize() == m.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Categories) > 0 {
		found := false
		for _, c := range f.Categories {
			if SameName(c, m.Category) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FilterMovements returns the movements matching f, preserving order.
func FilterMovements(ms []Movement, f MovementFilter) []Movement {
	out := make([]Movement, 0, len(ms))
	for _, m := range ms {
		if f.Match(m) {
			out = append(out, m)
		}
	}
	return out
}

// Summarize sums movements by kind. Net is income minus expense.
func Summarize(ms []Movement) Summary {
	s := Summary{Income: decimal.Zero, Expense: decimal.Zero}
	for _, m := range ms {
		if m.Kind == KindIncome {
			s.Income = s.Income.Add(m.Amount)
		} else {
			s.Expense = s.Expense.Add(m.Amount)
		}
		s.Count++
	}
	s.Net = s.Income.Sub(s.Expense)
	return s
}

// TotalsByCategory aggregates the movements of one kind by category,
// in first-seen order. Categories differing only in case are merged under
// the first spelling seen.
func TotalsByCategory(ms []Movement, kind Kind) []CategoryAmount {
	kind = kind.Normalize()
	index := map[string]int{}
	var out []CategoryAmount
	for _, m := range ms {
		if m.Kind != kind {
			continue
		}
		name := strings.TrimSpace(m.Category)
		if name == "" {
			name = "(sin categoría)"
		}
		key := strings.ToLower(name)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, CategoryAmount{Name: name, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(m.Amount)
	}
	return out
}

// DistinctCategories lists the category names used by ms, first-seen order,
// deduplicated case-insensitively.
func DistinctCategories(ms []Movement) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range ms {
		key := strings.ToLower(strings.TrimSpace(m.Category))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m.Category)
	}
	return out
}

// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts typed by a user
// and for reading amounts back from a storage cell.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user input to a positive decimal amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Returns ErrInvalidAmount for invalid formats, negative values, or zero.
//
// Examples:
//
//	ParseAmount("15000")  -> 15000, nil
//	ParseAmount("12,50")  -> 12.5, nil
//	ParseAmount("-3")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// AmountFromCell reads a stored amount. Missing or non-numeric values
// coerce to zero instead of failing the whole table.
func AmountFromCell(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// AmountToCell renders an amount for storage.
func AmountToCell(d decimal.Decimal) string {
	return d.String()
}

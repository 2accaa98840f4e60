// Package format renders amounts for display.
package format

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Currency renders whole-unit amounts with locale digit grouping.
type Currency struct {
	symbol  string
	printer *message.Printer
}

// NewCurrency builds a formatter for a BCP 47 locale such as "es" or "en-US".
func NewCurrency(locale, symbol string) (*Currency, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}
	return &Currency{symbol: symbol, printer: message.NewPrinter(tag)}, nil
}

// Amount rounds d to whole units: 15000 in "es" is "$15.000".
func (c *Currency) Amount(d decimal.Decimal) string {
	n := d.Round(0).IntPart()
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	return sign + c.symbol + c.printer.Sprintf("%d", n)
}

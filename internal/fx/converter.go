// Package fx converts transaction amounts to EUR. The real rate source
// is an external collaborator; this package defines the contract and a
// fixed-rate table good enough for development and tests.
package fx

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Converter turns an amount in a given currency into EUR. A conversion
// failure is a hard error for the row being processed, never a silent
// zero.
type Converter interface {
	ToEUR(amount decimal.Decimal, currencyCode string) (decimal.Decimal, error)
}

// StaticConverter converts using a fixed EUR-per-unit rate table.
type StaticConverter struct {
	rates map[string]decimal.Decimal
}

// NewStaticConverter creates a converter over the given rate table.
// Keys are upper-cased ISO 4217 codes; EUR is always present at 1.
func NewStaticConverter(rates map[string]decimal.Decimal) *StaticConverter {
	table := make(map[string]decimal.Decimal, len(rates)+1)
	table["EUR"] = decimal.NewFromInt(1)
	for code, rate := range rates {
		table[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return &StaticConverter{rates: table}
}

// DefaultRates is a small built-in table for the currencies French
// bank exports actually contain.
func DefaultRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"USD": decimal.RequireFromString("0.92"),
		"GBP": decimal.RequireFromString("1.17"),
		"CHF": decimal.RequireFromString("1.05"),
	}
}

// ToEUR implements Converter. Unknown currencies are an error.
func (c *StaticConverter) ToEUR(amount decimal.Decimal, currencyCode string) (decimal.Decimal, error) {
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	if code == "" {
		code = "EUR"
	}
	rate, ok := c.rates[code]
	if !ok {
		return decimal.Zero, fmt.Errorf("ToEUR: no rate for currency %q", currencyCode)
	}
	return amount.Mul(rate).Round(2), nil
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one financial event as stored in finance.transactions.
// Amount is in the original currency; AmountEUR is the converted value
// every aggregate in the system is computed from. MerchantNorm is the
// canonicalized merchant name cached on the record at import time.
type Transaction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	AmountEUR    decimal.Decimal `json:"amount_eur"`
	Merchant     string          `json:"merchant"`
	MerchantNorm string          `json:"merchant_norm"`
	Category     string          `json:"category,omitempty"` // free text, empty means uncategorized

	// BucketID is the owning budget bucket, nil when unassigned.
	BucketID *string `json:"bucket_id,omitempty"`
	// PatternID links to a detected recurrence, nil when none.
	PatternID   *string `json:"pattern_id,omitempty"`
	IsRecurring bool    `json:"is_recurring"`

	CreatedTS time.Time `json:"created_ts"`
	UpdatedTS time.Time `json:"updated_ts,omitempty"`
}

// EffectiveAmount returns AmountEUR, falling back to Amount when no
// converted value is present. Only rule matching uses the fallback;
// the ledger and analytics always work on AmountEUR.
func (t *Transaction) EffectiveAmount() decimal.Decimal {
	if !t.AmountEUR.IsZero() {
		return t.AmountEUR
	}
	return t.Amount
}

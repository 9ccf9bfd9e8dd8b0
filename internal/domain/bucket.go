package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BucketPeriod is the budgeting horizon of a bucket.
type BucketPeriod string

const (
	PeriodMonthly BucketPeriod = "monthly"
	PeriodAnnual  BucketPeriod = "annual"
)

// Bucket is a budget envelope. Spent is a denormalized cache of the sum
// of AmountEUR over all transactions currently linked to the bucket;
// the ledger keeps it in step incrementally and the reconcile path
// recomputes it from scratch.
type Bucket struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Allocated decimal.Decimal `json:"allocated"`
	Spent     decimal.Decimal `json:"spent"`
	Period    BucketPeriod    `json:"period"`
	CreatedTS time.Time       `json:"created_ts"`
	UpdatedTS time.Time       `json:"updated_ts,omitempty"`
}

// Remaining is the allocation left in the bucket. Negative when over.
func (b *Bucket) Remaining() decimal.Decimal {
	return b.Allocated.Sub(b.Spent)
}

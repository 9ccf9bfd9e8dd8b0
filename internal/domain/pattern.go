package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is a detected recurrence cadence.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

// OccurrencesPerYear returns how many times a charge at this frequency
// lands in a year. Zero for an unknown frequency.
func (f Frequency) OccurrencesPerYear() int64 {
	switch f {
	case FrequencyWeekly:
		return 52
	case FrequencyMonthly:
		return 12
	case FrequencyQuarterly:
		return 4
	}
	return 0
}

// PatternStatus is the user-facing curation state of a pattern.
// Refresh never changes it; only the user-facing update path does.
type PatternStatus string

const (
	PatternStatusDetected PatternStatus = "detected"
	PatternStatusBudgeted PatternStatus = "budgeted"
	PatternStatusIgnored  PatternStatus = "ignored"
)

// Pattern is a recurring merchant charge keyed by
// (UserID, MerchantNorm, Frequency).
type Pattern struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	MerchantNorm    string          `json:"merchant_norm"`
	Frequency       Frequency       `json:"frequency"`
	AvgAmount       decimal.Decimal `json:"avg_amount"`
	ProjectedAnnual decimal.Decimal `json:"projected_annual"`
	Status          PatternStatus   `json:"status"`
	CreatedTS       time.Time       `json:"created_ts"`
	UpdatedTS       time.Time       `json:"updated_ts,omitempty"`
}

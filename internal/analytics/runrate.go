// Package analytics computes read-side dashboard metrics: spending
// run-rate, month-end projection, budget health and category
// breakdowns. Everything here is a pure computation over a snapshot of
// the current month's transactions and the user's buckets.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/domain"
)

// UncategorizedLabel is the category bucket used for transactions that
// carry no category.
const UncategorizedLabel = "Uncategorized"

// Store is the storage contract the analyzer needs.
type Store interface {
	ListTransactionsBetween(ctx context.Context, userID string, from, to time.Time) ([]*domain.Transaction, error)
	ListBuckets(ctx context.Context, userID string) ([]*domain.Bucket, error)
}

// Runway is a month count that may be unbounded. No spend means the
// cash never runs out; that is +Inf, which standard JSON cannot carry,
// so it marshals as the string "inf".
type Runway float64

// MarshalJSON implements json.Marshaler.
func (r Runway) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(r), 1) {
		return json.Marshal("inf")
	}
	return json.Marshal(float64(r))
}

// IsUnbounded reports whether the runway is infinite.
func (r Runway) IsUnbounded() bool { return math.IsInf(float64(r), 1) }

// CategorySpend is one row of the top-categories breakdown.
type CategorySpend struct {
	Category       string          `json:"category"`
	Spent          decimal.Decimal `json:"spent"`
	PercentOfTotal float64         `json:"percent_of_total"`
}

// BucketStatusLabel is the three-way budget-vs-actual state.
type BucketStatusLabel string

const (
	BucketOK      BucketStatusLabel = "ok"      // under 80% used
	BucketWarning BucketStatusLabel = "warning" // 80–99%
	BucketOver    BucketStatusLabel = "over"    // 100% and beyond
)

// BucketStatus is the budget-vs-actual view of one monthly bucket.
type BucketStatus struct {
	BucketID    string            `json:"bucket_id"`
	Name        string            `json:"name"`
	Allocated   decimal.Decimal   `json:"allocated"`
	Spent       decimal.Decimal   `json:"spent"`
	Remaining   decimal.Decimal   `json:"remaining"`
	PercentUsed float64           `json:"percent_used"`
	Status      BucketStatusLabel `json:"status"`
}

// Metrics is the run-rate dashboard payload.
type Metrics struct {
	DayOfMonth         int             `json:"day_of_month"`
	DaysInMonth        int             `json:"days_in_month"`
	SpentMTD           decimal.Decimal `json:"spent_mtd"`
	DailyRunRate       decimal.Decimal `json:"daily_run_rate"`
	ProjectedEOM       decimal.Decimal `json:"projected_eom"`
	TotalMonthlyBudget decimal.Decimal `json:"total_monthly_budget"`
	PercentUsed        float64         `json:"percent_used"`
	RunwayMonths       Runway          `json:"runway_months"`
	HealthScore        int             `json:"health_score"`
	TopCategories      []CategorySpend `json:"top_categories"`
	Buckets            []BucketStatus  `json:"buckets"`
}

// Service computes analytics against a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates an analytics service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// RunRate computes the full metrics payload for the user's current
// month. currentCash feeds the runway estimate.
func (s *Service) RunRate(ctx context.Context, userID string, currentCash decimal.Decimal) (*Metrics, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	txs, err := s.store.ListTransactionsBetween(ctx, userID, monthStart, now)
	if err != nil {
		return nil, fmt.Errorf("RunRate: listing transactions: %w", err)
	}
	buckets, err := s.store.ListBuckets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("RunRate: listing buckets: %w", err)
	}

	return Compute(txs, buckets, now, currentCash), nil
}

// BudgetHealth computes just the health score for the user's current
// month.
func (s *Service) BudgetHealth(ctx context.Context, userID string, currentCash decimal.Decimal) (int, error) {
	metrics, err := s.RunRate(ctx, userID, currentCash)
	if err != nil {
		return 0, fmt.Errorf("BudgetHealth: %w", err)
	}
	return metrics.HealthScore, nil
}

// Compute derives the metrics from a snapshot. Pure; now decides the
// month boundaries and elapsed days.
func Compute(txs []*domain.Transaction, buckets []*domain.Bucket, now time.Time, currentCash decimal.Decimal) *Metrics {
	dayOfMonth := now.Day()
	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()

	spentMTD := decimal.Zero
	for _, tx := range txs {
		spentMTD = spentMTD.Add(tx.AmountEUR)
	}

	dailyRunRate := decimal.Zero
	if dayOfMonth > 0 {
		dailyRunRate = spentMTD.Div(decimal.NewFromInt(int64(dayOfMonth))).Round(2)
	}
	projectedEOM := dailyRunRate.Mul(decimal.NewFromInt(int64(daysInMonth))).Round(2)

	totalBudget := decimal.Zero
	for _, b := range buckets {
		if b.Period == domain.PeriodMonthly {
			totalBudget = totalBudget.Add(b.Allocated)
		}
	}

	percentUsed := 0.0
	projectedPercent := 0.0
	if totalBudget.IsPositive() {
		percentUsed, _ = spentMTD.Div(totalBudget).Mul(decimal.NewFromInt(100)).Float64()
		projectedPercent, _ = projectedEOM.Div(totalBudget).Mul(decimal.NewFromInt(100)).Float64()
	}

	monthlyBurn := dailyRunRate.Mul(decimal.NewFromInt(30))
	runway := Runway(math.Inf(1))
	if monthlyBurn.IsPositive() {
		months, _ := currentCash.Div(monthlyBurn).Float64()
		runway = Runway(months)
	}

	return &Metrics{
		DayOfMonth:         dayOfMonth,
		DaysInMonth:        daysInMonth,
		SpentMTD:           spentMTD,
		DailyRunRate:       dailyRunRate,
		ProjectedEOM:       projectedEOM,
		TotalMonthlyBudget: totalBudget,
		PercentUsed:        percentUsed,
		RunwayMonths:       runway,
		HealthScore:        HealthScore(percentUsed, projectedPercent, float64(runway)),
		TopCategories:      TopCategories(txs, 5),
		Buckets:            BudgetVsActual(buckets),
	}
}

// HealthScore is the heuristic budget health score on [0, 100]. The
// exact coefficients are load-bearing: existing consumers compare
// scores across time, so they must not change.
func HealthScore(percentUsed, projectedPercent, runwayMonths float64) int {
	score := 100.0

	if percentUsed > 100 {
		score -= math.Min(50, (percentUsed-100)*2)
	}
	if projectedPercent > 100 {
		score -= math.Min(30, (projectedPercent-100)*1.5)
	}
	if runwayMonths < 3 {
		score -= 20
	} else if runwayMonths < 6 {
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(math.Round(score))
}

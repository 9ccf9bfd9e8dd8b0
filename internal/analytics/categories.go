package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/domain"
)

// TopCategories groups the transactions by category, sums AmountEUR per
// group and returns the top limit groups by spend, descending.
// Transactions without a category land under UncategorizedLabel.
func TopCategories(txs []*domain.Transaction, limit int) []CategorySpend {
	byCategory := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, tx := range txs {
		category := tx.Category
		if category == "" {
			category = UncategorizedLabel
		}
		byCategory[category] = byCategory[category].Add(tx.AmountEUR)
		total = total.Add(tx.AmountEUR)
	}

	out := make([]CategorySpend, 0, len(byCategory))
	for category, spent := range byCategory {
		percent := 0.0
		if total.IsPositive() {
			percent, _ = spent.Div(total).Mul(decimal.NewFromInt(100)).Float64()
		}
		out = append(out, CategorySpend{Category: category, Spent: spent, PercentOfTotal: percent})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Spent.Equal(out[j].Spent) {
			return out[i].Spent.GreaterThan(out[j].Spent)
		}
		return out[i].Category < out[j].Category
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// BudgetVsActual reports per-bucket usage for the user's monthly
// buckets: ok under 80%, warning from 80%, over from 100%.
func BudgetVsActual(buckets []*domain.Bucket) []BucketStatus {
	var out []BucketStatus
	for _, b := range buckets {
		if b.Period != domain.PeriodMonthly {
			continue
		}

		percent := 0.0
		if b.Allocated.IsPositive() {
			percent, _ = b.Spent.Div(b.Allocated).Mul(decimal.NewFromInt(100)).Float64()
		}

		status := BucketOK
		switch {
		case percent >= 100:
			status = BucketOver
		case percent >= 80:
			status = BucketWarning
		}

		out = append(out, BucketStatus{
			BucketID:    b.ID,
			Name:        b.Name,
			Allocated:   b.Allocated,
			Spent:       b.Spent,
			Remaining:   b.Remaining(),
			PercentUsed: percent,
			Status:      status,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

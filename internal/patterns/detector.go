// Package patterns detects recurring merchant spend from transaction
// history and keeps the stored pattern set in step with it.
package patterns

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/domain"
)

// Tolerance bands for classifying the average gap between consecutive
// charges, in days. Averages outside every band produce no pattern.
const (
	weeklyMin    = 6
	weeklyMax    = 8
	monthlyMin   = 28
	monthlyMax   = 32
	quarterlyMin = 88
	quarterlyMax = 95
)

// Candidate is one recurrence inferred from a merchant's transaction
// group.
type Candidate struct {
	MerchantNorm string
	Frequency    domain.Frequency
	AvgAmount    decimal.Decimal
	Count        int
}

// ProjectedAnnual is the candidate's yearly cost at its frequency.
func (c Candidate) ProjectedAnnual() decimal.Decimal {
	return c.AvgAmount.Mul(decimal.NewFromInt(c.Frequency.OccurrencesPerYear()))
}

// Detect groups transactions by normalized merchant and infers a
// recurrence for each group whose average gap between consecutive
// charges lands in a known tolerance band. Groups with fewer than two
// transactions, or with an out-of-band average gap, are dropped
// silently: that is insufficient signal, not an error. Results are
// sorted by merchant for a deterministic order.
func Detect(txs []*domain.Transaction) []Candidate {
	groups := make(map[string][]*domain.Transaction)
	for _, tx := range txs {
		if tx.MerchantNorm == "" {
			continue
		}
		groups[tx.MerchantNorm] = append(groups[tx.MerchantNorm], tx)
	}

	var out []Candidate
	for norm, group := range groups {
		if len(group) < 2 {
			continue
		}

		sort.Slice(group, func(i, j int) bool {
			return group[i].Date.Before(group[j].Date)
		})

		var totalDays float64
		for i := 1; i < len(group); i++ {
			totalDays += group[i].Date.Sub(group[i-1].Date).Hours() / 24
		}
		avgInterval := totalDays / float64(len(group)-1)

		freq, ok := classify(avgInterval)
		if !ok {
			continue
		}

		sum := decimal.Zero
		for _, tx := range group {
			sum = sum.Add(tx.AmountEUR)
		}
		avgAmount := sum.Div(decimal.NewFromInt(int64(len(group)))).Round(2)

		out = append(out, Candidate{
			MerchantNorm: norm,
			Frequency:    freq,
			AvgAmount:    avgAmount,
			Count:        len(group),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].MerchantNorm < out[j].MerchantNorm
	})
	return out
}

func classify(avgIntervalDays float64) (domain.Frequency, bool) {
	switch {
	case avgIntervalDays >= weeklyMin && avgIntervalDays <= weeklyMax:
		return domain.FrequencyWeekly, true
	case avgIntervalDays >= monthlyMin && avgIntervalDays <= monthlyMax:
		return domain.FrequencyMonthly, true
	case avgIntervalDays >= quarterlyMin && avgIntervalDays <= quarterlyMax:
		return domain.FrequencyQuarterly, true
	}
	return "", false
}

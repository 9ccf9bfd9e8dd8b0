// Package rules evaluates transactions against priority-ordered bucket
// assignment rules. Resolution is pure: it answers what bucket a
// transaction would land in, the ledger performs the actual link.
package rules

import (
	"sort"
	"strings"

	"github.com/finum/finum/internal/domain"
	"github.com/finum/finum/internal/merchant"
)

// Match reports whether a single rule matches the transaction. A rule
// whose condition is missing or malformed for its type never matches.
func Match(rule *domain.Rule, tx *domain.Transaction) bool {
	switch cond := rule.Condition().(type) {
	case domain.MerchantCondition:
		norm := tx.MerchantNorm
		if norm == "" {
			norm = merchant.Normalize(tx.Merchant)
		}
		return cond.Merchant != "" && strings.EqualFold(cond.Merchant, norm)

	case domain.CategoryCondition:
		if tx.Category == "" {
			return false
		}
		return cond.Category != "" && strings.EqualFold(cond.Category, tx.Category)

	case domain.AmountRangeCondition:
		amount := tx.EffectiveAmount()
		if cond.Min != nil && amount.LessThan(*cond.Min) {
			return false
		}
		if cond.Max != nil && amount.GreaterThan(*cond.Max) {
			return false
		}
		return true

	case domain.MerchantCategoryCondition:
		if cond.MerchantContains == "" && cond.Category == "" {
			return false
		}
		if cond.MerchantContains != "" {
			norm := tx.MerchantNorm
			if norm == "" {
				norm = merchant.Normalize(tx.Merchant)
			}
			if !strings.Contains(strings.ToLower(norm), strings.ToLower(cond.MerchantContains)) {
				return false
			}
		}
		if cond.Category != "" {
			if tx.Category == "" || !strings.EqualFold(cond.Category, tx.Category) {
				return false
			}
		}
		return true
	}

	return false
}

// SortRules orders rules for resolution: descending priority, ties
// broken by earlier creation time, then by ID so the order is stable
// for rules created in the same instant.
func SortRules(list []*domain.Rule) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority > list[j].Priority
		}
		if !list[i].CreatedTS.Equal(list[j].CreatedTS) {
			return list[i].CreatedTS.Before(list[j].CreatedTS)
		}
		return list[i].ID < list[j].ID
	})
}

// ResolveBucket returns the bucket of the highest-priority rule that
// matches the transaction, or nil when none does. Pure and idempotent;
// the rule slice is reordered in place via SortRules.
func ResolveBucket(list []*domain.Rule, tx *domain.Transaction) *string {
	SortRules(list)
	for _, rule := range list {
		if Match(rule, tx) {
			bucketID := rule.BucketID
			return &bucketID
		}
	}
	return nil
}

// ResolveAll resolves bucket assignment for many transactions against
// one rule set without re-sorting per transaction. The result slice is
// index-aligned with txs; entries are nil where no rule matched.
func ResolveAll(list []*domain.Rule, txs []*domain.Transaction) []*string {
	SortRules(list)
	out := make([]*string, len(txs))
	for i, tx := range txs {
		for _, rule := range list {
			if Match(rule, tx) {
				bucketID := rule.BucketID
				out[i] = &bucketID
				break
			}
		}
	}
	return out
}

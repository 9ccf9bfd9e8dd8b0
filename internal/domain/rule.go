package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleType discriminates the condition shape of an assignment rule.
type RuleType string

const (
	RuleTypeMerchant         RuleType = "merchant"
	RuleTypeCategory         RuleType = "category"
	RuleTypeAmountRange      RuleType = "amount_range"
	RuleTypeMerchantCategory RuleType = "merchant_category"
)

// Condition is the tagged union of rule condition shapes. Exactly one
// concrete condition type corresponds to each RuleType.
type Condition interface {
	conditionType() RuleType
}

// MerchantCondition matches on exact (case-insensitive) equality with
// the transaction's normalized merchant.
type MerchantCondition struct {
	Merchant string `json:"merchant"`
}

// CategoryCondition matches on exact (case-insensitive) category
// equality. Transactions without a category never match.
type CategoryCondition struct {
	Category string `json:"category"`
}

// AmountRangeCondition matches when the transaction amount falls inside
// [Min, Max] inclusive. A nil bound is unbounded on that side.
type AmountRangeCondition struct {
	Min *decimal.Decimal `json:"min,omitempty"`
	Max *decimal.Decimal `json:"max,omitempty"`
}

// MerchantCategoryCondition is conjunctive: every field that is set
// must hold. With neither field set it never matches.
type MerchantCategoryCondition struct {
	MerchantContains string `json:"merchant_contains,omitempty"`
	Category         string `json:"category,omitempty"`
}

func (MerchantCondition) conditionType() RuleType         { return RuleTypeMerchant }
func (CategoryCondition) conditionType() RuleType         { return RuleTypeCategory }
func (AmountRangeCondition) conditionType() RuleType      { return RuleTypeAmountRange }
func (MerchantCategoryCondition) conditionType() RuleType { return RuleTypeMerchantCategory }

// Rule auto-assigns matching transactions to a bucket. Higher Priority
// is evaluated first.
type Rule struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      RuleType  `json:"rule_type"`
	Cond      Condition `json:"condition,omitempty"`
	Priority  int       `json:"priority"`
	BucketID  string    `json:"bucket_id"`
	CreatedTS time.Time `json:"created_ts"`
	UpdatedTS time.Time `json:"updated_ts,omitempty"`
}

// Condition returns the rule's condition, nil when the stored condition
// did not decode for the rule's type. A nil condition never matches.
func (r *Rule) Condition() Condition {
	if r.Cond == nil {
		return nil
	}
	if r.Cond.conditionType() != r.Type {
		return nil
	}
	return r.Cond
}

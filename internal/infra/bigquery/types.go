// Package bigquery is the Finum storage layer over the finance dataset.
// It follows the one-ops-file-per-table layout, with ...WithClient
// variants so callers can share a client across operations.
package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/domain"
)

const (
	projectID = "finum-prod-468311"
	datasetID = "finance"

	transactionsTable = "transactions"
	bucketsTable      = "buckets"
	rulesTable        = "rules"
	patternsTable     = "patterns"

	dateFormat = "2006-01-02"
)

// TransactionRow represents a transaction record in finance.transactions.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id" json:"transaction_id"`
	UserID        string `bigquery:"user_id" json:"user_id"`

	TransactionDate civil.Date `bigquery:"transaction_date" json:"transaction_date"`

	Amount    *big.Rat `bigquery:"amount" json:"-"`
	Currency  string   `bigquery:"currency" json:"currency"`
	AmountEUR *big.Rat `bigquery:"amount_eur" json:"-"`

	MerchantRaw  string              `bigquery:"merchant_raw" json:"merchant_raw"`
	MerchantNorm string              `bigquery:"merchant_norm" json:"merchant_norm"`
	Category     bigquery.NullString `bigquery:"category" json:"category,omitempty"`

	BucketID    bigquery.NullString `bigquery:"bucket_id" json:"bucket_id,omitempty"`
	PatternID   bigquery.NullString `bigquery:"pattern_id" json:"pattern_id,omitempty"`
	IsRecurring bool                `bigquery:"is_recurring" json:"is_recurring"`

	CreatedTS time.Time              `bigquery:"created_ts" json:"created_ts"`
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts" json:"updated_ts,omitempty"`
}

// BucketRow represents a budget bucket record in finance.buckets.
type BucketRow struct {
	BucketID string `bigquery:"bucket_id" json:"bucket_id"`
	UserID   string `bigquery:"user_id" json:"user_id"`
	Name     string `bigquery:"name" json:"name"`

	Allocated *big.Rat `bigquery:"allocated" json:"-"`
	Spent     *big.Rat `bigquery:"spent" json:"-"`

	Period string `bigquery:"period" json:"period"`

	CreatedTS time.Time              `bigquery:"created_ts" json:"created_ts"`
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts" json:"updated_ts,omitempty"`
}

// RuleRow represents an assignment rule record in finance.rules. The
// condition is flattened into nullable columns; which columns are
// meaningful depends on rule_type.
type RuleRow struct {
	RuleID   string `bigquery:"rule_id" json:"rule_id"`
	UserID   string `bigquery:"user_id" json:"user_id"`
	RuleType string `bigquery:"rule_type" json:"rule_type"`

	Merchant         bigquery.NullString `bigquery:"merchant" json:"merchant,omitempty"`
	Category         bigquery.NullString `bigquery:"category" json:"category,omitempty"`
	MinAmount        *big.Rat            `bigquery:"min_amount" json:"-"`
	MaxAmount        *big.Rat            `bigquery:"max_amount" json:"-"`
	MerchantContains bigquery.NullString `bigquery:"merchant_contains" json:"merchant_contains,omitempty"`

	Priority int64  `bigquery:"priority" json:"priority"`
	BucketID string `bigquery:"bucket_id" json:"bucket_id"`

	CreatedTS time.Time              `bigquery:"created_ts" json:"created_ts"`
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts" json:"updated_ts,omitempty"`
}

// PatternRow represents a recurring pattern record in finance.patterns.
type PatternRow struct {
	PatternID    string `bigquery:"pattern_id" json:"pattern_id"`
	UserID       string `bigquery:"user_id" json:"user_id"`
	MerchantNorm string `bigquery:"merchant_norm" json:"merchant_norm"`
	Frequency    string `bigquery:"frequency" json:"frequency"`

	AvgAmount       *big.Rat `bigquery:"avg_amount" json:"-"`
	ProjectedAnnual *big.Rat `bigquery:"projected_annual" json:"-"`

	Status string `bigquery:"status" json:"status"`

	CreatedTS time.Time              `bigquery:"created_ts" json:"created_ts"`
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts" json:"updated_ts,omitempty"`
}

func ratToDecimal(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigRat(r, 2)
}

func decimalToRat(d decimal.Decimal) *big.Rat {
	return d.Rat()
}

func nullStr(s bigquery.NullString) string {
	if s.Valid {
		return s.StringVal
	}
	return ""
}

func nullStrPtr(s bigquery.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.StringVal
	return &v
}

func toNullStr(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func (r *TransactionRow) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:           r.TransactionID,
		UserID:       r.UserID,
		Date:         r.TransactionDate.In(time.UTC),
		Amount:       ratToDecimal(r.Amount),
		Currency:     r.Currency,
		AmountEUR:    ratToDecimal(r.AmountEUR),
		Merchant:     r.MerchantRaw,
		MerchantNorm: r.MerchantNorm,
		Category:     nullStr(r.Category),
		BucketID:     nullStrPtr(r.BucketID),
		PatternID:    nullStrPtr(r.PatternID),
		IsRecurring:  r.IsRecurring,
		CreatedTS:    r.CreatedTS,
	}
}

func transactionRowFromDomain(tx *domain.Transaction) *TransactionRow {
	row := &TransactionRow{
		TransactionID:   tx.ID,
		UserID:          tx.UserID,
		TransactionDate: civil.DateOf(tx.Date),
		Amount:          decimalToRat(tx.Amount),
		Currency:        tx.Currency,
		AmountEUR:       decimalToRat(tx.AmountEUR),
		MerchantRaw:     tx.Merchant,
		MerchantNorm:    tx.MerchantNorm,
		Category:        toNullStr(tx.Category),
		IsRecurring:     tx.IsRecurring,
		CreatedTS:       tx.CreatedTS,
	}
	if tx.BucketID != nil {
		row.BucketID = bigquery.NullString{StringVal: *tx.BucketID, Valid: true}
	}
	if tx.PatternID != nil {
		row.PatternID = bigquery.NullString{StringVal: *tx.PatternID, Valid: true}
	}
	return row
}

func (r *BucketRow) toDomain() *domain.Bucket {
	return &domain.Bucket{
		ID:        r.BucketID,
		UserID:    r.UserID,
		Name:      r.Name,
		Allocated: ratToDecimal(r.Allocated),
		Spent:     ratToDecimal(r.Spent),
		Period:    domain.BucketPeriod(r.Period),
		CreatedTS: r.CreatedTS,
	}
}

func bucketRowFromDomain(b *domain.Bucket) *BucketRow {
	return &BucketRow{
		BucketID:  b.ID,
		UserID:    b.UserID,
		Name:      b.Name,
		Allocated: decimalToRat(b.Allocated),
		Spent:     decimalToRat(b.Spent),
		Period:    string(b.Period),
		CreatedTS: b.CreatedTS,
	}
}

func (r *RuleRow) toDomain() *domain.Rule {
	rule := &domain.Rule{
		ID:        r.RuleID,
		UserID:    r.UserID,
		Type:      domain.RuleType(r.RuleType),
		Priority:  int(r.Priority),
		BucketID:  r.BucketID,
		CreatedTS: r.CreatedTS,
	}
	switch rule.Type {
	case domain.RuleTypeMerchant:
		rule.Cond = domain.MerchantCondition{Merchant: nullStr(r.Merchant)}
	case domain.RuleTypeCategory:
		rule.Cond = domain.CategoryCondition{Category: nullStr(r.Category)}
	case domain.RuleTypeAmountRange:
		cond := domain.AmountRangeCondition{}
		if r.MinAmount != nil {
			min := ratToDecimal(r.MinAmount)
			cond.Min = &min
		}
		if r.MaxAmount != nil {
			max := ratToDecimal(r.MaxAmount)
			cond.Max = &max
		}
		rule.Cond = cond
	case domain.RuleTypeMerchantCategory:
		rule.Cond = domain.MerchantCategoryCondition{
			MerchantContains: nullStr(r.MerchantContains),
			Category:         nullStr(r.Category),
		}
	}
	return rule
}

func ruleRowFromDomain(rule *domain.Rule) *RuleRow {
	row := &RuleRow{
		RuleID:    rule.ID,
		UserID:    rule.UserID,
		RuleType:  string(rule.Type),
		Priority:  int64(rule.Priority),
		BucketID:  rule.BucketID,
		CreatedTS: rule.CreatedTS,
	}
	switch cond := rule.Condition().(type) {
	case domain.MerchantCondition:
		row.Merchant = toNullStr(cond.Merchant)
	case domain.CategoryCondition:
		row.Category = toNullStr(cond.Category)
	case domain.AmountRangeCondition:
		if cond.Min != nil {
			row.MinAmount = decimalToRat(*cond.Min)
		}
		if cond.Max != nil {
			row.MaxAmount = decimalToRat(*cond.Max)
		}
	case domain.MerchantCategoryCondition:
		row.MerchantContains = toNullStr(cond.MerchantContains)
		row.Category = toNullStr(cond.Category)
	}
	return row
}

func (r *PatternRow) toDomain() *domain.Pattern {
	return &domain.Pattern{
		ID:              r.PatternID,
		UserID:          r.UserID,
		MerchantNorm:    r.MerchantNorm,
		Frequency:       domain.Frequency(r.Frequency),
		AvgAmount:       ratToDecimal(r.AvgAmount),
		ProjectedAnnual: ratToDecimal(r.ProjectedAnnual),
		Status:          domain.PatternStatus(r.Status),
		CreatedTS:       r.CreatedTS,
	}
}

func patternRowFromDomain(p *domain.Pattern) *PatternRow {
	return &PatternRow{
		PatternID:       p.ID,
		UserID:          p.UserID,
		MerchantNorm:    p.MerchantNorm,
		Frequency:       string(p.Frequency),
		AvgAmount:       decimalToRat(p.AvgAmount),
		ProjectedAnnual: decimalToRat(p.ProjectedAnnual),
		Status:          string(p.Status),
		CreatedTS:       p.CreatedTS,
	}
}

package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func tx(merchantNorm, category, amountEUR string) *domain.Transaction {
	return &domain.Transaction{
		Merchant:     merchantNorm,
		MerchantNorm: merchantNorm,
		Category:     category,
		AmountEUR:    dec(amountEUR),
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name string
		rule *domain.Rule
		tx   *domain.Transaction
		want bool
	}{
		{
			name: "merchant exact match case-insensitive",
			rule: &domain.Rule{Type: domain.RuleTypeMerchant, Cond: domain.MerchantCondition{Merchant: "Netflix"}},
			tx:   tx("netflix", "", "12.99"),
			want: true,
		},
		{
			name: "merchant no match",
			rule: &domain.Rule{Type: domain.RuleTypeMerchant, Cond: domain.MerchantCondition{Merchant: "netflix"}},
			tx:   tx("spotify", "", "9.99"),
			want: false,
		},
		{
			name: "category match case-insensitive",
			rule: &domain.Rule{Type: domain.RuleTypeCategory, Cond: domain.CategoryCondition{Category: "loisirs"}},
			tx:   tx("netflix", "Loisirs", "12.99"),
			want: true,
		},
		{
			name: "category never matches empty category",
			rule: &domain.Rule{Type: domain.RuleTypeCategory, Cond: domain.CategoryCondition{Category: "loisirs"}},
			tx:   tx("netflix", "", "12.99"),
			want: false,
		},
		{
			name: "amount range inclusive lower bound",
			rule: &domain.Rule{Type: domain.RuleTypeAmountRange, Cond: domain.AmountRangeCondition{Min: decPtr("10"), Max: decPtr("20")}},
			tx:   tx("x", "", "10"),
			want: true,
		},
		{
			name: "amount range inclusive upper bound",
			rule: &domain.Rule{Type: domain.RuleTypeAmountRange, Cond: domain.AmountRangeCondition{Min: decPtr("10"), Max: decPtr("20")}},
			tx:   tx("x", "", "20"),
			want: true,
		},
		{
			name: "amount range outside",
			rule: &domain.Rule{Type: domain.RuleTypeAmountRange, Cond: domain.AmountRangeCondition{Min: decPtr("10"), Max: decPtr("20")}},
			tx:   tx("x", "", "20.01"),
			want: false,
		},
		{
			name: "amount range open upper bound",
			rule: &domain.Rule{Type: domain.RuleTypeAmountRange, Cond: domain.AmountRangeCondition{Min: decPtr("100")}},
			tx:   tx("x", "", "5000"),
			want: true,
		},
		{
			name: "amount range falls back to original amount",
			rule: &domain.Rule{Type: domain.RuleTypeAmountRange, Cond: domain.AmountRangeCondition{Max: decPtr("50")}},
			tx:   &domain.Transaction{Merchant: "x", Amount: dec("42")},
			want: true,
		},
		{
			name: "merchant_category both conditions hold",
			rule: &domain.Rule{Type: domain.RuleTypeMerchantCategory, Cond: domain.MerchantCategoryCondition{MerchantContains: "carrefour", Category: "Courses"}},
			tx:   tx("carrefour city", "Courses", "55"),
			want: true,
		},
		{
			name: "merchant_category one condition fails",
			rule: &domain.Rule{Type: domain.RuleTypeMerchantCategory, Cond: domain.MerchantCategoryCondition{MerchantContains: "carrefour", Category: "Courses"}},
			tx:   tx("carrefour city", "Essence", "55"),
			want: false,
		},
		{
			name: "merchant_category substring only",
			rule: &domain.Rule{Type: domain.RuleTypeMerchantCategory, Cond: domain.MerchantCategoryCondition{MerchantContains: "uber"}},
			tx:   tx("uber eats", "", "23"),
			want: true,
		},
		{
			name: "merchant_category empty condition never matches",
			rule: &domain.Rule{Type: domain.RuleTypeMerchantCategory, Cond: domain.MerchantCategoryCondition{}},
			tx:   tx("anything", "Anything", "1"),
			want: false,
		},
		{
			name: "condition shape mismatched with type never matches",
			rule: &domain.Rule{Type: domain.RuleTypeMerchant, Cond: domain.CategoryCondition{Category: "Loisirs"}},
			tx:   tx("netflix", "Loisirs", "12.99"),
			want: false,
		},
		{
			name: "nil condition never matches",
			rule: &domain.Rule{Type: domain.RuleTypeMerchant},
			tx:   tx("netflix", "", "12.99"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(tt.rule, tt.tx); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveBucket_PriorityWins(t *testing.T) {
	list := []*domain.Rule{
		{ID: "r1", Type: domain.RuleTypeMerchant, Cond: domain.MerchantCondition{Merchant: "Netflix"}, Priority: 1, BucketID: "B1"},
		{ID: "r2", Type: domain.RuleTypeCategory, Cond: domain.CategoryCondition{Category: "Loisirs"}, Priority: 5, BucketID: "B2"},
	}
	transaction := &domain.Transaction{Merchant: "Netflix", MerchantNorm: "netflix", Category: "Loisirs"}

	got := ResolveBucket(list, transaction)
	if got == nil || *got != "B2" {
		t.Fatalf("ResolveBucket() = %v, want B2", got)
	}
}

func TestResolveBucket_NoMatchReturnsNil(t *testing.T) {
	list := []*domain.Rule{
		{ID: "r1", Type: domain.RuleTypeMerchant, Cond: domain.MerchantCondition{Merchant: "netflix"}, Priority: 1, BucketID: "B1"},
	}
	if got := ResolveBucket(list, tx("spotify", "", "9.99")); got != nil {
		t.Errorf("ResolveBucket() = %v, want nil", *got)
	}
}

func TestResolveBucket_Deterministic(t *testing.T) {
	list := []*domain.Rule{
		{ID: "r2", Type: domain.RuleTypeMerchant, Cond: domain.MerchantCondition{Merchant: "netflix"}, Priority: 3, BucketID: "B2", CreatedTS: time.Unix(200, 0)},
		{ID: "r1", Type: domain.RuleTypeMerchant, Cond: domain.MerchantCondition{Merchant: "netflix"}, Priority: 3, BucketID: "B1", CreatedTS: time.Unix(100, 0)},
	}
	transaction := tx("netflix", "", "12.99")

	for i := 0; i < 10; i++ {
		got := ResolveBucket(list, transaction)
		if got == nil || *got != "B1" {
			t.Fatalf("iteration %d: ResolveBucket() = %v, want B1 (earlier creation wins ties)", i, got)
		}
	}
}

func TestResolveAll(t *testing.T) {
	list := []*domain.Rule{
		{ID: "r1", Type: domain.RuleTypeMerchant, Cond: domain.MerchantCondition{Merchant: "netflix"}, Priority: 2, BucketID: "B1"},
		{ID: "r2", Type: domain.RuleTypeCategory, Cond: domain.CategoryCondition{Category: "Courses"}, Priority: 1, BucketID: "B2"},
	}
	txs := []*domain.Transaction{
		tx("netflix", "", "12.99"),
		tx("carrefour", "Courses", "80"),
		tx("unknown shop", "", "5"),
	}

	got := ResolveAll(list, txs)
	if len(got) != 3 {
		t.Fatalf("ResolveAll() returned %d results, want 3", len(got))
	}
	if got[0] == nil || *got[0] != "B1" {
		t.Errorf("txs[0] resolved to %v, want B1", got[0])
	}
	if got[1] == nil || *got[1] != "B2" {
		t.Errorf("txs[1] resolved to %v, want B2", got[1])
	}
	if got[2] != nil {
		t.Errorf("txs[2] resolved to %v, want nil", *got[2])
	}
}

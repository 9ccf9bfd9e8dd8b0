package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/analytics"
	"github.com/finum/finum/internal/domain"
	"github.com/finum/finum/internal/importer"
	"github.com/finum/finum/internal/ledger"
	"github.com/finum/finum/internal/patterns"
)

// Repository bundles the table operations behind one shared client and
// converts between domain values and row types at the boundary.
type Repository struct {
	client *bigquery.Client
}

var (
	_ ledger.Store    = (*Repository)(nil)
	_ patterns.Store  = (*Repository)(nil)
	_ analytics.Store = (*Repository)(nil)
	_ importer.Store  = (*Repository)(nil)
)

// NewRepository creates a repository with its own BigQuery client.
func NewRepository(ctx context.Context) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client}, nil
}

// NewRepositoryWithClient wraps an existing client. The caller keeps
// ownership of the client.
func NewRepositoryWithClient(client *bigquery.Client) *Repository {
	return &Repository{client: client}
}

// Close releases the underlying client.
func (r *Repository) Close() error {
	return r.client.Close()
}

// --- transactions ---

func (r *Repository) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	return InsertTransactionWithClient(ctx, r.client, transactionRowFromDomain(tx))
}

func (r *Repository) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row, err := GetTransactionWithClient(ctx, r.client, id)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) TransactionExists(ctx context.Context, userID string, date time.Time, amount decimal.Decimal, rawMerchant string) (bool, error) {
	return TransactionExistsWithClient(ctx, r.client, userID, date, decimalToRat(amount), rawMerchant)
}

func (r *Repository) ListTransactionsBetween(ctx context.Context, userID string, from, to time.Time) ([]*domain.Transaction, error) {
	rows, err := QueryTransactionsBetweenWithClient(ctx, r.client, userID, from, to)
	if err != nil {
		return nil, err
	}
	txs := make([]*domain.Transaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, row.toDomain())
	}
	return txs, nil
}

func (r *Repository) ListTransactionsSince(ctx context.Context, userID string, since time.Time) ([]*domain.Transaction, error) {
	// Far-future upper bound keeps this on the Between query path.
	return r.ListTransactionsBetween(ctx, userID, since, time.Now().UTC().AddDate(1, 0, 0))
}

func (r *Repository) RelinkTransaction(ctx context.Context, txID string, oldBucketID, newBucketID *string, amountEUR decimal.Decimal) error {
	return RelinkTransactionWithClient(ctx, r.client, txID, oldBucketID, newBucketID, decimalToRat(amountEUR))
}

func (r *Repository) SumSpentByBucket(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	sums, err := SumSpentByBucketWithClient(ctx, r.client, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(sums))
	for id, total := range sums {
		out[id] = ratToDecimal(total)
	}
	return out, nil
}

func (r *Repository) ClearRecurringTags(ctx context.Context, userID string, since time.Time) error {
	return ClearRecurringTagsWithClient(ctx, r.client, userID, since)
}

func (r *Repository) TagRecurring(ctx context.Context, userID, patternID, merchantNorm string, since time.Time) error {
	return TagRecurringWithClient(ctx, r.client, userID, patternID, merchantNorm, since)
}

// --- buckets ---

func (r *Repository) InsertBucket(ctx context.Context, b *domain.Bucket) error {
	return InsertBucketWithClient(ctx, r.client, bucketRowFromDomain(b))
}

func (r *Repository) GetBucket(ctx context.Context, id string) (*domain.Bucket, error) {
	row, err := GetBucketWithClient(ctx, r.client, id)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) ListBuckets(ctx context.Context, userID string) ([]*domain.Bucket, error) {
	rows, err := ListBucketsWithClient(ctx, r.client, userID)
	if err != nil {
		return nil, err
	}
	buckets := make([]*domain.Bucket, 0, len(rows))
	for _, row := range rows {
		buckets = append(buckets, row.toDomain())
	}
	return buckets, nil
}

func (r *Repository) SetBucketSpent(ctx context.Context, bucketID string, spent decimal.Decimal) error {
	return SetBucketSpentWithClient(ctx, r.client, bucketID, decimalToRat(spent))
}

func (r *Repository) UpdateBucketAllocation(ctx context.Context, b *domain.Bucket) error {
	return UpdateBucketAllocationWithClient(ctx, r.client, bucketRowFromDomain(b))
}

// --- rules ---

func (r *Repository) InsertRule(ctx context.Context, rule *domain.Rule) error {
	return InsertRuleWithClient(ctx, r.client, ruleRowFromDomain(rule))
}

func (r *Repository) ListRules(ctx context.Context, userID string) ([]*domain.Rule, error) {
	rows, err := ListRulesWithClient(ctx, r.client, userID)
	if err != nil {
		return nil, err
	}
	rules := make([]*domain.Rule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.toDomain())
	}
	return rules, nil
}

func (r *Repository) DeleteRule(ctx context.Context, id string) error {
	return DeleteRuleWithClient(ctx, r.client, id)
}

// --- patterns ---

func (r *Repository) InsertPattern(ctx context.Context, p *domain.Pattern) error {
	return InsertPatternWithClient(ctx, r.client, patternRowFromDomain(p))
}

func (r *Repository) GetPattern(ctx context.Context, id string) (*domain.Pattern, error) {
	row, err := GetPatternWithClient(ctx, r.client, id)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) ListPatterns(ctx context.Context, userID string) ([]*domain.Pattern, error) {
	rows, err := ListPatternsWithClient(ctx, r.client, userID)
	if err != nil {
		return nil, err
	}
	patterns := make([]*domain.Pattern, 0, len(rows))
	for _, row := range rows {
		patterns = append(patterns, row.toDomain())
	}
	return patterns, nil
}

func (r *Repository) UpdatePatternAmounts(ctx context.Context, id string, avgAmount, projectedAnnual decimal.Decimal) error {
	return UpdatePatternAmountsWithClient(ctx, r.client, id, decimalToRat(avgAmount), decimalToRat(projectedAnnual))
}

func (r *Repository) UpdatePatternStatus(ctx context.Context, id string, status domain.PatternStatus) error {
	return UpdatePatternStatusWithClient(ctx, r.client, id, string(status))
}

func (r *Repository) DeletePattern(ctx context.Context, id string) error {
	return DeletePatternWithClient(ctx, r.client, id)
}

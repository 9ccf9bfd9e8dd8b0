// Package ledger maintains each bucket's running spent aggregate as
// transactions are linked and unlinked. The aggregate is a denormalized
// cache; Reconcile recomputes it from the linked transactions and is
// the source-of-truth repair path.
package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/domain"
)

// Store is the storage contract the ledger needs. RelinkTransaction
// must commit the two spent adjustments and the bucket pointer update
// together, with the increments applied server-side so concurrent
// relinks touching the same bucket cannot lose an update.
type Store interface {
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetBucket(ctx context.Context, id string) (*domain.Bucket, error)
	ListBuckets(ctx context.Context, userID string) ([]*domain.Bucket, error)
	RelinkTransaction(ctx context.Context, txID string, oldBucketID, newBucketID *string, amountEUR decimal.Decimal) error
	SumSpentByBucket(ctx context.Context, userID string) (map[string]decimal.Decimal, error)
	SetBucketSpent(ctx context.Context, bucketID string, spent decimal.Decimal) error
}

// Service performs bucket link operations against a Store.
type Service struct {
	store Store
	log   zerolog.Logger
}

// NewService creates a ledger service.
func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

// Link assigns a transaction to a bucket (or unassigns it when
// newBucketID is nil), adjusting the affected buckets' spent
// aggregates by the transaction's AmountEUR. Linking to the bucket the
// transaction already belongs to is a no-op. Returns the updated
// transaction, or domain.ErrNotFound when the transaction or target
// bucket does not exist.
func (s *Service) Link(ctx context.Context, txID string, newBucketID *string) (*domain.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("Link: loading transaction %s: %w", txID, err)
	}

	if newBucketID != nil {
		if _, err := s.store.GetBucket(ctx, *newBucketID); err != nil {
			return nil, fmt.Errorf("Link: loading bucket %s: %w", *newBucketID, err)
		}
	}

	if sameBucket(tx.BucketID, newBucketID) {
		return tx, nil
	}

	if err := s.store.RelinkTransaction(ctx, txID, tx.BucketID, newBucketID, tx.AmountEUR); err != nil {
		return nil, fmt.Errorf("Link: relinking transaction %s: %w", txID, err)
	}

	s.log.Info().
		Str("transaction_id", txID).
		Str("old_bucket", strOrNone(tx.BucketID)).
		Str("new_bucket", strOrNone(newBucketID)).
		Str("amount_eur", tx.AmountEUR.String()).
		Msg("Transaction relinked")

	tx.BucketID = newBucketID
	return tx, nil
}

// Drift is one bucket whose cached spent disagreed with the sum of its
// linked transactions at reconcile time.
type Drift struct {
	BucketID string
	Cached   decimal.Decimal
	Actual   decimal.Decimal
}

// Reconcile recomputes every bucket's spent from its currently linked
// transactions and rewrites any bucket that drifted. When incremental
// maintenance has been consistent this is a no-op and returns an empty
// slice.
func (s *Service) Reconcile(ctx context.Context, userID string) ([]Drift, error) {
	buckets, err := s.store.ListBuckets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: listing buckets: %w", err)
	}

	sums, err := s.store.SumSpentByBucket(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: summing transactions: %w", err)
	}

	var drifts []Drift
	for _, bucket := range buckets {
		actual := sums[bucket.ID] // zero when the bucket has no transactions
		if bucket.Spent.Equal(actual) {
			continue
		}
		if err := s.store.SetBucketSpent(ctx, bucket.ID, actual); err != nil {
			return drifts, fmt.Errorf("Reconcile: writing bucket %s: %w", bucket.ID, err)
		}
		s.log.Warn().
			Str("bucket_id", bucket.ID).
			Str("cached", bucket.Spent.String()).
			Str("actual", actual.String()).
			Msg("Bucket spent drifted, repaired")
		drifts = append(drifts, Drift{BucketID: bucket.ID, Cached: bucket.Spent, Actual: actual})
	}

	return drifts, nil
}

func sameBucket(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strOrNone(s *string) string {
	if s == nil {
		return "none"
	}
	return *s
}

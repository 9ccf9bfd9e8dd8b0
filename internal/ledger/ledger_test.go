package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/domain"
)

// memStore is an in-memory Store used to exercise the ledger logic.
// Relink applies both adjustments and the pointer update under one
// lock, mirroring the transactional guarantee the real store gives.
type memStore struct {
	mu      sync.Mutex
	txs     map[string]*domain.Transaction
	buckets map[string]*domain.Bucket
}

func newMemStore() *memStore {
	return &memStore{
		txs:     make(map[string]*domain.Transaction),
		buckets: make(map[string]*domain.Bucket),
	}
}

func (m *memStore) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *memStore) GetBucket(ctx context.Context, id string) (*domain.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) ListBuckets(ctx context.Context, userID string) ([]*domain.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Bucket
	for _, b := range m.buckets {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) RelinkTransaction(ctx context.Context, txID string, oldBucketID, newBucketID *string, amountEUR decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[txID]
	if !ok {
		return domain.ErrNotFound
	}
	if oldBucketID != nil {
		m.buckets[*oldBucketID].Spent = m.buckets[*oldBucketID].Spent.Sub(amountEUR)
	}
	if newBucketID != nil {
		m.buckets[*newBucketID].Spent = m.buckets[*newBucketID].Spent.Add(amountEUR)
	}
	tx.BucketID = newBucketID
	return nil
}

func (m *memStore) SumSpentByBucket(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sums := make(map[string]decimal.Decimal)
	for _, tx := range m.txs {
		if tx.BucketID != nil {
			sums[*tx.BucketID] = sums[*tx.BucketID].Add(tx.AmountEUR)
		}
	}
	return sums, nil
}

func (m *memStore) SetBucketSpent(ctx context.Context, bucketID string, spent decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucketID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Spent = spent
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func strPtr(s string) *string { return &s }

func seedStore() *memStore {
	store := newMemStore()
	store.buckets["A"] = &domain.Bucket{ID: "A", Allocated: dec("300")}
	store.buckets["B"] = &domain.Bucket{ID: "B", Allocated: dec("200")}
	store.txs["t1"] = &domain.Transaction{ID: "t1", AmountEUR: dec("42.50")}
	store.txs["t2"] = &domain.Transaction{ID: "t2", AmountEUR: dec("10.00")}
	return store
}

func TestLink_AssignAndUnassign(t *testing.T) {
	store := seedStore()
	svc := NewService(store, zerolog.Nop())
	ctx := context.Background()

	tx, err := svc.Link(ctx, "t1", strPtr("A"))
	if err != nil {
		t.Fatalf("Link to A failed: %v", err)
	}
	if tx.BucketID == nil || *tx.BucketID != "A" {
		t.Fatalf("transaction bucket = %v, want A", tx.BucketID)
	}
	if got := store.buckets["A"].Spent; !got.Equal(dec("42.50")) {
		t.Errorf("A.spent = %s, want 42.50", got)
	}

	// Unassign decrements the old bucket back to zero.
	if _, err := svc.Link(ctx, "t1", nil); err != nil {
		t.Fatalf("Link to nil failed: %v", err)
	}
	if got := store.buckets["A"].Spent; !got.IsZero() {
		t.Errorf("A.spent after unassign = %s, want 0", got)
	}
}

func TestLink_RelinkConservation(t *testing.T) {
	store := seedStore()
	svc := NewService(store, zerolog.Nop())
	ctx := context.Background()

	if _, err := svc.Link(ctx, "t1", strPtr("A")); err != nil {
		t.Fatalf("initial link failed: %v", err)
	}
	before := store.buckets["A"].Spent.Add(store.buckets["B"].Spent)

	if _, err := svc.Link(ctx, "t1", strPtr("B")); err != nil {
		t.Fatalf("relink failed: %v", err)
	}

	if got := store.buckets["A"].Spent; !got.IsZero() {
		t.Errorf("A.spent = %s, want 0", got)
	}
	if got := store.buckets["B"].Spent; !got.Equal(dec("42.50")) {
		t.Errorf("B.spent = %s, want 42.50", got)
	}
	after := store.buckets["A"].Spent.Add(store.buckets["B"].Spent)
	if !before.Equal(after) {
		t.Errorf("A.spent+B.spent changed across relink: %s -> %s", before, after)
	}
}

func TestLink_SameBucketIsNoOp(t *testing.T) {
	store := seedStore()
	svc := NewService(store, zerolog.Nop())
	ctx := context.Background()

	if _, err := svc.Link(ctx, "t1", strPtr("A")); err != nil {
		t.Fatalf("initial link failed: %v", err)
	}
	if _, err := svc.Link(ctx, "t1", strPtr("A")); err != nil {
		t.Fatalf("repeat link failed: %v", err)
	}
	if got := store.buckets["A"].Spent; !got.Equal(dec("42.50")) {
		t.Errorf("A.spent = %s, want 42.50 (double-counted on repeat link)", got)
	}
}

func TestLink_MissingEntities(t *testing.T) {
	store := seedStore()
	svc := NewService(store, zerolog.Nop())
	ctx := context.Background()

	if _, err := svc.Link(ctx, "nope", strPtr("A")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing transaction: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Link(ctx, "t1", strPtr("nope")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing bucket: err = %v, want ErrNotFound", err)
	}
}

// After any sequence of links, reconcile must find no drift: the
// incremental path and the full recompute agree.
func TestReconcile_MatchesIncremental(t *testing.T) {
	store := seedStore()
	svc := NewService(store, zerolog.Nop())
	ctx := context.Background()

	moves := []struct {
		txID   string
		bucket *string
	}{
		{"t1", strPtr("A")},
		{"t2", strPtr("A")},
		{"t1", strPtr("B")},
		{"t2", nil},
		{"t2", strPtr("B")},
		{"t1", nil},
		{"t1", strPtr("A")},
	}
	for i, mv := range moves {
		if _, err := svc.Link(ctx, mv.txID, mv.bucket); err != nil {
			t.Fatalf("move %d failed: %v", i, err)
		}
	}

	drifts, err := svc.Reconcile(ctx, "user")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(drifts) != 0 {
		t.Errorf("Reconcile found drift after incremental maintenance: %+v", drifts)
	}
	if got := store.buckets["A"].Spent; !got.Equal(dec("42.50")) {
		t.Errorf("A.spent = %s, want 42.50", got)
	}
	if got := store.buckets["B"].Spent; !got.Equal(dec("10.00")) {
		t.Errorf("B.spent = %s, want 10.00", got)
	}
}

func TestReconcile_RepairsDrift(t *testing.T) {
	store := seedStore()
	svc := NewService(store, zerolog.Nop())
	ctx := context.Background()

	if _, err := svc.Link(ctx, "t1", strPtr("A")); err != nil {
		t.Fatalf("link failed: %v", err)
	}

	// Corrupt the cached aggregate behind the ledger's back.
	store.buckets["A"].Spent = dec("999")

	drifts, err := svc.Reconcile(ctx, "user")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(drifts) != 1 || drifts[0].BucketID != "A" {
		t.Fatalf("drifts = %+v, want exactly bucket A", drifts)
	}
	if !drifts[0].Cached.Equal(dec("999")) || !drifts[0].Actual.Equal(dec("42.50")) {
		t.Errorf("drift = %+v, want cached 999 actual 42.50", drifts[0])
	}
	if got := store.buckets["A"].Spent; !got.Equal(dec("42.50")) {
		t.Errorf("A.spent after repair = %s, want 42.50", got)
	}
}

package patterns

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/domain"
)

type memPatternStore struct {
	txs      []*domain.Transaction
	patterns map[string]*domain.Pattern
	deleted  []string
}

func newMemPatternStore() *memPatternStore {
	return &memPatternStore{patterns: make(map[string]*domain.Pattern)}
}

func (m *memPatternStore) ListTransactionsSince(ctx context.Context, userID string, since time.Time) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, tx := range m.txs {
		if !tx.Date.Before(since) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *memPatternStore) ListPatterns(ctx context.Context, userID string) ([]*domain.Pattern, error) {
	var out []*domain.Pattern
	for _, p := range m.patterns {
		out = append(out, p)
	}
	return out, nil
}

func (m *memPatternStore) InsertPattern(ctx context.Context, p *domain.Pattern) error {
	cp := *p
	m.patterns[p.ID] = &cp
	return nil
}

func (m *memPatternStore) UpdatePatternAmounts(ctx context.Context, id string, avgAmount, projectedAnnual decimal.Decimal) error {
	p, ok := m.patterns[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.AvgAmount = avgAmount
	p.ProjectedAnnual = projectedAnnual
	return nil
}

func (m *memPatternStore) DeletePattern(ctx context.Context, id string) error {
	if _, ok := m.patterns[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.patterns, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memPatternStore) ClearRecurringTags(ctx context.Context, userID string, since time.Time) error {
	for _, tx := range m.txs {
		if !tx.Date.Before(since) {
			tx.PatternID = nil
			tx.IsRecurring = false
		}
	}
	return nil
}

func (m *memPatternStore) TagRecurring(ctx context.Context, userID, patternID, merchantNorm string, since time.Time) error {
	for _, tx := range m.txs {
		if !tx.Date.Before(since) && tx.MerchantNorm == merchantNorm {
			id := patternID
			tx.PatternID = &id
			tx.IsRecurring = true
		}
	}
	return nil
}

func newTestService(store *memPatternStore) *Service {
	svc := NewService(store, zerolog.Nop())
	// Pin "now" just after the last seeded transaction so the 12-month
	// window always covers the fixtures.
	svc.now = func() time.Time { return day(90) }
	return svc
}

func TestRefresh_CreatesDetectedPattern(t *testing.T) {
	store := newMemPatternStore()
	store.txs = series("spotify", "9.99", 30, 3)
	svc := newTestService(store)

	active, err := svc.Refresh(context.Background(), "u1", 12)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("Refresh returned %d patterns, want 1", len(active))
	}
	p := active[0]
	if p.Status != domain.PatternStatusDetected {
		t.Errorf("status = %q, want detected", p.Status)
	}
	if !p.ProjectedAnnual.Equal(dec("119.88")) {
		t.Errorf("projectedAnnual = %s, want 119.88", p.ProjectedAnnual)
	}

	// Every spotify transaction in the window is tagged.
	for _, tx := range store.txs {
		if tx.PatternID == nil || *tx.PatternID != p.ID || !tx.IsRecurring {
			t.Errorf("transaction on %s not tagged with pattern", tx.Date.Format("2006-01-02"))
		}
	}
}

func TestRefresh_PreservesUserStatus(t *testing.T) {
	store := newMemPatternStore()
	store.txs = series("spotify", "11.99", 30, 3)
	store.patterns["p1"] = &domain.Pattern{
		ID: "p1", UserID: "u1", MerchantNorm: "spotify",
		Frequency: domain.FrequencyMonthly,
		AvgAmount: dec("9.99"), ProjectedAnnual: dec("119.88"),
		Status: domain.PatternStatusBudgeted,
	}
	svc := newTestService(store)

	if _, err := svc.Refresh(context.Background(), "u1", 12); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	p := store.patterns["p1"]
	if p.Status != domain.PatternStatusBudgeted {
		t.Errorf("status = %q, refresh must not touch user curation", p.Status)
	}
	if !p.AvgAmount.Equal(dec("11.99")) {
		t.Errorf("avgAmount = %s, want refreshed 11.99", p.AvgAmount)
	}
	if !p.ProjectedAnnual.Equal(dec("143.88")) {
		t.Errorf("projectedAnnual = %s, want 143.88", p.ProjectedAnnual)
	}
}

func TestRefresh_PrunesOnlyDetected(t *testing.T) {
	store := newMemPatternStore()
	// No transactions at all: nothing recurs anymore.
	store.patterns["stale-detected"] = &domain.Pattern{
		ID: "stale-detected", UserID: "u1", MerchantNorm: "old gym",
		Frequency: domain.FrequencyMonthly, Status: domain.PatternStatusDetected,
	}
	store.patterns["stale-budgeted"] = &domain.Pattern{
		ID: "stale-budgeted", UserID: "u1", MerchantNorm: "old insurance",
		Frequency: domain.FrequencyMonthly, Status: domain.PatternStatusBudgeted,
	}
	store.patterns["stale-ignored"] = &domain.Pattern{
		ID: "stale-ignored", UserID: "u1", MerchantNorm: "old paper",
		Frequency: domain.FrequencyWeekly, Status: domain.PatternStatusIgnored,
	}
	svc := newTestService(store)

	if _, err := svc.Refresh(context.Background(), "u1", 12); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if _, ok := store.patterns["stale-detected"]; ok {
		t.Error("stale detected pattern was not pruned")
	}
	if _, ok := store.patterns["stale-budgeted"]; !ok {
		t.Error("budgeted pattern was pruned; user-curated patterns must survive refresh")
	}
	if _, ok := store.patterns["stale-ignored"]; !ok {
		t.Error("ignored pattern was pruned; user-curated patterns must survive refresh")
	}
}

func TestRefresh_RetagClearsOldAssignments(t *testing.T) {
	store := newMemPatternStore()
	stale := "gone"
	store.txs = series("spotify", "9.99", 30, 3)
	// A window transaction still tagged with a pattern that no longer exists.
	store.txs = append(store.txs, &domain.Transaction{
		MerchantNorm: "corner shop", AmountEUR: dec("4"), Date: day(10),
		PatternID: &stale, IsRecurring: true,
	})
	svc := newTestService(store)

	if _, err := svc.Refresh(context.Background(), "u1", 12); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	last := store.txs[len(store.txs)-1]
	if last.PatternID != nil || last.IsRecurring {
		t.Errorf("non-recurring transaction kept stale tag: %+v", last)
	}
}

func TestGetPatterns_BlindSpots(t *testing.T) {
	store := newMemPatternStore()
	bucketID := "B1"
	patternID := "p1"
	store.patterns[patternID] = &domain.Pattern{
		ID: patternID, UserID: "u1", MerchantNorm: "spotify",
		Frequency: domain.FrequencyMonthly, Status: domain.PatternStatusDetected,
	}
	store.txs = []*domain.Transaction{
		{MerchantNorm: "spotify", Date: day(0), PatternID: &patternID, BucketID: &bucketID},
		{MerchantNorm: "spotify", Date: day(30), PatternID: &patternID, BucketID: &bucketID},
		{MerchantNorm: "spotify", Date: day(60), PatternID: &patternID},
	}
	svc := newTestService(store)

	result, err := svc.GetPatterns(context.Background(), "u1", 12)
	if err != nil {
		t.Fatalf("GetPatterns failed: %v", err)
	}
	if len(result.Patterns) != 1 {
		t.Fatalf("patterns = %d, want 1", len(result.Patterns))
	}
	if len(result.BlindSpots) != 1 {
		t.Fatalf("blindSpots = %d, want 1", len(result.BlindSpots))
	}
	if result.BlindSpots[0].UnassignedCount != 1 {
		t.Errorf("unassignedCount = %d, want 1", result.BlindSpots[0].UnassignedCount)
	}
}

func TestGetPatterns_NoBlindSpotWhenFullyAssigned(t *testing.T) {
	store := newMemPatternStore()
	bucketID := "B1"
	patternID := "p1"
	store.patterns[patternID] = &domain.Pattern{
		ID: patternID, UserID: "u1", MerchantNorm: "spotify",
		Frequency: domain.FrequencyMonthly, Status: domain.PatternStatusDetected,
	}
	store.txs = []*domain.Transaction{
		{MerchantNorm: "spotify", Date: day(0), PatternID: &patternID, BucketID: &bucketID},
		{MerchantNorm: "spotify", Date: day(30), PatternID: &patternID, BucketID: &bucketID},
	}
	svc := newTestService(store)

	result, err := svc.GetPatterns(context.Background(), "u1", 12)
	if err != nil {
		t.Fatalf("GetPatterns failed: %v", err)
	}
	if len(result.BlindSpots) != 0 {
		t.Errorf("blindSpots = %+v, want none", result.BlindSpots)
	}
}

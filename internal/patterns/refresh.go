package patterns

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/domain"
)

// DefaultLookbackMonths is the trailing detection window used when the
// caller does not specify one.
const DefaultLookbackMonths = 12

// Store is the storage contract the pattern service needs.
type Store interface {
	ListTransactionsSince(ctx context.Context, userID string, since time.Time) ([]*domain.Transaction, error)
	ListPatterns(ctx context.Context, userID string) ([]*domain.Pattern, error)
	InsertPattern(ctx context.Context, p *domain.Pattern) error
	UpdatePatternAmounts(ctx context.Context, id string, avgAmount, projectedAnnual decimal.Decimal) error
	DeletePattern(ctx context.Context, id string) error
	// ClearRecurringTags resets pattern_id and is_recurring on every
	// transaction of the user inside the window.
	ClearRecurringTags(ctx context.Context, userID string, since time.Time) error
	// TagRecurring links all of the user's window transactions with the
	// given normalized merchant to the pattern.
	TagRecurring(ctx context.Context, userID, patternID, merchantNorm string, since time.Time) error
}

// Service runs pattern detection against storage and maintains the
// stored pattern set. Refresh owns the derived numeric fields only;
// Status belongs to the user-facing update path and is never written
// here.
type Service struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewService creates a pattern service.
func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

func patternKey(merchantNorm string, freq domain.Frequency) string {
	return merchantNorm + "|" + string(freq)
}

// Refresh re-runs detection over the trailing lookback window and
// reconciles the stored patterns with the result: new candidates are
// created with status detected, existing ones get their amounts
// updated, and detected-status patterns no longer produced by the pass
// are deleted. Patterns the user set to budgeted or ignored are kept
// even when detection no longer finds them. Afterwards every window
// transaction is re-tagged from scratch against the refreshed set.
// Returns the patterns active after the pass.
func (s *Service) Refresh(ctx context.Context, userID string, lookbackMonths int) ([]*domain.Pattern, error) {
	if lookbackMonths <= 0 {
		lookbackMonths = DefaultLookbackMonths
	}
	since := s.now().AddDate(0, -lookbackMonths, 0)

	txs, err := s.store.ListTransactionsSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("Refresh: listing transactions: %w", err)
	}
	candidates := Detect(txs)

	existing, err := s.store.ListPatterns(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Refresh: listing patterns: %w", err)
	}
	byKey := make(map[string]*domain.Pattern, len(existing))
	for _, p := range existing {
		byKey[patternKey(p.MerchantNorm, p.Frequency)] = p
	}

	detected := make(map[string]bool, len(candidates))
	var active []*domain.Pattern
	for _, cand := range candidates {
		key := patternKey(cand.MerchantNorm, cand.Frequency)
		detected[key] = true

		if p, ok := byKey[key]; ok {
			projected := cand.ProjectedAnnual()
			if err := s.store.UpdatePatternAmounts(ctx, p.ID, cand.AvgAmount, projected); err != nil {
				return nil, fmt.Errorf("Refresh: updating pattern %s: %w", p.ID, err)
			}
			p.AvgAmount = cand.AvgAmount
			p.ProjectedAnnual = projected
			active = append(active, p)
			continue
		}

		p := &domain.Pattern{
			ID:              uuid.NewString(),
			UserID:          userID,
			MerchantNorm:    cand.MerchantNorm,
			Frequency:       cand.Frequency,
			AvgAmount:       cand.AvgAmount,
			ProjectedAnnual: cand.ProjectedAnnual(),
			Status:          domain.PatternStatusDetected,
			CreatedTS:       s.now(),
		}
		if err := s.store.InsertPattern(ctx, p); err != nil {
			return nil, fmt.Errorf("Refresh: inserting pattern for %s: %w", cand.MerchantNorm, err)
		}
		byKey[key] = p
		active = append(active, p)
		s.log.Info().
			Str("user_id", userID).
			Str("merchant", cand.MerchantNorm).
			Str("frequency", string(cand.Frequency)).
			Int("occurrences", cand.Count).
			Msg("New recurring pattern detected")
	}

	// Prune stale detected-status patterns. Budgeted/ignored patterns
	// outlive the recurrence that produced them; the user owns those.
	for _, p := range existing {
		key := patternKey(p.MerchantNorm, p.Frequency)
		if detected[key] || p.Status != domain.PatternStatusDetected {
			continue
		}
		if err := s.store.DeletePattern(ctx, p.ID); err != nil {
			return nil, fmt.Errorf("Refresh: deleting stale pattern %s: %w", p.ID, err)
		}
		delete(byKey, key)
		s.log.Info().
			Str("user_id", userID).
			Str("merchant", p.MerchantNorm).
			Str("frequency", string(p.Frequency)).
			Msg("Stale pattern pruned")
	}

	// Full window-scoped re-tag, not incremental: clear, then tag from
	// the refreshed set.
	if err := s.store.ClearRecurringTags(ctx, userID, since); err != nil {
		return nil, fmt.Errorf("Refresh: clearing recurring tags: %w", err)
	}
	for _, p := range active {
		if err := s.store.TagRecurring(ctx, userID, p.ID, p.MerchantNorm, since); err != nil {
			return nil, fmt.Errorf("Refresh: tagging transactions for %s: %w", p.MerchantNorm, err)
		}
	}

	return active, nil
}

// BlindSpot is a detected pattern that still has unassigned
// (bucketless) transactions in the lookback window.
type BlindSpot struct {
	Pattern         *domain.Pattern `json:"pattern"`
	UnassignedCount int             `json:"unassigned_count"`
}

// Result bundles the stored patterns with their blind spots.
type Result struct {
	Patterns   []*domain.Pattern `json:"patterns"`
	BlindSpots []BlindSpot       `json:"blind_spots"`
}

// GetPatterns returns the user's stored patterns and flags the blind
// spots: patterns whose linked window transactions include at least one
// with no bucket.
func (s *Service) GetPatterns(ctx context.Context, userID string, lookbackMonths int) (*Result, error) {
	if lookbackMonths <= 0 {
		lookbackMonths = DefaultLookbackMonths
	}
	since := s.now().AddDate(0, -lookbackMonths, 0)

	patterns, err := s.store.ListPatterns(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetPatterns: listing patterns: %w", err)
	}

	txs, err := s.store.ListTransactionsSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("GetPatterns: listing transactions: %w", err)
	}

	unassigned := make(map[string]int)
	for _, tx := range txs {
		if tx.PatternID != nil && tx.BucketID == nil {
			unassigned[*tx.PatternID]++
		}
	}

	result := &Result{Patterns: patterns}
	for _, p := range patterns {
		if count := unassigned[p.ID]; count > 0 {
			result.BlindSpots = append(result.BlindSpots, BlindSpot{Pattern: p, UnassignedCount: count})
		}
	}
	return result, nil
}

// Package importer turns structured bank-export rows into stored
// transactions: convert to EUR, canonicalize the merchant, auto-assign
// a bucket through the rule set and link it through the ledger. Rows
// succeed or fail independently; one bad row never aborts the batch.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/domain"
	"github.com/finum/finum/internal/fx"
	"github.com/finum/finum/internal/merchant"
	"github.com/finum/finum/internal/rules"
)

// Row is one already-parsed line of a bank export.
type Row struct {
	Date     time.Time       `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Merchant string          `json:"merchant"`
	Category string          `json:"category,omitempty"`
}

// RowError is one failed row of a batch.
type RowError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Result summarizes a batch import. Created + Duplicates + len(Errors)
// always equals the number of submitted rows.
type Result struct {
	Created    int        `json:"created"`
	Duplicates int        `json:"duplicates"`
	Errors     []RowError `json:"errors"`
}

// Store is the storage contract the importer needs.
type Store interface {
	// TransactionExists reports whether the user already has a
	// transaction with this date, original amount and raw merchant.
	TransactionExists(ctx context.Context, userID string, date time.Time, amount decimal.Decimal, rawMerchant string) (bool, error)
	InsertTransaction(ctx context.Context, tx *domain.Transaction) error
	ListRules(ctx context.Context, userID string) ([]*domain.Rule, error)
}

// Linker links a stored transaction to a bucket, adjusting the bucket
// aggregates. Satisfied by ledger.Service.
type Linker interface {
	Link(ctx context.Context, txID string, newBucketID *string) (*domain.Transaction, error)
}

// Service imports transaction rows.
type Service struct {
	store     Store
	converter fx.Converter
	linker    Linker
	log       zerolog.Logger
}

// NewService creates an importer.
func NewService(store Store, converter fx.Converter, linker Linker, log zerolog.Logger) *Service {
	return &Service{store: store, converter: converter, linker: linker, log: log}
}

// Import processes the rows one by one and reports per-row outcomes.
// The rule set is fetched once for the whole batch. The returned error
// covers batch-level failures only (rules could not be loaded); row
// failures land in Result.Errors.
func (s *Service) Import(ctx context.Context, userID string, batch []Row) (*Result, error) {
	ruleSet, err := s.store.ListRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Import: listing rules: %w", err)
	}
	rules.SortRules(ruleSet)

	result := &Result{}
	for i, row := range batch {
		if err := s.importRow(ctx, userID, ruleSet, row, result); err != nil {
			result.Errors = append(result.Errors, RowError{Index: i, Reason: err.Error()})
			s.log.Warn().
				Err(err).
				Int("row", i).
				Str("merchant", row.Merchant).
				Msg("Import row failed")
		}
	}

	s.log.Info().
		Str("user_id", userID).
		Int("created", result.Created).
		Int("duplicates", result.Duplicates).
		Int("errors", len(result.Errors)).
		Msg("Import batch finished")

	return result, nil
}

func (s *Service) importRow(ctx context.Context, userID string, ruleSet []*domain.Rule, row Row, result *Result) error {
	if row.Date.IsZero() {
		return fmt.Errorf("missing date")
	}
	if row.Merchant == "" {
		return fmt.Errorf("missing merchant")
	}

	amountEUR, err := s.converter.ToEUR(row.Amount, row.Currency)
	if err != nil {
		return fmt.Errorf("converting %s %s: %w", row.Amount, row.Currency, err)
	}

	exists, err := s.store.TransactionExists(ctx, userID, row.Date, row.Amount, row.Merchant)
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}
	if exists {
		result.Duplicates++
		return nil
	}

	tx := &domain.Transaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Date:         row.Date,
		Amount:       row.Amount,
		Currency:     row.Currency,
		AmountEUR:    amountEUR,
		Merchant:     row.Merchant,
		MerchantNorm: merchant.Normalize(row.Merchant),
		Category:     row.Category,
		CreatedTS:    time.Now(),
	}
	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	result.Created++

	// Auto-assignment goes through the ledger so the bucket aggregate
	// moves with the link. A failed link leaves the row imported but
	// unassigned; the reconcile path cannot drift from this.
	if bucketID := rules.ResolveBucket(ruleSet, tx); bucketID != nil {
		if _, err := s.linker.Link(ctx, tx.ID, bucketID); err != nil {
			s.log.Warn().
				Err(err).
				Str("transaction_id", tx.ID).
				Str("bucket_id", *bucketID).
				Msg("Auto-assign link failed, transaction left unassigned")
		}
	}

	return nil
}

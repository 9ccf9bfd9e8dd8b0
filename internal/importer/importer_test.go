package importer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/domain"
	"github.com/finum/finum/internal/fx"
)

type memImportStore struct {
	txs   []*domain.Transaction
	rules []*domain.Rule
}

func (m *memImportStore) TransactionExists(ctx context.Context, userID string, date time.Time, amount decimal.Decimal, rawMerchant string) (bool, error) {
	for _, tx := range m.txs {
		if tx.UserID == userID && tx.Date.Equal(date) && tx.Amount.Equal(amount) && tx.Merchant == rawMerchant {
			return true, nil
		}
	}
	return false, nil
}

func (m *memImportStore) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	cp := *tx
	m.txs = append(m.txs, &cp)
	return nil
}

func (m *memImportStore) ListRules(ctx context.Context, userID string) ([]*domain.Rule, error) {
	return m.rules, nil
}

type recordingLinker struct {
	linked map[string]string
}

func (l *recordingLinker) Link(ctx context.Context, txID string, newBucketID *string) (*domain.Transaction, error) {
	if l.linked == nil {
		l.linked = make(map[string]string)
	}
	if newBucketID != nil {
		l.linked[txID] = *newBucketID
	}
	return &domain.Transaction{ID: txID, BucketID: newBucketID}, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestImport_PartialFailure(t *testing.T) {
	store := &memImportStore{}
	linker := &recordingLinker{}
	svc := NewService(store, fx.NewStaticConverter(fx.DefaultRates()), linker, zerolog.Nop())

	batch := []Row{
		{Date: date("2025-03-01"), Amount: dec("12.99"), Currency: "EUR", Merchant: "NETFLIX.COM 1234"},
		{Date: date("2025-03-02"), Amount: dec("9.99"), Currency: "XXX", Merchant: "Mystery"}, // unknown currency
		{Date: date("2025-03-03"), Amount: dec("20.00"), Currency: "USD", Merchant: "Amazon"},
		{Amount: dec("5.00"), Currency: "EUR", Merchant: "No Date"}, // missing date
	}

	result, err := svc.Import(context.Background(), "u1", batch)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if result.Created != 2 {
		t.Errorf("created = %d, want 2", result.Created)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("errors = %+v, want 2", result.Errors)
	}
	if result.Errors[0].Index != 1 || result.Errors[1].Index != 3 {
		t.Errorf("error indexes = %d, %d, want 1 and 3", result.Errors[0].Index, result.Errors[1].Index)
	}
	if result.Created+result.Duplicates+len(result.Errors) != len(batch) {
		t.Errorf("outcome counts do not add up to batch size")
	}
}

func TestImport_ConvertsAndNormalizes(t *testing.T) {
	store := &memImportStore{}
	svc := NewService(store, fx.NewStaticConverter(fx.DefaultRates()), &recordingLinker{}, zerolog.Nop())

	batch := []Row{{Date: date("2025-03-03"), Amount: dec("20.00"), Currency: "USD", Merchant: "NETFLIX.COM 1234"}}
	if _, err := svc.Import(context.Background(), "u1", batch); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if len(store.txs) != 1 {
		t.Fatalf("stored %d transactions, want 1", len(store.txs))
	}
	tx := store.txs[0]
	if !tx.AmountEUR.Equal(dec("18.40")) {
		t.Errorf("amountEUR = %s, want 18.40 (20 USD at 0.92)", tx.AmountEUR)
	}
	if tx.MerchantNorm != "netflix.com" {
		t.Errorf("merchantNorm = %q, want netflix.com", tx.MerchantNorm)
	}
}

func TestImport_SkipsDuplicates(t *testing.T) {
	store := &memImportStore{}
	svc := NewService(store, fx.NewStaticConverter(nil), &recordingLinker{}, zerolog.Nop())

	row := Row{Date: date("2025-03-01"), Amount: dec("12.99"), Currency: "EUR", Merchant: "Netflix"}

	first, err := svc.Import(context.Background(), "u1", []Row{row})
	if err != nil || first.Created != 1 {
		t.Fatalf("first import: result=%+v err=%v", first, err)
	}
	second, err := svc.Import(context.Background(), "u1", []Row{row})
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	if second.Duplicates != 1 || second.Created != 0 {
		t.Errorf("second import = %+v, want 1 duplicate 0 created", second)
	}
	if len(store.txs) != 1 {
		t.Errorf("stored %d transactions, want 1", len(store.txs))
	}
}

func TestImport_AutoAssignsThroughLinker(t *testing.T) {
	store := &memImportStore{
		rules: []*domain.Rule{
			{ID: "r1", Type: domain.RuleTypeMerchant, Cond: domain.MerchantCondition{Merchant: "netflix.com"}, Priority: 1, BucketID: "B1"},
		},
	}
	linker := &recordingLinker{}
	svc := NewService(store, fx.NewStaticConverter(nil), linker, zerolog.Nop())

	batch := []Row{
		{Date: date("2025-03-01"), Amount: dec("12.99"), Currency: "EUR", Merchant: "NETFLIX.COM 1234"},
		{Date: date("2025-03-02"), Amount: dec("4.50"), Currency: "EUR", Merchant: "Corner Shop"},
	}
	if _, err := svc.Import(context.Background(), "u1", batch); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if len(linker.linked) != 1 {
		t.Fatalf("linked %d transactions, want 1", len(linker.linked))
	}
	for _, bucketID := range linker.linked {
		if bucketID != "B1" {
			t.Errorf("linked to %q, want B1", bucketID)
		}
	}
}

package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/finum/finum/internal/domain"
)

const transactionColumns = `
	transaction_id,
	user_id,
	transaction_date,
	amount,
	currency,
	amount_eur,
	merchant_raw,
	merchant_norm,
	category,
	bucket_id,
	pattern_id,
	is_recurring,
	created_ts,
	updated_ts
`

// InsertTransactionWithClient inserts a single transaction row using
// DML so the row is immediately updatable (streaming-buffer rows are
// not, and imports relink rows right away).
func InsertTransactionWithClient(ctx context.Context, client *bigquery.Client, row *TransactionRow) error {
	query := `
		INSERT INTO ` + tableRef(transactionsTable) + ` (
			transaction_id, user_id, transaction_date,
			amount, currency, amount_eur,
			merchant_raw, merchant_norm, category,
			bucket_id, pattern_id, is_recurring,
			created_ts
		)
		VALUES (
			@transaction_id, @user_id, @transaction_date,
			@amount, @currency, @amount_eur,
			@merchant_raw, @merchant_norm, @category,
			@bucket_id, @pattern_id, @is_recurring,
			@created_ts
		)
	`
	params := []bigquery.QueryParameter{
		{Name: "transaction_id", Value: row.TransactionID},
		{Name: "user_id", Value: row.UserID},
		{Name: "transaction_date", Value: row.TransactionDate},
		{Name: "amount", Value: row.Amount},
		{Name: "currency", Value: row.Currency},
		{Name: "amount_eur", Value: row.AmountEUR},
		{Name: "merchant_raw", Value: row.MerchantRaw},
		{Name: "merchant_norm", Value: row.MerchantNorm},
		{Name: "category", Value: row.Category},
		{Name: "bucket_id", Value: row.BucketID},
		{Name: "pattern_id", Value: row.PatternID},
		{Name: "is_recurring", Value: row.IsRecurring},
		{Name: "created_ts", Value: row.CreatedTS},
	}
	if err := runDML(ctx, client, query, params); err != nil {
		return fmt.Errorf("InsertTransactionWithClient: %w", err)
	}
	return nil
}

// GetTransactionWithClient retrieves a transaction by ID. Returns
// domain.ErrNotFound when no row matches.
func GetTransactionWithClient(ctx context.Context, client *bigquery.Client, id string) (*TransactionRow, error) {
	q := client.Query(`
		SELECT ` + transactionColumns + `
		FROM ` + tableRef(transactionsTable) + `
		WHERE transaction_id = @transaction_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetTransactionWithClient: reading query: %w", err)
	}

	var row TransactionRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetTransactionWithClient: transaction %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransactionWithClient: iterating: %w", err)
	}
	return &row, nil
}

// TransactionExistsWithClient reports whether the user already has a
// transaction with the same date, original amount and raw merchant.
// This is the duplicate check used by imports.
func TransactionExistsWithClient(ctx context.Context, client *bigquery.Client, userID string, date time.Time, amount *big.Rat, merchantRaw string) (bool, error) {
	q := client.Query(`
		SELECT COUNT(*) AS n
		FROM ` + tableRef(transactionsTable) + `
		WHERE user_id = @user_id
		  AND transaction_date = @transaction_date
		  AND amount = @amount
		  AND merchant_raw = @merchant_raw
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "transaction_date", Value: date.Format(dateFormat)},
		{Name: "amount", Value: amount},
		{Name: "merchant_raw", Value: merchantRaw},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("TransactionExistsWithClient: reading query: %w", err)
	}

	var row struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&row); err != nil {
		return false, fmt.Errorf("TransactionExistsWithClient: iterating: %w", err)
	}
	return row.N > 0, nil
}

// QueryTransactionsBetweenWithClient returns the user's transactions
// with from <= transaction_date <= to, ordered by date.
func QueryTransactionsBetweenWithClient(ctx context.Context, client *bigquery.Client, userID string, from, to time.Time) ([]*TransactionRow, error) {
	q := client.Query(`
		SELECT ` + transactionColumns + `
		FROM ` + tableRef(transactionsTable) + `
		WHERE user_id = @user_id
		  AND transaction_date >= @from_date
		  AND transaction_date <= @to_date
		ORDER BY transaction_date, created_ts
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "from_date", Value: from.Format(dateFormat)},
		{Name: "to_date", Value: to.Format(dateFormat)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsBetweenWithClient: reading query: %w", err)
	}

	var rows []*TransactionRow
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsBetweenWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

// SumSpentByBucketWithClient sums amount_eur per bucket over the user's
// currently linked transactions. Buckets with no transactions are
// absent from the result.
func SumSpentByBucketWithClient(ctx context.Context, client *bigquery.Client, userID string) (map[string]*big.Rat, error) {
	q := client.Query(`
		SELECT bucket_id, SUM(amount_eur) AS total
		FROM ` + tableRef(transactionsTable) + `
		WHERE user_id = @user_id
		  AND bucket_id IS NOT NULL
		GROUP BY bucket_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("SumSpentByBucketWithClient: reading query: %w", err)
	}

	sums := make(map[string]*big.Rat)
	for {
		var row struct {
			BucketID string   `bigquery:"bucket_id"`
			Total    *big.Rat `bigquery:"total"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("SumSpentByBucketWithClient: iterating: %w", err)
		}
		sums[row.BucketID] = row.Total
	}
	return sums, nil
}

// RelinkTransactionWithClient moves a transaction between buckets. The
// spent adjustments and the pointer update run in one multi-statement
// transaction with server-side increments, so concurrent relinks
// cannot lose an update and readers never see a partial state.
func RelinkTransactionWithClient(ctx context.Context, client *bigquery.Client, txID string, oldBucketID, newBucketID *string, amountEUR *big.Rat) error {
	var sb strings.Builder
	params := []bigquery.QueryParameter{
		{Name: "transaction_id", Value: txID},
		{Name: "amount", Value: amountEUR},
	}

	sb.WriteString("BEGIN TRANSACTION;\n")
	if oldBucketID != nil {
		sb.WriteString("UPDATE " + tableRef(bucketsTable) + "\n")
		sb.WriteString("SET spent = spent - @amount, updated_ts = CURRENT_TIMESTAMP()\n")
		sb.WriteString("WHERE bucket_id = @old_bucket_id;\n")
		params = append(params, bigquery.QueryParameter{Name: "old_bucket_id", Value: *oldBucketID})
	}
	if newBucketID != nil {
		sb.WriteString("UPDATE " + tableRef(bucketsTable) + "\n")
		sb.WriteString("SET spent = spent + @amount, updated_ts = CURRENT_TIMESTAMP()\n")
		sb.WriteString("WHERE bucket_id = @new_bucket_id;\n")
		params = append(params, bigquery.QueryParameter{Name: "new_bucket_id", Value: *newBucketID})
		sb.WriteString("UPDATE " + tableRef(transactionsTable) + "\n")
		sb.WriteString("SET bucket_id = @new_bucket_id, updated_ts = CURRENT_TIMESTAMP()\n")
		sb.WriteString("WHERE transaction_id = @transaction_id;\n")
	} else {
		sb.WriteString("UPDATE " + tableRef(transactionsTable) + "\n")
		sb.WriteString("SET bucket_id = NULL, updated_ts = CURRENT_TIMESTAMP()\n")
		sb.WriteString("WHERE transaction_id = @transaction_id;\n")
	}
	sb.WriteString("COMMIT TRANSACTION;")

	if err := runDML(ctx, client, sb.String(), params); err != nil {
		return fmt.Errorf("RelinkTransactionWithClient: %w", err)
	}
	return nil
}

// ClearRecurringTagsWithClient resets pattern_id and is_recurring on
// every transaction of the user inside the window.
func ClearRecurringTagsWithClient(ctx context.Context, client *bigquery.Client, userID string, since time.Time) error {
	query := `
		UPDATE ` + tableRef(transactionsTable) + `
		SET pattern_id = NULL, is_recurring = FALSE, updated_ts = CURRENT_TIMESTAMP()
		WHERE user_id = @user_id
		  AND transaction_date >= @since_date
	`
	params := []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "since_date", Value: since.Format(dateFormat)},
	}
	if err := runDML(ctx, client, query, params); err != nil {
		return fmt.Errorf("ClearRecurringTagsWithClient: %w", err)
	}
	return nil
}

// TagRecurringWithClient links the user's window transactions with the
// given normalized merchant to a pattern.
func TagRecurringWithClient(ctx context.Context, client *bigquery.Client, userID, patternID, merchantNorm string, since time.Time) error {
	query := `
		UPDATE ` + tableRef(transactionsTable) + `
		SET pattern_id = @pattern_id, is_recurring = TRUE, updated_ts = CURRENT_TIMESTAMP()
		WHERE user_id = @user_id
		  AND merchant_norm = @merchant_norm
		  AND transaction_date >= @since_date
	`
	params := []bigquery.QueryParameter{
		{Name: "pattern_id", Value: patternID},
		{Name: "user_id", Value: userID},
		{Name: "merchant_norm", Value: merchantNorm},
		{Name: "since_date", Value: since.Format(dateFormat)},
	}
	if err := runDML(ctx, client, query, params); err != nil {
		return fmt.Errorf("TagRecurringWithClient: %w", err)
	}
	return nil
}

package bigquery

import (
	"context"
	"fmt"
	"math/big"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/finum/finum/internal/domain"
)

const bucketColumns = `
	bucket_id,
	user_id,
	name,
	allocated,
	spent,
	period,
	created_ts,
	updated_ts
`

// InsertBucketWithClient inserts a bucket row.
func InsertBucketWithClient(ctx context.Context, client *bigquery.Client, row *BucketRow) error {
	query := `
		INSERT INTO ` + tableRef(bucketsTable) + ` (
			bucket_id, user_id, name, allocated, spent, period, created_ts
		)
		VALUES (
			@bucket_id, @user_id, @name, @allocated, @spent, @period, @created_ts
		)
	`
	params := []bigquery.QueryParameter{
		{Name: "bucket_id", Value: row.BucketID},
		{Name: "user_id", Value: row.UserID},
		{Name: "name", Value: row.Name},
		{Name: "allocated", Value: row.Allocated},
		{Name: "spent", Value: row.Spent},
		{Name: "period", Value: row.Period},
		{Name: "created_ts", Value: row.CreatedTS},
	}
	if err := runDML(ctx, client, query, params); err != nil {
		return fmt.Errorf("InsertBucketWithClient: %w", err)
	}
	return nil
}

// GetBucketWithClient retrieves a bucket by ID. Returns
// domain.ErrNotFound when no row matches.
func GetBucketWithClient(ctx context.Context, client *bigquery.Client, id string) (*BucketRow, error) {
	q := client.Query(`
		SELECT ` + bucketColumns + `
		FROM ` + tableRef(bucketsTable) + `
		WHERE bucket_id = @bucket_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "bucket_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetBucketWithClient: reading query: %w", err)
	}

	var row BucketRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetBucketWithClient: bucket %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetBucketWithClient: iterating: %w", err)
	}
	return &row, nil
}

// ListBucketsWithClient retrieves all buckets of a user.
func ListBucketsWithClient(ctx context.Context, client *bigquery.Client, userID string) ([]*BucketRow, error) {
	q := client.Query(`
		SELECT ` + bucketColumns + `
		FROM ` + tableRef(bucketsTable) + `
		WHERE user_id = @user_id
		ORDER BY created_ts
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListBucketsWithClient: reading query: %w", err)
	}

	var rows []*BucketRow
	for {
		var row BucketRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListBucketsWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

// SetBucketSpentWithClient overwrites a bucket's spent aggregate. Only
// the reconcile path uses this; incremental maintenance goes through
// RelinkTransactionWithClient.
func SetBucketSpentWithClient(ctx context.Context, client *bigquery.Client, bucketID string, spent *big.Rat) error {
	query := `
		UPDATE ` + tableRef(bucketsTable) + `
		SET spent = @spent, updated_ts = CURRENT_TIMESTAMP()
		WHERE bucket_id = @bucket_id
	`
	params := []bigquery.QueryParameter{
		{Name: "spent", Value: spent},
		{Name: "bucket_id", Value: bucketID},
	}
	if err := runDML(ctx, client, query, params); err != nil {
		return fmt.Errorf("SetBucketSpentWithClient: %w", err)
	}
	return nil
}

// UpdateBucketAllocationWithClient updates a bucket's name, allocation
// and period.
func UpdateBucketAllocationWithClient(ctx context.Context, client *bigquery.Client, row *BucketRow) error {
	query := `
		UPDATE ` + tableRef(bucketsTable) + `
		SET name = @name, allocated = @allocated, period = @period, updated_ts = CURRENT_TIMESTAMP()
		WHERE bucket_id = @bucket_id
	`
	params := []bigquery.QueryParameter{
		{Name: "name", Value: row.Name},
		{Name: "allocated", Value: row.Allocated},
		{Name: "period", Value: row.Period},
		{Name: "bucket_id", Value: row.BucketID},
	}
	if err := runDML(ctx, client, query, params); err != nil {
		return fmt.Errorf("UpdateBucketAllocationWithClient: %w", err)
	}
	return nil
}

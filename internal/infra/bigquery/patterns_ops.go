package bigquery

import (
	"context"
	"fmt"
	"math/big"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/finum/finum/internal/domain"
)

const patternColumns = `
	pattern_id,
	user_id,
	merchant_norm,
	frequency,
	avg_amount,
	projected_annual,
	status,
	created_ts,
	updated_ts
`

// InsertPatternWithClient inserts a pattern row.
func InsertPatternWithClient(ctx context.Context, client *bigquery.Client, row *PatternRow) error {
	query := `
		INSERT INTO ` + tableRef(patternsTable) + ` (
			pattern_id, user_id, merchant_norm, frequency,
			avg_amount, projected_annual, status, created_ts
		)
		VALUES (
			@pattern_id, @user_id, @merchant_norm, @frequency,
			@avg_amount, @projected_annual, @status, @created_ts
		)
	`
	params := []bigquery.QueryParameter{
		{Name: "pattern_id", Value: row.PatternID},
		{Name: "user_id", Value: row.UserID},
		{Name: "merchant_norm", Value: row.MerchantNorm},
		{Name: "frequency", Value: row.Frequency},
		{Name: "avg_amount", Value: row.AvgAmount},
		{Name: "projected_annual", Value: row.ProjectedAnnual},
		{Name: "status", Value: row.Status},
		{Name: "created_ts", Value: row.CreatedTS},
	}
	if err := runDML(ctx, client, query, params); err != nil {
		return fmt.Errorf("InsertPatternWithClient: %w", err)
	}
	return nil
}

// ListPatternsWithClient retrieves all patterns of a user.
func ListPatternsWithClient(ctx context.Context, client *bigquery.Client, userID string) ([]*PatternRow, error) {
	q := client.Query(`
		SELECT ` + patternColumns + `
		FROM ` + tableRef(patternsTable) + `
		WHERE user_id = @user_id
		ORDER BY merchant_norm, frequency
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListPatternsWithClient: reading query: %w", err)
	}

	var rows []*PatternRow
	for {
		var row PatternRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListPatternsWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

// UpdatePatternAmountsWithClient rewrites the derived numeric fields of
// a pattern. Status is deliberately untouched: the refresh path owns
// the numbers, the user owns the status.
func UpdatePatternAmountsWithClient(ctx context.Context, client *bigquery.Client, id string, avgAmount, projectedAnnual *big.Rat) error {
	query := `
		UPDATE ` + tableRef(patternsTable) + `
		SET avg_amount = @avg_amount,
		    projected_annual = @projected_annual,
		    updated_ts = CURRENT_TIMESTAMP()
		WHERE pattern_id = @pattern_id
	`
	params := []bigquery.QueryParameter{
		{Name: "avg_amount", Value: avgAmount},
		{Name: "projected_annual", Value: projectedAnnual},
		{Name: "pattern_id", Value: id},
	}
	if err := runDML(ctx, client, query, params); err != nil {
		return fmt.Errorf("UpdatePatternAmountsWithClient: %w", err)
	}
	return nil
}

// UpdatePatternStatusWithClient sets a pattern's status. This is the
// user-facing curation path.
func UpdatePatternStatusWithClient(ctx context.Context, client *bigquery.Client, id string, status string) error {
	query := `
		UPDATE ` + tableRef(patternsTable) + `
		SET status = @status, updated_ts = CURRENT_TIMESTAMP()
		WHERE pattern_id = @pattern_id
	`
	params := []bigquery.QueryParameter{
		{Name: "status", Value: status},
		{Name: "pattern_id", Value: id},
	}
	if err := runDML(ctx, client, query, params); err != nil {
		return fmt.Errorf("UpdatePatternStatusWithClient: %w", err)
	}
	return nil
}

// GetPatternWithClient retrieves a pattern by ID. Returns
// domain.ErrNotFound when no row matches.
func GetPatternWithClient(ctx context.Context, client *bigquery.Client, id string) (*PatternRow, error) {
	q := client.Query(`
		SELECT ` + patternColumns + `
		FROM ` + tableRef(patternsTable) + `
		WHERE pattern_id = @pattern_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "pattern_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetPatternWithClient: reading query: %w", err)
	}

	var row PatternRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetPatternWithClient: pattern %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetPatternWithClient: iterating: %w", err)
	}
	return &row, nil
}

// DeletePatternWithClient deletes a pattern by ID.
func DeletePatternWithClient(ctx context.Context, client *bigquery.Client, id string) error {
	query := `
		DELETE FROM ` + tableRef(patternsTable) + `
		WHERE pattern_id = @pattern_id
	`
	params := []bigquery.QueryParameter{
		{Name: "pattern_id", Value: id},
	}
	if err := runDML(ctx, client, query, params); err != nil {
		return fmt.Errorf("DeletePatternWithClient: %w", err)
	}
	return nil
}

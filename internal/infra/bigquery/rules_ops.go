package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const ruleColumns = `
	rule_id,
	user_id,
	rule_type,
	merchant,
	category,
	min_amount,
	max_amount,
	merchant_contains,
	priority,
	bucket_id,
	created_ts,
	updated_ts
`

// InsertRuleWithClient inserts a rule row.
func InsertRuleWithClient(ctx context.Context, client *bigquery.Client, row *RuleRow) error {
	query := `
		INSERT INTO ` + tableRef(rulesTable) + ` (
			rule_id, user_id, rule_type,
			merchant, category, min_amount, max_amount, merchant_contains,
			priority, bucket_id, created_ts
		)
		VALUES (
			@rule_id, @user_id, @rule_type,
			@merchant, @category, @min_amount, @max_amount, @merchant_contains,
			@priority, @bucket_id, @created_ts
		)
	`
	params := []bigquery.QueryParameter{
		{Name: "rule_id", Value: row.RuleID},
		{Name: "user_id", Value: row.UserID},
		{Name: "rule_type", Value: row.RuleType},
		{Name: "merchant", Value: row.Merchant},
		{Name: "category", Value: row.Category},
		{Name: "min_amount", Value: row.MinAmount},
		{Name: "max_amount", Value: row.MaxAmount},
		{Name: "merchant_contains", Value: row.MerchantContains},
		{Name: "priority", Value: row.Priority},
		{Name: "bucket_id", Value: row.BucketID},
		{Name: "created_ts", Value: row.CreatedTS},
	}
	if err := runDML(ctx, client, query, params); err != nil {
		return fmt.Errorf("InsertRuleWithClient: %w", err)
	}
	return nil
}

// ListRulesWithClient retrieves all rules of a user ordered by
// descending priority, then creation time.
func ListRulesWithClient(ctx context.Context, client *bigquery.Client, userID string) ([]*RuleRow, error) {
	q := client.Query(`
		SELECT ` + ruleColumns + `
		FROM ` + tableRef(rulesTable) + `
		WHERE user_id = @user_id
		ORDER BY priority DESC, created_ts, rule_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRulesWithClient: reading query: %w", err)
	}

	var rows []*RuleRow
	for {
		var row RuleRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRulesWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

// DeleteRuleWithClient deletes a rule by ID.
func DeleteRuleWithClient(ctx context.Context, client *bigquery.Client, id string) error {
	query := `
		DELETE FROM ` + tableRef(rulesTable) + `
		WHERE rule_id = @rule_id
	`
	params := []bigquery.QueryParameter{
		{Name: "rule_id", Value: id},
	}
	if err := runDML(ctx, client, query, params); err != nil {
		return fmt.Errorf("DeleteRuleWithClient: %w", err)
	}
	return nil
}

package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// tableRef returns the fully qualified backtick-quoted table name.
func tableRef(table string) string {
	return "`" + projectID + "." + datasetID + "." + table + "`"
}

// runDML runs a DML statement or script and waits for it to finish.
func runDML(ctx context.Context, client *bigquery.Client, query string, params []bigquery.QueryParameter) error {
	q := client.Query(query)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	bq "github.com/dvloznov/fraud-features/internal/bigquery"
)

// DailySummaryWithClient aggregates the enriched table per tx_date, newest first.
func DailySummaryWithClient(ctx context.Context, client *bigquery.Client, t Tables, days int) ([]bq.DailySummaryRow, error) {
	if days <= 0 {
		days = 7
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			tx_date,
			COUNT(*) AS transactions,
			SUM(is_fraud_num) AS fraud_count,
			COUNTIF(riesgo_transaccion = 'ALTO') AS high_risk,
			MAX(amount) AS max_amount
		FROM %s
		GROUP BY tx_date
		ORDER BY tx_date DESC
		LIMIT @days
	`, t.qualified(t.EnrichedTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "days", Value: days},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("DailySummary: query read: %w", err)
	}

	var rows []bq.DailySummaryRow
	for {
		var r bq.DailySummaryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("DailySummary: iter next: %w", err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

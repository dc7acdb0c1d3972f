package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	bq "github.com/dvloznov/fraud-features/internal/bigquery"
	"github.com/dvloznov/fraud-features/internal/domain"
	"github.com/dvloznov/fraud-features/internal/logger"
)

// LoadRawFromGCSWithClient replaces the raw table with the CSV files at uris.
// BigQuery parses the files: one header row, autodetected schema.
func LoadRawFromGCSWithClient(ctx context.Context, client *bigquery.Client, t Tables, uris []string) (int64, error) {
	log := logger.FromContext(ctx)

	if len(uris) == 0 {
		return 0, fmt.Errorf("LoadRawFromGCS: no source URIs")
	}

	ref := bigquery.NewGCSReference(uris...)
	ref.SourceFormat = bigquery.CSV
	ref.SkipLeadingRows = 1
	ref.AutoDetect = true

	loader := client.DatasetInProject(t.ProjectID, t.Dataset).Table(t.RawTable).LoaderFrom(ref)
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("LoadRawFromGCS: starting load job: %w", err)
	}

	log.Info().
		Str("job_id", job.ID()).
		Strs("uris", uris).
		Str("table", t.RawTable).
		Msg("Raw load job started")

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("LoadRawFromGCS: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("LoadRawFromGCS: job error: %w", err)
	}

	var loaded int64
	if status.Statistics != nil {
		if ls, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
			loaded = ls.OutputRows
		}
	}
	return loaded, nil
}

// readRawQuery normalizes column types so the row shape does not depend on
// what schema autodetection picked. Numeric score columns stay text; the
// engine safe-casts them.
const readRawQuery = `
	SELECT
		CAST(transaction_id AS STRING) AS transaction_id,
		CAST(timestamp AS STRING) AS timestamp,
		CAST(sender_account AS STRING) AS sender_account,
		CAST(amount AS FLOAT64) AS amount,
		CAST(transaction_type AS STRING) AS transaction_type,
		CAST(merchant_category AS STRING) AS merchant_category,
		CAST(location AS STRING) AS location,
		CAST(device_used AS STRING) AS device_used,
		CAST(payment_channel AS STRING) AS payment_channel,
		CAST(time_since_last_transaction AS STRING) AS time_since_last_transaction,
		CAST(spending_deviation_score AS STRING) AS spending_deviation_score,
		CAST(velocity_score AS STRING) AS velocity_score,
		CAST(geo_anomaly_score AS STRING) AS geo_anomaly_score,
		CAST(is_fraud AS BOOL) AS is_fraud
	FROM %s
`

// ReadRawTransactionsWithClient reads the whole raw table.
func ReadRawTransactionsWithClient(ctx context.Context, client *bigquery.Client, t Tables) ([]domain.RawTransaction, error) {
	q := client.Query(fmt.Sprintf(readRawQuery, t.qualified(t.RawTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ReadRawTransactions: query read: %w", err)
	}

	var raws []domain.RawTransaction
	for {
		var r bq.RawTransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadRawTransactions: iter next: %w", err)
		}
		raws = append(raws, r.ToDomain())
	}

	return raws, nil
}

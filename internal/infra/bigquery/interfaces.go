package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	bq "github.com/dvloznov/fraud-features/internal/bigquery"
	"github.com/dvloznov/fraud-features/internal/domain"
)

// Re-export interfaces from shared package
type RawTransactionSource = bq.RawTransactionSource
type EnrichedTransactionSink = bq.EnrichedTransactionSink
type RawLoader = bq.RawLoader
type RunRepository = bq.RunRepository
type SummaryReader = bq.SummaryReader

// BigQueryRepository is the concrete implementation of the raw, enriched,
// run ledger and summary interfaces. It holds a shared BigQuery client to
// avoid creating a new connection for each operation.
type BigQueryRepository struct {
	client  *bigquery.Client
	tables  Tables
	staging Staging

	// runID names the staging object of the next enriched write.
	runID string
}

// NewBigQueryRepository creates a BigQueryRepository bound to tables.
func NewBigQueryRepository(ctx context.Context, tables Tables, staging Staging) (*BigQueryRepository, error) {
	tables = tables.WithDefaults()
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("NewBigQueryRepository: %w", err)
	}

	client, err := bigquery.NewClient(ctx, tables.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRepository: creating client: %w", err)
	}
	if tables.Location != "" {
		client.Location = tables.Location
	}

	return &BigQueryRepository{
		client:  client,
		tables:  tables,
		staging: staging,
	}, nil
}

// Close closes the BigQuery client connection. This should be called when
// the repository is no longer needed to release resources.
func (r *BigQueryRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Tables returns the resolved table names.
func (r *BigQueryRepository) Tables() Tables {
	return r.tables
}

// LoadRawFromGCS delegates to LoadRawFromGCSWithClient with the shared client.
func (r *BigQueryRepository) LoadRawFromGCS(ctx context.Context, uris []string) (int64, error) {
	return LoadRawFromGCSWithClient(ctx, r.client, r.tables, uris)
}

// ReadRawTransactions delegates to ReadRawTransactionsWithClient with the shared client.
func (r *BigQueryRepository) ReadRawTransactions(ctx context.Context) ([]domain.RawTransaction, error) {
	return ReadRawTransactionsWithClient(ctx, r.client, r.tables)
}

// ReplaceEnrichedTransactions delegates to ReplaceEnrichedTransactionsWithClient with the shared client.
func (r *BigQueryRepository) ReplaceEnrichedTransactions(ctx context.Context, rows []domain.EnrichedTransaction) error {
	runID := r.runID
	if runID == "" {
		runID = "adhoc"
	}
	return ReplaceEnrichedTransactionsWithClient(ctx, r.client, r.tables, r.staging, runID, rows)
}

// StartRun delegates to StartRunWithClient with the shared client.
func (r *BigQueryRepository) StartRun(ctx context.Context) (string, error) {
	runID, err := StartRunWithClient(ctx, r.client, r.tables)
	if err != nil {
		return "", err
	}
	r.runID = runID
	return runID, nil
}

// MarkRunSucceeded delegates to MarkRunSucceededWithClient with the shared client.
func (r *BigQueryRepository) MarkRunSucceeded(ctx context.Context, runID string, counts bq.RunCounts) error {
	return MarkRunSucceededWithClient(ctx, r.client, r.tables, runID, counts)
}

// MarkRunFailed delegates to MarkRunFailedWithClient with the shared client.
func (r *BigQueryRepository) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	MarkRunFailedWithClient(ctx, r.client, r.tables, runID, runErr)
}

// DailySummary delegates to DailySummaryWithClient with the shared client.
func (r *BigQueryRepository) DailySummary(ctx context.Context, days int) ([]bq.DailySummaryRow, error) {
	return DailySummaryWithClient(ctx, r.client, r.tables, days)
}

var (
	_ RawTransactionSource    = (*BigQueryRepository)(nil)
	_ EnrichedTransactionSink = (*BigQueryRepository)(nil)
	_ RawLoader               = (*BigQueryRepository)(nil)
	_ RunRepository           = (*BigQueryRepository)(nil)
	_ SummaryReader           = (*BigQueryRepository)(nil)
)

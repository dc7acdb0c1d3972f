package bigquery

import (
	"bytes"
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/goccy/go-json"

	bq "github.com/dvloznov/fraud-features/internal/bigquery"
	"github.com/dvloznov/fraud-features/internal/domain"
	"github.com/dvloznov/fraud-features/internal/gcs"
	"github.com/dvloznov/fraud-features/internal/logger"
)

// Staging names the bucket and prefix used to stage enriched rows before
// the load job. An empty Bucket loads directly from memory.
type Staging struct {
	Storage gcs.StorageService
	Bucket  string
	Prefix  string
}

func (s Staging) enabled() bool {
	return s.Storage != nil && s.Bucket != ""
}

// EncodeEnrichedNDJSON writes rows as newline-delimited JSON in the
// enriched table's column names.
func EncodeEnrichedNDJSON(rows []domain.EnrichedTransaction) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range rows {
		if err := enc.Encode(bq.NewEnrichedTransactionRow(&rows[i])); err != nil {
			return nil, fmt.Errorf("encoding row %d (%s): %w", i, rows[i].TransactionID, err)
		}
	}
	return buf.Bytes(), nil
}

// ReplaceEnrichedTransactionsWithClient overwrites the enriched table with rows in
// one load job (WRITE_TRUNCATE). The table keeps its previous contents if the job fails.
func ReplaceEnrichedTransactionsWithClient(ctx context.Context, client *bigquery.Client, t Tables, stage Staging, runID string, rows []domain.EnrichedTransaction) error {
	log := logger.FromContext(ctx)

	schema, err := bq.EnrichedSchema()
	if err != nil {
		return fmt.Errorf("ReplaceEnrichedTransactions: inferring schema: %w", err)
	}

	data, err := EncodeEnrichedNDJSON(rows)
	if err != nil {
		return fmt.Errorf("ReplaceEnrichedTransactions: %w", err)
	}

	var src bigquery.LoadSource
	if stage.enabled() {
		object := stagingObject(stage.Prefix, runID)
		if err := stage.Storage.WriteObject(ctx, stage.Bucket, object, "application/x-ndjson", data); err != nil {
			return fmt.Errorf("ReplaceEnrichedTransactions: staging rows: %w", err)
		}
		defer func() {
			if err := stage.Storage.DeleteObject(ctx, stage.Bucket, object); err != nil {
				log.Warn().Err(err).Str("object", object).Msg("Failed to delete staging object")
			}
		}()

		ref := bigquery.NewGCSReference(gcs.URI(stage.Bucket, object))
		ref.SourceFormat = bigquery.JSON
		ref.Schema = schema
		src = ref
	} else {
		rs := bigquery.NewReaderSource(bytes.NewReader(data))
		rs.SourceFormat = bigquery.JSON
		rs.Schema = schema
		src = rs
	}

	loader := client.DatasetInProject(t.ProjectID, t.Dataset).Table(t.EnrichedTable).LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("ReplaceEnrichedTransactions: starting load job: %w", err)
	}

	log.Info().
		Str("job_id", job.ID()).
		Str("table", t.EnrichedTable).
		Int("rows", len(rows)).
		Bool("staged", stage.enabled()).
		Msg("Enriched load job started")

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("ReplaceEnrichedTransactions: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("ReplaceEnrichedTransactions: job error: %w", err)
	}

	return nil
}

func stagingObject(prefix, runID string) string {
	name := "enriched-" + runID + ".ndjson"
	if prefix == "" {
		return name
	}
	if prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	return prefix + name
}

package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	bq "github.com/dvloznov/fraud-features/internal/bigquery"
	"github.com/dvloznov/fraud-features/internal/logger"
)

const (
	runStatusRunning = "RUNNING"
	runStatusSuccess = "SUCCESS"
	runStatusFailed  = "FAILED"

	maxErrorMessageLen = 2000
)

// StartRunWithClient inserts a new row into the runs table with status=RUNNING
// and returns the generated run_id.
func StartRunWithClient(ctx context.Context, client *bigquery.Client, t Tables) (string, error) {
	runID := uuid.NewString()

	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			run_id,
			started_ts,
			status,
			engine_version
		)
		VALUES (
			@run_id,
			@started_ts,
			@status,
			@engine_version
		)
	`, t.qualified(t.RunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: runStatusRunning},
		{Name: "engine_version", Value: EngineVersion},
	}

	if err := runDML(ctx, q); err != nil {
		return "", fmt.Errorf("StartRun: %w", err)
	}
	return runID, nil
}

// MarkRunSucceededWithClient sets status=SUCCESS, finished_ts and the row counts.
func MarkRunSucceededWithClient(ctx context.Context, client *bigquery.Client, t Tables, runID string, counts bq.RunCounts) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = "",
		    rows_read = @rows_read,
		    rows_dropped = @rows_dropped,
		    rows_written = @rows_written
		WHERE run_id = @run_id
	`, t.qualified(t.RunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: runStatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "rows_read", Value: counts.RowsRead},
		{Name: "rows_dropped", Value: counts.RowsDropped},
		{Name: "rows_written", Value: counts.RowsWritten},
		{Name: "run_id", Value: runID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("MarkRunSucceeded: %w", err)
	}
	return nil
}

// MarkRunFailedWithClient sets status=FAILED, finished_ts and error_message.
// Failures are logged, not returned: the caller is already handling runErr.
func MarkRunFailedWithClient(ctx context.Context, client *bigquery.Client, t Tables, runID string, runErr error) {
	log := logger.FromContext(ctx)

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, t.qualified(t.RunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: runStatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: truncateError(runErr)},
		{Name: "run_id", Value: runID},
	}

	if err := runDML(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkRunFailed: updating run")
	}
}

func runDML(ctx context.Context, q *bigquery.Query) error {
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

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return msg
}

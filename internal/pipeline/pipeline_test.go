package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bq "github.com/dvloznov/fraud-features/internal/bigquery"
	"github.com/dvloznov/fraud-features/internal/domain"
	"github.com/dvloznov/fraud-features/internal/features"
	"github.com/dvloznov/fraud-features/internal/logger"
	"github.com/dvloznov/fraud-features/internal/pipeline"
	"github.com/dvloznov/fraud-features/internal/telemetry"
)

func amount(v float64) *float64 { return &v }

func sampleRaw() []domain.RawTransaction {
	return []domain.RawTransaction{
		{TransactionID: "T1", SenderAccount: "A", Timestamp: "2023-08-13T10:00:00Z", Amount: amount(75), DeviceUsed: "mobile", PaymentChannel: "upi", Location: "Tokyo"},
		{TransactionID: "T2", SenderAccount: "A", Timestamp: "2023-08-14T23:30:00Z", Amount: nil, DeviceUsed: "web"},
		{TransactionID: "T3", SenderAccount: "B", Timestamp: "2023-08-14T02:00:00Z", Amount: amount(900), DeviceUsed: "web", PaymentChannel: "card"},
	}
}

func newDeps(raws []domain.RawTransaction) (pipeline.Deps, *MockEnrichedSink, *MockRunRepository) {
	sink := &MockEnrichedSink{}
	runs := &MockRunRepository{}
	deps := pipeline.Deps{
		Source: &MockRawSource{
			ReadRawTransactionsFunc: func(ctx context.Context) ([]domain.RawTransaction, error) {
				return raws, nil
			},
		},
		Sink:   sink,
		Runs:   runs,
		Engine: features.NewEngine(features.WithConcurrency(2)),
	}
	return deps, sink, runs
}

func TestRunTransform(t *testing.T) {
	deps, sink, runs := newDeps(sampleRaw())
	reg := prometheus.NewRegistry()
	deps.Metrics = telemetry.NewMetrics(reg)

	state, err := pipeline.RunTransform(context.Background(), deps)
	require.NoError(t, err)

	assert.Equal(t, "run-1", state.RunID)
	assert.Equal(t, 1, sink.calls)
	require.Len(t, sink.rows, 2)
	assert.Equal(t, "T1", sink.rows[0].TransactionID)
	assert.Equal(t, "T3", sink.rows[1].TransactionID)

	require.Len(t, runs.succeeded, 1)
	assert.Equal(t, bq.RunCounts{RowsRead: 3, RowsDropped: 1, RowsWritten: 2}, runs.succeeded[0])
	assert.Empty(t, runs.failed)

	assert.Equal(t, float64(1), testutil.ToFloat64(deps.Metrics.Runs.WithLabelValues("SUCCESS")))
	assert.Equal(t, float64(2), testutil.ToFloat64(deps.Metrics.Rows.WithLabelValues("written")))
}

func TestRunTransformStepLogsCarryRunID(t *testing.T) {
	deps, _, _ := newDeps(sampleRaw())
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))

	_, err := pipeline.RunTransform(ctx, deps)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Feature transformation completed")
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"step":"transform"`)
}

func TestRunTransformMalformedTimestampLeavesEnrichedUntouched(t *testing.T) {
	raws := sampleRaw()
	raws[2].Timestamp = "14/08/2023"
	deps, sink, runs := newDeps(raws)

	_, err := pipeline.RunTransform(context.Background(), deps)
	require.Error(t, err)
	assert.ErrorIs(t, err, features.ErrMalformedTimestamp)

	var rowErr *features.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, "T3", rowErr.TransactionID)

	assert.Zero(t, sink.calls, "enriched table must not be written")
	require.Len(t, runs.failed, 1)
	assert.ErrorIs(t, runs.failed[0], features.ErrMalformedTimestamp)
	assert.Empty(t, runs.succeeded)
}

func TestRunTransformWriteFailureMarksRunFailed(t *testing.T) {
	deps, sink, runs := newDeps(sampleRaw())
	writeErr := errors.New("load job failed")
	sink.ReplaceEnrichedTransactionsFunc = func(ctx context.Context, rows []domain.EnrichedTransaction) error {
		return writeErr
	}

	_, err := pipeline.RunTransform(context.Background(), deps)
	require.ErrorIs(t, err, writeErr)
	assert.Contains(t, err.Error(), "write_enriched")
	require.Len(t, runs.failed, 1)
	assert.Empty(t, runs.succeeded)
}

func TestRunTransformStartRunFailure(t *testing.T) {
	deps, sink, runs := newDeps(sampleRaw())
	runs.StartRunFunc = func(ctx context.Context) (string, error) {
		return "", errors.New("ledger unavailable")
	}

	_, err := pipeline.RunTransform(context.Background(), deps)
	require.Error(t, err)
	assert.Zero(t, sink.calls)
	assert.Empty(t, runs.failed, "no run id to mark")
}

func TestRunTransformEmptySnapshot(t *testing.T) {
	deps, sink, runs := newDeps(nil)

	state, err := pipeline.RunTransform(context.Background(), deps)
	require.NoError(t, err)
	assert.Empty(t, state.Enriched)
	assert.Equal(t, 1, sink.calls)
	require.Len(t, runs.succeeded, 1)
	assert.Zero(t, runs.succeeded[0].RowsWritten)
}

func TestRunTransformRequiresDeps(t *testing.T) {
	_, err := pipeline.RunTransform(context.Background(), pipeline.Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raw source is required")
	assert.Contains(t, err.Error(), "engine is required")
}

func TestRunLoadAndTransform(t *testing.T) {
	deps, sink, runs := newDeps(sampleRaw())
	var gotURIs []string
	deps.Loader = &MockRawLoader{
		LoadRawFromGCSFunc: func(ctx context.Context, uris []string) (int64, error) {
			gotURIs = uris
			return 3, nil
		},
	}
	deps.Storage = &MockStorageService{}

	state, err := pipeline.RunLoadAndTransform(context.Background(), deps, pipeline.Source{Bucket: "lake", Prefix: "entradas/"})
	require.NoError(t, err)

	assert.Equal(t, []string{"gs://lake/entradas/*.csv"}, gotURIs)
	assert.Equal(t, int64(3), state.RowsLoaded)
	assert.Equal(t, 1, sink.calls)
	assert.Len(t, runs.succeeded, 1)
}

func TestRunLoadAndTransformNoSourceFiles(t *testing.T) {
	deps, sink, runs := newDeps(sampleRaw())
	loaded := false
	deps.Loader = &MockRawLoader{
		LoadRawFromGCSFunc: func(ctx context.Context, uris []string) (int64, error) {
			loaded = true
			return 0, nil
		},
	}
	deps.Storage = &MockStorageService{
		ListCSVObjectsFunc: func(ctx context.Context, bucketName, prefix string) ([]string, error) {
			return nil, nil
		},
	}

	_, err := pipeline.RunLoadAndTransform(context.Background(), deps, pipeline.Source{Bucket: "lake", Prefix: "entradas/"})
	require.ErrorIs(t, err, pipeline.ErrNoSourceFiles)
	assert.False(t, loaded)
	assert.Zero(t, sink.calls)
	assert.Len(t, runs.failed, 1)
}

func TestLoadRaw(t *testing.T) {
	deps := pipeline.Deps{
		Loader: &MockRawLoader{
			LoadRawFromGCSFunc: func(ctx context.Context, uris []string) (int64, error) {
				return 42, nil
			},
		},
	}

	n, err := pipeline.LoadRaw(context.Background(), deps, pipeline.Source{Bucket: "lake"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = pipeline.LoadRaw(context.Background(), deps, pipeline.Source{})
	assert.Error(t, err)
}

func TestRunTransformCancelled(t *testing.T) {
	raws := make([]domain.RawTransaction, 5000)
	for i := range raws {
		raws[i] = domain.RawTransaction{TransactionID: "T", SenderAccount: "A", Timestamp: "2023-08-13T10:00:00Z", Amount: amount(1)}
	}
	deps, sink, runs := newDeps(raws)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.RunTransform(ctx, deps)
	require.Error(t, err)
	assert.Zero(t, sink.calls)
	assert.Len(t, runs.failed, 1)
}

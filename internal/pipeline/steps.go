package pipeline

import (
	"context"
	"errors"
	"fmt"

	bq "github.com/dvloznov/fraud-features/internal/bigquery"
	"github.com/dvloznov/fraud-features/internal/domain"
	"github.com/dvloznov/fraud-features/internal/features"
	"github.com/dvloznov/fraud-features/internal/logger"
	"github.com/dvloznov/fraud-features/internal/telemetry"
)

// ErrNoSourceFiles is returned when the datalake prefix holds no CSV files.
var ErrNoSourceFiles = errors.New("no source CSV files")

// PipelineStep represents a single step in a transform run.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	RunID      string
	RowsLoaded int64
	Raw        []domain.RawTransaction
	Enriched   []domain.EnrichedTransaction
	Stats      features.Stats
}

// Counts returns the ledger counts of the run so far.
func (s *PipelineState) Counts() bq.RunCounts {
	return bq.RunCounts{
		RowsRead:    int64(s.Stats.RowsIn),
		RowsDropped: int64(s.Stats.RowsDropped),
		RowsWritten: int64(len(s.Enriched)),
	}
}

// StartRunStep records a RUNNING row in the run ledger.
type StartRunStep struct {
	Runs RunRepository
}

func (s *StartRunStep) Name() string { return "start_run" }

func (s *StartRunStep) Execute(ctx context.Context, state *PipelineState) error {
	runID, err := s.Runs.StartRun(ctx)
	if err != nil {
		return err
	}
	state.RunID = runID
	return nil
}

// LoadRawStep replaces the raw table with the CSV files of the datalake prefix.
type LoadRawStep struct {
	Loader  RawLoader
	Storage StorageService // optional; when set the prefix is checked for files first
	Source  Source
}

func (s *LoadRawStep) Name() string { return "load_raw" }

func (s *LoadRawStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	if s.Storage != nil {
		names, err := s.Storage.ListCSVObjects(ctx, s.Source.Bucket, s.Source.Prefix)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return fmt.Errorf("%w under gs://%s/%s", ErrNoSourceFiles, s.Source.Bucket, s.Source.Prefix)
		}
		log.Info().Int("files", len(names)).Msg("Raw source files found")
	}

	n, err := s.Loader.LoadRawFromGCS(ctx, s.Source.URIs())
	if err != nil {
		return err
	}
	state.RowsLoaded = n
	log.Info().Int64("rows", n).Msg("Raw table loaded")
	return nil
}

// ReadRawStep reads the raw snapshot.
type ReadRawStep struct {
	Source RawTransactionSource
}

func (s *ReadRawStep) Name() string { return "read_raw" }

func (s *ReadRawStep) Execute(ctx context.Context, state *PipelineState) error {
	raws, err := s.Source.ReadRawTransactions(ctx)
	if err != nil {
		return err
	}
	state.Raw = raws
	return nil
}

// TransformStep derives the enriched rows.
type TransformStep struct {
	Engine  *features.Engine
	Metrics *telemetry.Metrics
}

func (s *TransformStep) Name() string { return "transform" }

func (s *TransformStep) Execute(ctx context.Context, state *PipelineState) error {
	enriched, stats, err := s.Engine.Transform(ctx, state.Raw)
	state.Stats = stats
	if err != nil {
		return err
	}
	state.Enriched = enriched

	s.Metrics.AddRows("read", stats.RowsIn)
	s.Metrics.AddRows("dropped", stats.RowsDropped)
	s.Metrics.AddRecoveries("coerced_score", stats.CoercedScores)
	s.Metrics.AddRecoveries("invalid_log_amount", stats.InvalidLogAmount)
	return nil
}

// WriteEnrichedStep replaces the enriched table with the run's rows.
type WriteEnrichedStep struct {
	Sink    EnrichedTransactionSink
	Metrics *telemetry.Metrics
}

func (s *WriteEnrichedStep) Name() string { return "write_enriched" }

func (s *WriteEnrichedStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.Sink.ReplaceEnrichedTransactions(ctx, state.Enriched); err != nil {
		return err
	}
	s.Metrics.AddRows("written", len(state.Enriched))
	return nil
}

// MarkSuccessStep marks the run as SUCCESS with its row counts.
type MarkSuccessStep struct {
	Runs RunRepository
}

func (s *MarkSuccessStep) Name() string { return "mark_success" }

func (s *MarkSuccessStep) Execute(ctx context.Context, state *PipelineState) error {
	return s.Runs.MarkRunSucceeded(ctx, state.RunID, state.Counts())
}

// Package pipeline runs the transform job as a sequence of steps sharing a
// PipelineState: optionally load the raw table from the datalake, read it,
// derive the enriched rows and replace the enriched table.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dvloznov/fraud-features/internal/logger"
	"github.com/dvloznov/fraud-features/internal/telemetry"
)

const (
	statusSuccess = "SUCCESS"
	statusFailed  = "FAILED"
)

var tracer = otel.Tracer("fraud-features/pipeline")

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps   []PipelineStep
	runs    RunRepository
	metrics *telemetry.Metrics
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// WithRunLedger marks the run FAILED in runs when a step fails after the
// run has started.
func (p *Pipeline) WithRunLedger(runs RunRepository) *Pipeline {
	p.runs = runs
	return p
}

// WithMetrics records step durations and the run outcome.
func (p *Pipeline) WithMetrics(m *telemetry.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()

	for i, step := range p.steps {
		if err := p.executeStep(ctx, step, state); err != nil {
			err = fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
			span.RecordError(err)
			span.SetStatus(codes.Error, step.Name())
			p.fail(ctx, state, err)
			return err
		}
	}

	if p.runs != nil {
		p.metrics.RunFinished(statusSuccess)
	}
	return nil
}

func (p *Pipeline) executeStep(ctx context.Context, step PipelineStep, state *PipelineState) error {
	// RunID is empty until the start-run step has executed.
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"step":   step.Name(),
		"run_id": state.RunID,
	})
	ctx = logger.WithContext(ctx, log)

	ctx, span := tracer.Start(ctx, "pipeline."+step.Name(),
		trace.WithAttributes(attribute.String("run.id", state.RunID)),
	)
	defer span.End()

	start := time.Now()
	err := step.Execute(ctx, state)
	elapsed := time.Since(start)
	p.metrics.ObserveStep(step.Name(), elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	log.Debug().
		Dur("elapsed", elapsed).
		Msg("Pipeline step finished")
	return nil
}

func (p *Pipeline) fail(ctx context.Context, state *PipelineState, err error) {
	log := logger.FromContext(ctx)
	log.Error().
		Err(err).
		Str("run_id", state.RunID).
		Msg("Transform run failed")

	if p.runs == nil || state.RunID == "" {
		return
	}
	// The run ledger update must not be skipped because the run was cancelled.
	p.runs.MarkRunFailed(context.WithoutCancel(ctx), state.RunID, err)
	p.metrics.RunFinished(statusFailed)
}

// NewTransformPipeline creates the standard run: start run, read raw,
// transform, replace enriched, mark success.
func NewTransformPipeline(deps Deps) *Pipeline {
	return NewPipeline(
		&StartRunStep{Runs: deps.Runs},
		&ReadRawStep{Source: deps.Source},
		&TransformStep{Engine: deps.Engine, Metrics: deps.Metrics},
		&WriteEnrichedStep{Sink: deps.Sink, Metrics: deps.Metrics},
		&MarkSuccessStep{Runs: deps.Runs},
	).WithRunLedger(deps.Runs).WithMetrics(deps.Metrics)
}

// NewLoadAndTransformPipeline is NewTransformPipeline with the raw table
// reloaded from the datalake first, as one run.
func NewLoadAndTransformPipeline(deps Deps, src Source) *Pipeline {
	return NewPipeline(
		&StartRunStep{Runs: deps.Runs},
		&LoadRawStep{Loader: deps.Loader, Storage: deps.Storage, Source: src},
		&ReadRawStep{Source: deps.Source},
		&TransformStep{Engine: deps.Engine, Metrics: deps.Metrics},
		&WriteEnrichedStep{Sink: deps.Sink, Metrics: deps.Metrics},
		&MarkSuccessStep{Runs: deps.Runs},
	).WithRunLedger(deps.Runs).WithMetrics(deps.Metrics)
}

// RunTransform executes NewTransformPipeline and returns the final state.
func RunTransform(ctx context.Context, deps Deps) (*PipelineState, error) {
	if err := deps.validate(false); err != nil {
		return nil, err
	}
	state := &PipelineState{}
	err := NewTransformPipeline(deps).Execute(ctx, state)
	if err == nil {
		logSummary(ctx, state)
	}
	return state, err
}

// RunLoadAndTransform executes NewLoadAndTransformPipeline and returns the final state.
func RunLoadAndTransform(ctx context.Context, deps Deps, src Source) (*PipelineState, error) {
	if err := deps.validate(true); err != nil {
		return nil, err
	}
	if src.Bucket == "" {
		return nil, errors.New("RunLoadAndTransform: source bucket is required")
	}
	state := &PipelineState{}
	err := NewLoadAndTransformPipeline(deps, src).Execute(ctx, state)
	if err == nil {
		logSummary(ctx, state)
	}
	return state, err
}

// LoadRaw replaces the raw table without transforming. It is not recorded
// in the run ledger.
func LoadRaw(ctx context.Context, deps Deps, src Source) (int64, error) {
	if deps.Loader == nil {
		return 0, errors.New("LoadRaw: loader is required")
	}
	if src.Bucket == "" {
		return 0, errors.New("LoadRaw: source bucket is required")
	}
	state := &PipelineState{}
	err := NewPipeline(&LoadRawStep{Loader: deps.Loader, Storage: deps.Storage, Source: src}).
		WithMetrics(deps.Metrics).
		Execute(ctx, state)
	return state.RowsLoaded, err
}

func (d Deps) validate(withLoad bool) error {
	var errs []error
	if d.Source == nil {
		errs = append(errs, errors.New("raw source is required"))
	}
	if d.Sink == nil {
		errs = append(errs, errors.New("enriched sink is required"))
	}
	if d.Runs == nil {
		errs = append(errs, errors.New("run repository is required"))
	}
	if d.Engine == nil {
		errs = append(errs, errors.New("engine is required"))
	}
	if withLoad && d.Loader == nil {
		errs = append(errs, errors.New("raw loader is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

func logSummary(ctx context.Context, state *PipelineState) {
	log := logger.FromContext(ctx)
	log.Info().
		Str("run_id", state.RunID).
		Int64("rows_loaded", state.RowsLoaded).
		Int("rows_read", state.Stats.RowsIn).
		Int("rows_dropped", state.Stats.RowsDropped).
		Int("rows_written", len(state.Enriched)).
		Msg("Transform run succeeded")
}

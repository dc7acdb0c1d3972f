package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dvloznov/fraud-features/internal/config"
	"github.com/dvloznov/fraud-features/internal/features"
	"github.com/dvloznov/fraud-features/internal/gcsuploader"
	infra "github.com/dvloznov/fraud-features/internal/infra/bigquery"
	"github.com/dvloznov/fraud-features/internal/telemetry"
)

// Runtime bundles the production collaborators built from a Config.
type Runtime struct {
	Deps     Deps
	Source   Source
	Repo     *infra.BigQueryRepository
	Storage  *gcsuploader.GCSStorageService
	Registry *prometheus.Registry
}

// Close releases the BigQuery and storage clients.
func (r *Runtime) Close() error {
	var errs []error
	if r.Repo != nil {
		errs = append(errs, r.Repo.Close())
	}
	if r.Storage != nil {
		errs = append(errs, r.Storage.Close())
	}
	return errors.Join(errs...)
}

// TablesFromConfig maps the bigquery section of cfg onto infra.Tables.
func TablesFromConfig(cfg config.Config) infra.Tables {
	return infra.Tables{
		ProjectID:     cfg.GCP.ProjectID,
		Dataset:       cfg.BigQuery.Dataset,
		RawTable:      cfg.BigQuery.RawTable,
		EnrichedTable: cfg.BigQuery.EnrichedTable,
		RunsTable:     cfg.BigQuery.RunsTable,
		Location:      cfg.BigQuery.Location,
	}
}

// Setup creates the BigQuery repository, the storage service (when a
// bucket is configured), the engine and the metrics registry.
func Setup(ctx context.Context, cfg config.Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Setup: %w", err)
	}

	rt := &Runtime{
		Source:   Source{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.SourcePrefix},
		Registry: prometheus.NewRegistry(),
	}

	var staging infra.Staging
	if cfg.GCS.Bucket != "" {
		storage, err := gcsuploader.NewGCSStorageService(ctx)
		if err != nil {
			return nil, fmt.Errorf("Setup: %w", err)
		}
		rt.Storage = storage
		staging = infra.Staging{Storage: storage, Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.StagingPrefix}
	}

	repo, err := infra.NewBigQueryRepository(ctx, TablesFromConfig(cfg), staging)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("Setup: %w", err)
	}
	rt.Repo = repo

	var engineOpts []features.Option
	if cfg.Engine.Concurrency > 0 {
		engineOpts = append(engineOpts, features.WithConcurrency(cfg.Engine.Concurrency))
	}

	rt.Deps = Deps{
		Loader:  repo,
		Source:  repo,
		Sink:    repo,
		Runs:    repo,
		Engine:  features.NewEngine(engineOpts...),
		Metrics: telemetry.NewMetrics(rt.Registry),
	}
	if rt.Storage != nil {
		rt.Deps.Storage = rt.Storage
	}
	return rt, nil
}

// Command transform is the parameterless trigger of the feature job: it reads
// the raw table, derives the enriched rows and replaces the enriched table.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/fraud-features/internal/config"
	"github.com/dvloznov/fraud-features/internal/logger"
	"github.com/dvloznov/fraud-features/internal/pipeline"
	"github.com/dvloznov/fraud-features/internal/telemetry"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup runs before exit.
func run() int {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	load := flag.Bool("load", false, "Reload the raw table from the datalake before transforming")
	timeout := flag.Duration("timeout", 30*time.Minute, "Abort the run after this long")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	log, err := logger.NewWithLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if *load {
		if err := cfg.SourceURIRequired(); err != nil {
			log.Error().Err(err).Msg("Invalid config")
			return 1
		}
	}

	rt, err := pipeline.Setup(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Setup failed")
		return 1
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing clients")
		}
	}()

	telemetry.Expose(ctx, cfg.Metrics.Port, rt.Registry)

	log.Info().
		Str("project", cfg.GCP.ProjectID).
		Str("dataset", cfg.BigQuery.Dataset).
		Bool("load", *load).
		Msg("Starting transform run")

	var state *pipeline.PipelineState
	if *load {
		state, err = pipeline.RunLoadAndTransform(ctx, rt.Deps, rt.Source)
	} else {
		state, err = pipeline.RunTransform(ctx, rt.Deps)
	}
	if err != nil {
		log.Error().Err(err).Msg("Transform run failed")
		return 1
	}

	fmt.Printf("Run %s completed: %d rows written, %d dropped.\n",
		state.RunID, len(state.Enriched), state.Stats.RowsDropped)
	return 0
}

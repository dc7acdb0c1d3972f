package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-features/internal/config"
	"github.com/dvloznov/fraud-features/internal/gcs"
	"github.com/dvloznov/fraud-features/internal/gcsuploader"
	"github.com/dvloznov/fraud-features/internal/logger"
	"github.com/dvloznov/fraud-features/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "upload":
		runUpload()
	case "load":
		runLoad()
	case "transform":
		runTransform(false)
	case "run":
		runTransform(true)
	case "inspect":
		runInspect()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Fraud Features CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  upload     Upload local CSV files into the datalake prefix")
	fmt.Println("  load       Replace the raw table with the datalake CSV files")
	fmt.Println("  transform  Derive the enriched table from the raw table")
	fmt.Println("  run        load followed by transform, as one run")
	fmt.Println("  inspect    Show a per-day summary of the enriched table")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// bootstrap parses the common -config flag and builds the logger.
func bootstrap(fs *flag.FlagSet) (config.Config, zerolog.Logger) {
	configPath := fs.String("config", "", "Path to YAML config file (optional)")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.NewWithLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, log
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucket := fs.String("bucket", "", "GCS bucket (defaults to gcs.bucket)")
	cfg, log := bootstrap(fs)

	files := fs.Args()
	if len(files) == 0 {
		log.Fatal().Msg("Usage: cli upload [-bucket NAME] FILE.csv...")
	}
	if *bucket == "" {
		*bucket = cfg.GCS.Bucket
	}
	if *bucket == "" {
		log.Fatal().Msg("Error: -bucket or gcs.bucket is required")
	}

	ctx := logger.WithContext(context.Background(), log)

	storage, err := gcsuploader.NewGCSStorageService(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer storage.Close()

	for _, file := range files {
		object := gcs.ObjectName(cfg.GCS.SourcePrefix, file)
		log.Info().
			Str("bucket", *bucket).
			Str("object", object).
			Str("file", file).
			Msg("Uploading file to GCS")

		if err := storage.UploadFile(ctx, *bucket, object, file); err != nil {
			log.Fatal().Err(err).Msg("Upload failed")
		}
		fmt.Printf("Uploaded %s to %s\n", file, gcs.URI(*bucket, object))
	}
}

func runLoad() {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	cfg, log := bootstrap(fs)
	if err := cfg.SourceURIRequired(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	rt, err := pipeline.Setup(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Setup failed")
	}
	defer rt.Close()

	n, err := pipeline.LoadRaw(ctx, rt.Deps, rt.Source)
	if err != nil {
		log.Fatal().Err(err).Msg("Raw load failed")
	}
	fmt.Printf("Loaded %d rows from %s into %s.\n", n, rt.Source.URIs()[0], cfg.BigQuery.RawTable)
}

func runTransform(withLoad bool) {
	name := "transform"
	if withLoad {
		name = "run"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfg, log := bootstrap(fs)
	if withLoad {
		if err := cfg.SourceURIRequired(); err != nil {
			log.Fatal().Err(err).Msg("Invalid config")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	rt, err := pipeline.Setup(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Setup failed")
	}
	defer rt.Close()

	var state *pipeline.PipelineState
	if withLoad {
		state, err = pipeline.RunLoadAndTransform(ctx, rt.Deps, rt.Source)
	} else {
		state, err = pipeline.RunTransform(ctx, rt.Deps)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Transform run failed")
	}

	fmt.Printf("Run %s completed successfully.\n", state.RunID)
	fmt.Printf("  Rows read:     %d\n", state.Stats.RowsIn)
	fmt.Printf("  Rows dropped:  %d\n", state.Stats.RowsDropped)
	fmt.Printf("  Rows written:  %d\n", len(state.Enriched))
	if state.Stats.CoercedScores > 0 {
		fmt.Printf("  Coerced score values: %d\n", state.Stats.CoercedScores)
	}
}

func runInspect() {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	days := fs.Int("days", 7, "Number of most recent days to show")
	cfg, log := bootstrap(fs)

	ctx := logger.WithContext(context.Background(), log)

	rt, err := pipeline.Setup(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Setup failed")
	}
	defer rt.Close()

	rows, err := rt.Repo.DailySummary(ctx, *days)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query summary")
	}

	fmt.Printf("\n=== %s (%d days) ===\n", cfg.BigQuery.EnrichedTable, len(rows))
	fmt.Printf("%-12s %12s %8s %10s %12s\n", "date", "transactions", "fraud", "high_risk", "max_amount")
	for _, r := range rows {
		fmt.Printf("%-12s %12d %8d %10d %12.2f\n", r.TxDate, r.Transactions, r.FraudCount, r.HighRisk, r.MaxAmount)
	}
	fmt.Println()
}

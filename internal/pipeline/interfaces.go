package pipeline

import (
	bq "github.com/dvloznov/fraud-features/internal/bigquery"
	"github.com/dvloznov/fraud-features/internal/features"
	"github.com/dvloznov/fraud-features/internal/gcs"
	"github.com/dvloznov/fraud-features/internal/telemetry"
)

// Re-export interfaces from shared packages
type (
	RawLoader               = bq.RawLoader
	RawTransactionSource    = bq.RawTransactionSource
	EnrichedTransactionSink = bq.EnrichedTransactionSink
	RunRepository           = bq.RunRepository
	StorageService          = gcs.StorageService
)

// Deps holds the collaborators of a run. Loader and Storage are only needed
// when the run loads raw files first; Metrics may be nil.
type Deps struct {
	Loader  RawLoader
	Storage StorageService
	Source  RawTransactionSource
	Sink    EnrichedTransactionSink
	Runs    RunRepository
	Engine  *features.Engine
	Metrics *telemetry.Metrics
}

// Source locates the raw CSV files in the datalake.
type Source struct {
	Bucket string
	Prefix string // e.g. "entradas/"
}

// URIs returns the wildcard URI the load job reads.
func (s Source) URIs() []string {
	return []string{gcs.SourcePattern(s.Bucket, s.Prefix)}
}

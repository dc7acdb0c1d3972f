// Package config loads run configuration from defaults, an optional YAML
// file and FRAUD_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override; "__" separates nested keys,
// e.g. FRAUD_BIGQUERY__DATASET.
const EnvPrefix = "FRAUD_"

type GCPConfig struct {
	ProjectID string `koanf:"project_id"`
}

type BigQueryConfig struct {
	Dataset       string `koanf:"dataset"`
	RawTable      string `koanf:"raw_table"`
	EnrichedTable string `koanf:"enriched_table"`
	RunsTable     string `koanf:"runs_table"`
	Location      string `koanf:"location"`
}

type GCSConfig struct {
	Bucket        string `koanf:"bucket"`
	SourcePrefix  string `koanf:"source_prefix"`  // raw CSVs, e.g. entradas/
	StagingPrefix string `koanf:"staging_prefix"` // enriched NDJSON staging
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type MetricsConfig struct {
	Port int `koanf:"port"` // 0 disables the /metrics listener
}

type EngineConfig struct {
	Concurrency int `koanf:"concurrency"` // 0 means GOMAXPROCS
}

type Config struct {
	GCP      GCPConfig      `koanf:"gcp"`
	BigQuery BigQueryConfig `koanf:"bigquery"`
	GCS      GCSConfig      `koanf:"gcs"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Engine   EngineConfig   `koanf:"engine"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"bigquery.dataset":        "fraud",
		"bigquery.raw_table":      "financial_transactions_raw",
		"bigquery.enriched_table": "financial_transactions_clean",
		"bigquery.runs_table":     "transform_runs",
		"gcs.source_prefix":       "entradas/",
		"gcs.staging_prefix":      "staging/",
		"log.level":               "info",
	}
}

// Load merges defaults, the YAML file at path (skipped when empty or
// missing) and FRAUD_ environment variables.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("config: loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// envKey maps FRAUD_BIGQUERY__RAW_TABLE to bigquery.raw_table.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate reports every missing required setting.
func (c Config) Validate() error {
	var errs []error
	if c.GCP.ProjectID == "" {
		errs = append(errs, errors.New("gcp.project_id is required"))
	}
	if c.BigQuery.Dataset == "" {
		errs = append(errs, errors.New("bigquery.dataset is required"))
	}
	if c.BigQuery.RawTable == "" || c.BigQuery.EnrichedTable == "" || c.BigQuery.RunsTable == "" {
		errs = append(errs, errors.New("bigquery raw, enriched and runs tables are required"))
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		errs = append(errs, fmt.Errorf("metrics.port %d out of range", c.Metrics.Port))
	}
	if c.Engine.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("engine.concurrency must not be negative"))
	}
	return errors.Join(errs...)
}

// SourceURIRequired reports an error when the raw load has no bucket to read from.
func (c Config) SourceURIRequired() error {
	if c.GCS.Bucket == "" {
		return errors.New("gcs.bucket is required to load raw files")
	}
	return nil
}

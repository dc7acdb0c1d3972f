package bigquery

import (
	"errors"
	"fmt"
)

const (
	// EngineVersion is stored with every run in the run ledger.
	EngineVersion = "features-v1"

	defaultRawTable      = "financial_transactions_raw"
	defaultEnrichedTable = "financial_transactions_clean"
	defaultRunsTable     = "transform_runs"
)

// Tables names the BigQuery relations a run binds to.
type Tables struct {
	ProjectID     string
	Dataset       string
	RawTable      string
	EnrichedTable string
	RunsTable     string
	Location      string // job location, e.g. "US"; empty lets BigQuery decide
}

// WithDefaults fills empty table names with the standard ones.
func (t Tables) WithDefaults() Tables {
	if t.RawTable == "" {
		t.RawTable = defaultRawTable
	}
	if t.EnrichedTable == "" {
		t.EnrichedTable = defaultEnrichedTable
	}
	if t.RunsTable == "" {
		t.RunsTable = defaultRunsTable
	}
	return t
}

// Validate reports missing identifiers.
func (t Tables) Validate() error {
	var errs []error
	if t.ProjectID == "" {
		errs = append(errs, errors.New("project id is required"))
	}
	if t.Dataset == "" {
		errs = append(errs, errors.New("dataset is required"))
	}
	if t.RawTable == "" || t.EnrichedTable == "" || t.RunsTable == "" {
		errs = append(errs, errors.New("raw, enriched and runs table names are required"))
	}
	if t.RawTable != "" && t.RawTable == t.EnrichedTable {
		errs = append(errs, fmt.Errorf("raw and enriched table must differ (both %q)", t.RawTable))
	}
	return errors.Join(errs...)
}

// qualified returns the backquoted `project.dataset.table` name for SQL.
func (t Tables) qualified(table string) string {
	return fmt.Sprintf("`%s.%s.%s`", t.ProjectID, t.Dataset, table)
}

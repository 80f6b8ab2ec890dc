package types

import (
	"errors"
	"strings"
)

// Validation errors
var (
	ErrEmptyID     = errors.New("id cannot be empty")
	ErrEmptyColumn = errors.New("column name cannot be empty")
	ErrNoFields    = errors.New("record has no fields")
)

// RecordKey is the fixed output key under which the feature preprocessor
// stores per-row field lists.
const RecordKey = "record"

// Field is a single (column, value) pair of a record.
type Field struct {
	Column string `json:"column" parquet:"column"`
	Value  string `json:"value" parquet:"value"`
}

// Record represents one table row.
type Record struct {
	ID     string  `json:"id,omitempty"`
	Fields []Field `json:"fields"`
}

// Validate checks that every field has a column name.
func (r *Record) Validate() error {
	if len(r.Fields) == 0 {
		return ErrNoFields
	}
	for _, f := range r.Fields {
		if f.Column == "" {
			return ErrEmptyColumn
		}
	}
	return nil
}

// Text joins the non-empty field values with a single space.
func (r *Record) Text() string {
	var sb strings.Builder
	for _, f := range r.Fields {
		if f.Value == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(f.Value)
	}
	return sb.String()
}

// Get returns the value of the first field named column.
func (r *Record) Get(column string) (string, bool) {
	for _, f := range r.Fields {
		if f.Column == column {
			return f.Value, true
		}
	}
	return "", false
}

// Features is a model-ready batch keyed by feature name.
type Features map[string]any

// Records returns the per-row field lists stored under RecordKey.
func (f Features) Records() [][]Field {
	recs, _ := f[RecordKey].([][]Field)
	return recs
}

// contextKey is a private type for context keys set by this module.
type contextKey string

// Context keys read by the telemetry handlers.
const (
	ContextKeyTrialID  contextKey = "trial_id"
	ContextKeyRunID    contextKey = "run_id"
	ContextKeyBaseline contextKey = "baseline"
)

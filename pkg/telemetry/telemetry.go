// Package telemetry persists warning and error log records of a sweep so
// failures can be inspected after the fact. Handlers wrap another
// slog.Handler and always forward to it first.
package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/soundprediction/uniblocker/pkg/types"
)

// LogRecord is one persisted log entry.
type LogRecord struct {
	ID         string    `parquet:"id"`
	Timestamp  time.Time `parquet:"timestamp,timestamp"`
	Level      string    `parquet:"level"`
	Message    string    `parquet:"message"`
	TrialID    string    `parquet:"trial_id"`
	RunID      string    `parquet:"run_id"`
	Baseline   string    `parquet:"baseline"`
	SourceFile string    `parquet:"source_file"`
	LineNumber int       `parquet:"line_number"`
	Attributes string    `parquet:"attributes"` // JSON object
}

func newLogRecord(ctx context.Context, r slog.Record, attrs []slog.Attr) LogRecord {
	var trialID, runID, baseline string
	if ctx != nil {
		trialID, _ = ctx.Value(types.ContextKeyTrialID).(string)
		runID, _ = ctx.Value(types.ContextKeyRunID).(string)
		baseline, _ = ctx.Value(types.ContextKeyBaseline).(string)
	}

	fields := make(map[string]any)
	for _, a := range attrs {
		fields[a.Key] = attrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = attrValue(a.Value)
		return true
	})
	attrsJSON, _ := json.Marshal(fields)

	var file string
	var line int
	if r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		file, line = f.File, f.Line
	}

	return LogRecord{
		ID:         uuid.New().String(),
		Timestamp:  r.Time.UTC(),
		Level:      r.Level.String(),
		Message:    r.Message,
		TrialID:    trialID,
		RunID:      runID,
		Baseline:   baseline,
		SourceFile: file,
		LineNumber: line,
		Attributes: string(attrsJSON),
	}
}

func attrValue(v slog.Value) any {
	v = v.Resolve()
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	if v.Kind() == slog.KindGroup {
		group := make(map[string]any)
		for _, a := range v.Group() {
			group[a.Key] = attrValue(a.Value)
		}
		return group
	}
	return v.Any()
}

package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"slices"
)

// DefaultTable is the table SQLHandler writes to.
const DefaultTable = "telemetry_logs"

// SQLHandler is a slog.Handler that inserts records at or above a minimum
// level into a SQL database. The statements use "?" placeholders, which both
// SQLite and MySQL accept.
type SQLHandler struct {
	next      slog.Handler
	db        *sql.DB
	tableName string
	insert    string
	minLevel  slog.Level
	attrs     []slog.Attr
}

// NewSQLHandler creates a SQLHandler on an existing connection.
func NewSQLHandler(next slog.Handler, db *sql.DB, minLevel slog.Level) (*SQLHandler, error) {
	h := &SQLHandler{
		next:      next,
		db:        db,
		tableName: DefaultTable,
		minLevel:  minLevel,
	}
	h.insert = fmt.Sprintf(`INSERT INTO %s (id, timestamp, level, message, trial_id, run_id, baseline, source_file, line_number, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, h.tableName)
	if err := h.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure telemetry table: %w", err)
	}
	return h, nil
}

func (h *SQLHandler) ensureTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			timestamp VARCHAR(40),
			level VARCHAR(10),
			message TEXT,
			trial_id VARCHAR(255),
			run_id VARCHAR(64),
			baseline VARCHAR(64),
			source_file VARCHAR(255),
			line_number INT,
			attributes TEXT
		)
	`, h.tableName)

	_, err := h.db.Exec(query)
	return err
}

// Enabled implements slog.Handler
func (h *SQLHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *SQLHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level < h.minLevel {
		return nil
	}

	rec := newLogRecord(ctx, r, h.attrs)
	// records are written even after ctx is cancelled
	_, err := h.db.ExecContext(context.WithoutCancel(ctx), h.insert,
		rec.ID,
		rec.Timestamp.Format("2006-01-02T15:04:05.000000Z07:00"),
		rec.Level,
		rec.Message,
		rec.TrialID,
		rec.RunID,
		rec.Baseline,
		rec.SourceFile,
		rec.LineNumber,
		rec.Attributes,
	)
	if err != nil {
		// never fail the chain on a database error
		fmt.Fprintf(os.Stderr, "telemetry: insert into %s: %v\n", h.tableName, err)
	}
	return nil
}

// Records returns persisted records for a trial, oldest first. An empty
// trialID returns every record.
func (h *SQLHandler) Records(ctx context.Context, trialID string) ([]LogRecord, error) {
	query := fmt.Sprintf(`SELECT id, level, message, trial_id, run_id, baseline, source_file, line_number, attributes FROM %s`, h.tableName)
	var args []any
	if trialID != "" {
		query += ` WHERE trial_id = ?`
		args = append(args, trialID)
	}
	query += ` ORDER BY timestamp`

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}
	defer rows.Close()

	var out []LogRecord
	for rows.Next() {
		var rec LogRecord
		if err := rows.Scan(&rec.ID, &rec.Level, &rec.Message, &rec.TrialID, &rec.RunID, &rec.Baseline, &rec.SourceFile, &rec.LineNumber, &rec.Attributes); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// WithAttrs implements slog.Handler
func (h *SQLHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SQLHandler{
		next:      h.next.WithAttrs(attrs),
		db:        h.db,
		tableName: h.tableName,
		insert:    h.insert,
		minLevel:  h.minLevel,
		attrs:     append(slices.Clip(h.attrs), attrs...),
	}
}

// WithGroup implements slog.Handler
func (h *SQLHandler) WithGroup(name string) slog.Handler {
	return &SQLHandler{
		next:      h.next.WithGroup(name),
		db:        h.db,
		tableName: h.tableName,
		insert:    h.insert,
		minLevel:  h.minLevel,
		attrs:     h.attrs,
	}
}

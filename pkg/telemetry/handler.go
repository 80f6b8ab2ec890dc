package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
)

// DefaultBatchSize is the number of records buffered before a parquet file is written.
const DefaultBatchSize = 100

type parquetSink struct {
	mu        sync.Mutex
	outputDir string
	batchSize int
	buffer    []LogRecord
	files     []string
}

// ParquetHandler is a slog.Handler that buffers records at or above a
// minimum level and writes them as parquet files. Handlers derived with
// WithAttrs or WithGroup share the buffer of their parent.
type ParquetHandler struct {
	next     slog.Handler
	minLevel slog.Level
	attrs    []slog.Attr
	sink     *parquetSink
}

// NewParquetHandler creates a ParquetHandler persisting records at minLevel and above.
func NewParquetHandler(next slog.Handler, outputDir string, minLevel slog.Level) (*ParquetHandler, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}
	return &ParquetHandler{
		next:     next,
		minLevel: minLevel,
		sink: &parquetSink{
			outputDir: outputDir,
			batchSize: DefaultBatchSize,
			buffer:    make([]LogRecord, 0, DefaultBatchSize),
		},
	}, nil
}

// Enabled implements slog.Handler
func (h *ParquetHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *ParquetHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level < h.minLevel {
		return nil
	}

	record := newLogRecord(ctx, r, h.attrs)

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	h.sink.buffer = append(h.sink.buffer, record)
	if len(h.sink.buffer) >= h.sink.batchSize {
		return h.sink.flush()
	}
	return nil
}

// Flush writes any buffered records.
func (h *ParquetHandler) Flush() error {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return h.sink.flush()
}

// Files returns the parquet files written so far.
func (h *ParquetHandler) Files() []string {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return slices.Clone(h.sink.files)
}

// caller holds mu
func (s *parquetSink) flush() error {
	if len(s.buffer) == 0 {
		return nil
	}

	now := time.Now()
	name := fmt.Sprintf("sweep_errors_%s_%d.parquet", now.Format("20060102_150405"), now.UnixNano())
	path := filepath.Join(s.outputDir, name)
	if err := parquet.WriteFile(path, s.buffer); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write telemetry parquet file: %v\n", err)
		return err
	}
	s.files = append(s.files, path)
	s.buffer = s.buffer[:0]
	return nil
}

// WithAttrs implements slog.Handler
func (h *ParquetHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ParquetHandler{
		next:     h.next.WithAttrs(attrs),
		minLevel: h.minLevel,
		attrs:    append(slices.Clip(h.attrs), attrs...),
		sink:     h.sink,
	}
}

// WithGroup implements slog.Handler
func (h *ParquetHandler) WithGroup(name string) slog.Handler {
	return &ParquetHandler{
		next:     h.next.WithGroup(name),
		minLevel: h.minLevel,
		attrs:    h.attrs,
		sink:     h.sink,
	}
}

// ReadLogFile loads the records of a file written by ParquetHandler.
func ReadLogFile(path string) ([]LogRecord, error) {
	return parquet.ReadFile[LogRecord](path)
}

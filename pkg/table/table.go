package table

import (
	"errors"
	"fmt"
	"strings"
)

// bom is the byte-order-mark character some exporters prepend to headers.
const bom = "\ufeff"

var (
	// ErrInvalidTable is returned by Check when a table fails the validity heuristic.
	ErrInvalidTable = errors.New("invalid table")
	// ErrUnsupportedFormat is returned for files with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported table format")
	// ErrMissingColumn is returned when a requested column does not exist.
	ErrMissingColumn = errors.New("missing column")
)

// Cell is one table value. Null marks a missing value.
type Cell struct {
	Value string
	Null  bool
}

// Table is a fully loaded table.
type Table struct {
	Path    string
	Columns []string
	Rows    [][]Cell
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// ColumnIndex returns the position of the named column or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// StripBOM removes byte-order-mark characters from column names.
func (t *Table) StripBOM() *Table {
	for i, c := range t.Columns {
		t.Columns[i] = strings.ReplaceAll(c, bom, "")
	}
	return t
}

// DropDuplicates removes exact duplicate rows, keeping the first occurrence.
// A missing value and an empty string are different values here.
func (t *Table) DropDuplicates() *Table {
	seen := make(map[string]struct{}, len(t.Rows))
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		key := rowKey(row)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	t.Rows = kept
	return t
}

func rowKey(row []Cell) string {
	var sb strings.Builder
	for _, c := range row {
		if c.Null {
			sb.WriteByte(0)
		} else {
			sb.WriteByte(1)
			sb.WriteString(c.Value)
		}
		sb.WriteByte(0x1f)
	}
	return sb.String()
}

// FillMissing replaces missing values with the empty string.
func (t *Table) FillMissing() *Table {
	for _, row := range t.Rows {
		for j := range row {
			if row[j].Null {
				row[j] = Cell{}
			}
		}
	}
	return t
}

// ValidityOptions parameterises Check.
type ValidityOptions struct {
	MinRows       int
	MinColumns    int
	MaxColumns    int
	MaxEmptyRatio float64
}

// DefaultValidity is the heuristic used for noisy bulk table corpora.
var DefaultValidity = ValidityOptions{
	MinRows:       1,
	MinColumns:    1,
	MaxColumns:    100,
	MaxEmptyRatio: 0.5,
}

// Check reports whether the table passes the structural validity heuristic.
// The returned error wraps ErrInvalidTable and names the failed rule.
func (t *Table) Check(opts ValidityOptions) error {
	if len(t.Rows) < opts.MinRows {
		return fmt.Errorf("%w: %d rows, want at least %d", ErrInvalidTable, len(t.Rows), opts.MinRows)
	}
	if len(t.Columns) < opts.MinColumns {
		return fmt.Errorf("%w: %d columns, want at least %d", ErrInvalidTable, len(t.Columns), opts.MinColumns)
	}
	if opts.MaxColumns > 0 && len(t.Columns) > opts.MaxColumns {
		return fmt.Errorf("%w: %d columns, want at most %d", ErrInvalidTable, len(t.Columns), opts.MaxColumns)
	}

	names := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: empty column name", ErrInvalidTable)
		}
		if _, dup := names[c]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidTable, c)
		}
		names[c] = struct{}{}
	}

	if opts.MaxEmptyRatio > 0 {
		total, empty := 0, 0
		for _, row := range t.Rows {
			for _, c := range row {
				total++
				if c.Null || strings.TrimSpace(c.Value) == "" {
					empty++
				}
			}
		}
		if total > 0 && float64(empty)/float64(total) > opts.MaxEmptyRatio {
			return fmt.Errorf("%w: %d of %d cells empty", ErrInvalidTable, empty, total)
		}
	}
	return nil
}

// Values returns the row as plain strings; missing values become "".
func Values(row []Cell) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = c.Value
	}
	return out
}

// Column returns all values of the named column.
func (t *Table) Column(name string) ([]string, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q in %s", ErrMissingColumn, name, t.Path)
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx].Value
	}
	return out, nil
}

// Batch is a columnar view of a table that keeps column order.
type Batch struct {
	Columns []string
	Values  map[string][]string
}

// Len returns the number of rows in the batch.
func (b Batch) Len() int {
	for _, c := range b.Columns {
		return len(b.Values[c])
	}
	return 0
}

// Batch converts the table into its columnar view.
func (t *Table) Batch() Batch {
	b := Batch{
		Columns: append([]string(nil), t.Columns...),
		Values:  make(map[string][]string, len(t.Columns)),
	}
	for j, c := range t.Columns {
		col := make([]string, len(t.Rows))
		for i, row := range t.Rows {
			col[i] = row[j].Value
		}
		b.Values[c] = col
	}
	return b
}

// Slice returns the rows [start, end) of the batch.
func (b Batch) Slice(start, end int) Batch {
	out := Batch{Columns: b.Columns, Values: make(map[string][]string, len(b.Columns))}
	for _, c := range b.Columns {
		out.Values[c] = b.Values[c][start:end]
	}
	return out
}

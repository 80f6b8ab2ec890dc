package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/parquet-go/parquet-go"
)

// Supported logical formats.
const (
	FormatCSV     = "csv"
	FormatTSV     = "tsv"
	FormatParquet = "parquet"
	FormatJSONL   = "jsonl"
	FormatJSON    = "json"
)

// Format returns the logical format of path: its lower-cased extension
// without the dot, ignoring an outer .gz or .zst suffix.
func Format(path string) string {
	base := strings.ToLower(filepath.Base(path))
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, ".zst")
	return strings.TrimPrefix(filepath.Ext(base), ".")
}

func compression(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return "gzip"
	case ".zst":
		return "zstd"
	}
	return ""
}

// Read loads the table stored at path.
func Read(path string) (*Table, error) {
	format := Format(path)
	switch format {
	case FormatCSV, FormatTSV, FormatParquet, FormatJSONL, FormatJSON:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()

	r, err := decompress(f, compression(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer r.Close()

	var t *Table
	switch format {
	case FormatCSV:
		t, err = readDelimited(r, ',')
	case FormatTSV:
		t, err = readDelimited(r, '\t')
	case FormatJSONL, FormatJSON:
		t, err = readJSONLines(r)
	case FormatParquet:
		t, err = readParquetStream(f, r, compression(path) != "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	t.Path = path
	return t, nil
}

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func decompress(r io.Reader, codec string) (io.ReadCloser, error) {
	switch codec {
	case "gzip":
		return gzip.NewReader(r)
	case "zstd":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	}
	return nopCloser{r}, nil
}

// ReadDelimited parses CSV-like data whose first row is the header.
func ReadDelimited(r io.Reader, comma rune) (*Table, error) {
	return readDelimited(r, comma)
}

func readDelimited(r io.Reader, comma rune) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{}, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	t := &Table{Columns: append([]string(nil), header...)}
	// ragged rows are kept: short rows are padded with nulls, extra fields dropped
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make([]Cell, len(header))
		for i := range row {
			if i >= len(rec) || rec[i] == "" {
				row[i] = Cell{Null: true}
				continue
			}
			row[i] = Cell{Value: rec[i]}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// readJSONLines reads one JSON object per line. Columns appear in first-seen
// order; rows missing a column get a missing cell.
func readJSONLines(r io.Reader) (*Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	t := &Table{}
	index := map[string]int{}
	var objects []map[string]any
	for {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		for _, k := range sortedKeys(obj) {
			if _, ok := index[k]; !ok {
				index[k] = len(t.Columns)
				t.Columns = append(t.Columns, k)
			}
		}
		objects = append(objects, obj)
	}

	for _, obj := range objects {
		row := make([]Cell, len(t.Columns))
		for i := range row {
			row[i].Null = true
		}
		for k, v := range obj {
			row[index[k]] = jsonCell(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// sortedKeys keeps column order deterministic; decoded objects are unordered.
func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func jsonCell(v any) Cell {
	switch x := v.(type) {
	case nil:
		return Cell{Null: true}
	case string:
		return Cell{Value: x}
	case json.Number:
		return Cell{Value: x.String()}
	case bool:
		return Cell{Value: strconv.FormatBool(x)}
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return Cell{Value: fmt.Sprint(x)}
		}
		return Cell{Value: string(b)}
	}
}

func readParquetStream(f *os.File, r io.Reader, compressed bool) (*Table, error) {
	if !compressed {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return readParquet(f, info.Size())
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return readParquet(bytes.NewReader(data), int64(len(data)))
}

func readParquet(r io.ReaderAt, size int64) (*Table, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, err
	}

	leaves := pf.Schema().Columns()
	t := &Table{Columns: make([]string, len(leaves))}
	for i, path := range leaves {
		t.Columns[i] = strings.Join(path, ".")
	}

	buf := make([]parquet.Row, 128)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				t.Rows = append(t.Rows, parquetCells(row, len(t.Columns)))
			}
			if err != nil {
				rows.Close()
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, err
			}
		}
	}
	return t, nil
}

// parquetCells flattens one row; repeated leaf values are joined by a space.
func parquetCells(row parquet.Row, width int) []Cell {
	parts := make([][]string, width)
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= width || v.IsNull() {
			continue
		}
		parts[col] = append(parts[col], parquetString(v))
	}
	cells := make([]Cell, width)
	for i, p := range parts {
		if len(p) == 0 {
			cells[i] = Cell{Null: true}
			continue
		}
		cells[i] = Cell{Value: strings.Join(p, " ")}
	}
	return cells
}

func parquetString(v parquet.Value) string {
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'g', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'g', -1, 64)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	}
	return v.String()
}

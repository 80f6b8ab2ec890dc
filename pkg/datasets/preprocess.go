package datasets

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/soundprediction/uniblocker/pkg/table"
	"github.com/soundprediction/uniblocker/pkg/types"
)

// Preprocess drops every column whose name contains indexCol and emits, per
// row, the remaining (column, value) pairs in column order under
// types.RecordKey. An empty indexCol keeps every column.
func Preprocess(batch table.Batch, indexCol string) types.Features {
	columns := make([]string, 0, len(batch.Columns))
	for _, c := range batch.Columns {
		if indexCol != "" && strings.Contains(c, indexCol) {
			continue
		}
		columns = append(columns, c)
	}

	n := batch.Len()
	records := make([][]types.Field, n)
	for i := 0; i < n; i++ {
		fields := make([]types.Field, len(columns))
		for j, c := range columns {
			fields[j] = types.Field{Column: c, Value: batch.Values[c][i]}
		}
		records[i] = fields
	}
	return types.Features{types.RecordKey: records}
}

// SelectColumns keeps only the named features. A nil list keeps everything.
func SelectColumns(f types.Features, columns []string) (types.Features, error) {
	if columns == nil {
		return f, nil
	}
	out := make(types.Features, len(columns))
	for _, c := range columns {
		v, ok := f[c]
		if !ok {
			return nil, fmt.Errorf("feature column %q not produced by encoder", c)
		}
		out[c] = v
	}
	return out, nil
}

// SplitRows turns a columnar feature batch into one Features value per row.
// Every feature must be a slice of the same length.
func SplitRows(f types.Features) ([]types.Features, error) {
	n := -1
	for k, v := range f {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice {
			return nil, fmt.Errorf("feature %q is %T, not a slice", k, v)
		}
		if n >= 0 && rv.Len() != n {
			return nil, fmt.Errorf("feature %q has %d rows, want %d", k, rv.Len(), n)
		}
		n = rv.Len()
	}
	if n < 0 {
		return nil, nil
	}
	rows := make([]types.Features, n)
	for i := range rows {
		rows[i] = make(types.Features, len(f))
	}
	for k, v := range f {
		rv := reflect.ValueOf(v)
		for i := range rows {
			rows[i][k] = rv.Index(i).Interface()
		}
	}
	return rows, nil
}

// CollateRows is the inverse of SplitRows; feature slices are typed after the
// first row's values.
func CollateRows(rows []types.Features) (types.Features, error) {
	out := types.Features{}
	if len(rows) == 0 {
		return out, nil
	}
	for k, first := range rows[0] {
		elem := reflect.TypeOf(first)
		if elem == nil {
			return nil, fmt.Errorf("feature %q is nil", k)
		}
		col := reflect.MakeSlice(reflect.SliceOf(elem), len(rows), len(rows))
		for i, row := range rows {
			v, ok := row[k]
			if !ok {
				return nil, fmt.Errorf("row %d lacks feature %q", i, k)
			}
			rv := reflect.ValueOf(v)
			if rv.Type() != elem {
				return nil, fmt.Errorf("row %d feature %q is %T, want %s", i, k, v, elem)
			}
			col.Index(i).Set(rv)
		}
		out[k] = col.Interface()
	}
	return out, nil
}

package table

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cells(values ...string) []Cell {
	out := make([]Cell, len(values))
	for i, v := range values {
		if v == "<nil>" {
			out[i] = Cell{Null: true}
			continue
		}
		out[i] = Cell{Value: v}
	}
	return out
}

func TestStripBOM(t *testing.T) {
	tbl := &Table{Columns: []string{"\ufefftitle", "price"}}
	tbl.StripBOM()
	assert.Equal(t, []string{"title", "price"}, tbl.Columns)
}

func TestDropDuplicates(t *testing.T) {
	tbl := &Table{
		Columns: []string{"a", "b"},
		Rows: [][]Cell{
			cells("x", "1"),
			cells("x", "1"),
			cells("x", "<nil>"),
			cells("x", ""),
			cells("y", "2"),
		},
	}
	tbl.DropDuplicates()

	require.Len(t, tbl.Rows, 4)
	assert.Equal(t, cells("x", "1"), tbl.Rows[0])
	assert.True(t, tbl.Rows[1][1].Null, "missing and empty string are distinct")
	assert.False(t, tbl.Rows[2][1].Null)
	assert.Equal(t, "y", tbl.Rows[3][0].Value)
}

func TestFillMissing(t *testing.T) {
	tbl := &Table{Columns: []string{"a"}, Rows: [][]Cell{cells("<nil>"), cells("v")}}
	tbl.FillMissing()
	assert.Equal(t, Cell{}, tbl.Rows[0][0])
	assert.Equal(t, "v", tbl.Rows[1][0].Value)
}

func TestCheck(t *testing.T) {
	wide := &Table{Rows: [][]Cell{{}}}
	for i := 0; i < 101; i++ {
		wide.Columns = append(wide.Columns, string(rune('a'+i%26))+string(rune('0'+i/26)))
		wide.Rows[0] = append(wide.Rows[0], Cell{Value: "v"})
	}

	tests := []struct {
		name  string
		table *Table
		valid bool
	}{
		{"valid", &Table{Columns: []string{"a", "b"}, Rows: [][]Cell{cells("1", "2")}}, true},
		{"no rows", &Table{Columns: []string{"a"}}, false},
		{"no columns", &Table{Rows: [][]Cell{{}}}, false},
		{"too many columns", wide, false},
		{"duplicate columns", &Table{Columns: []string{"a", "a"}, Rows: [][]Cell{cells("1", "2")}}, false},
		{"blank column name", &Table{Columns: []string{"a", " "}, Rows: [][]Cell{cells("1", "2")}}, false},
		{"mostly empty", &Table{Columns: []string{"a", "b", "c"}, Rows: [][]Cell{cells("1", "<nil>", "")}}, false},
		{"half empty", &Table{Columns: []string{"a", "b"}, Rows: [][]Cell{cells("1", "<nil>")}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Check(DefaultValidity)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTable))
		})
	}
}

func TestBatch(t *testing.T) {
	tbl := &Table{
		Columns: []string{"id", "title"},
		Rows:    [][]Cell{cells("1", "foo"), cells("2", "bar"), cells("3", "baz")},
	}
	b := tbl.Batch()
	assert.Equal(t, []string{"id", "title"}, b.Columns)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []string{"foo", "bar", "baz"}, b.Values["title"])

	s := b.Slice(1, 3)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"2", "3"}, s.Values["id"])

	_, err := tbl.Column("missing")
	assert.ErrorIs(t, err, ErrMissingColumn)
}

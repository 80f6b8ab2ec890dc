package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordValidation(t *testing.T) {
	tests := []struct {
		name    string
		record  Record
		wantErr error
	}{
		{
			name:    "valid record",
			record:  Record{ID: "1", Fields: []Field{{Column: "title", Value: "ipad"}}},
			wantErr: nil,
		},
		{
			name:    "no fields",
			record:  Record{ID: "1"},
			wantErr: ErrNoFields,
		},
		{
			name:    "empty column",
			record:  Record{Fields: []Field{{Column: "", Value: "x"}}},
			wantErr: ErrEmptyColumn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordText(t *testing.T) {
	rec := Record{Fields: []Field{
		{Column: "title", Value: "apple ipad"},
		{Column: "brand", Value: ""},
		{Column: "price", Value: "499"},
	}}
	assert.Equal(t, "apple ipad 499", rec.Text())

	v, ok := rec.Get("price")
	assert.True(t, ok)
	assert.Equal(t, "499", v)
	_, ok = rec.Get("missing")
	assert.False(t, ok)
}

func TestMatchSet(t *testing.T) {
	s := NewMatchSet(Pair{"2", "3"}, Pair{"1", "1"}, Pair{"1", "1"})
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(Pair{"1", "1"}))
	assert.False(t, s.Contains(Pair{"1", "2"}))
	assert.Equal(t, []Pair{{"1", "1"}, {"2", "3"}}, s.Pairs())

	other := NewMatchSet(Pair{"1", "1"}, Pair{"2", "3"})
	assert.True(t, s.Equal(other))
	other.Add(Pair{"9", "9"})
	assert.False(t, s.Equal(other))
}

func TestMatchSetJSON(t *testing.T) {
	s := NewMatchSet(Pair{"b", "c"}, Pair{"a", "b"})
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"left":"a","right":"b"},{"left":"b","right":"c"}]`, string(data))

	var decoded MatchSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, s.Equal(decoded))
}

func TestPairValidate(t *testing.T) {
	assert.NoError(t, Pair{"1", "2"}.Validate())
	assert.ErrorIs(t, Pair{"", "2"}.Validate(), ErrEmptyID)
}

func TestFeaturesRecords(t *testing.T) {
	f := Features{RecordKey: [][]Field{{{Column: "a", Value: "1"}}}}
	require.Len(t, f.Records(), 1)
	assert.Nil(t, Features{}.Records())
}

func TestMetrics(t *testing.T) {
	m := Metrics{"recall": 0.9, "f1": 0.5}
	assert.Equal(t, []string{"f1", "recall"}, m.Keys())

	c := m.Clone()
	c["recall"] = 1
	assert.Equal(t, 0.9, m["recall"])

	m.Merge(Metrics{"precision": 0.1})
	assert.Len(t, m, 3)
}

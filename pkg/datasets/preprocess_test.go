package datasets

import (
	"context"
	"testing"

	"github.com/soundprediction/uniblocker/pkg/table"
	"github.com/soundprediction/uniblocker/pkg/tokenize"
	"github.com/soundprediction/uniblocker/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBatch() table.Batch {
	return table.Batch{
		Columns: []string{"id", "title", "record_id", "price"},
		Values: map[string][]string{
			"id":        {"1", "2", "3"},
			"title":     {"ipad", "galaxy", ""},
			"record_id": {"x", "y", "z"},
			"price":     {"499", "", "10"},
		},
	}
}

func TestPreprocess(t *testing.T) {
	out := Preprocess(sampleBatch(), "id")
	records := out.Records()
	require.Len(t, records, 3)
	for _, rec := range records {
		for _, f := range rec {
			assert.NotContains(t, f.Column, "id")
		}
	}
	assert.Equal(t, []types.Field{{Column: "title", Value: "ipad"}, {Column: "price", Value: "499"}}, records[0])
	assert.Equal(t, []types.Field{{Column: "title", Value: ""}, {Column: "price", Value: "10"}}, records[2])

	all := Preprocess(sampleBatch(), "").Records()
	assert.Len(t, all[0], 4)

	assert.Empty(t, Preprocess(table.Batch{}, "id").Records())
}

func TestSplitAndCollateRows(t *testing.T) {
	f := types.Features{
		"ids":  [][]int{{1, 2}, {3}},
		"text": []string{"a", "b"},
	}
	rows, err := SplitRows(f)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []int{3}, rows[1]["ids"])

	back, err := CollateRows(rows)
	require.NoError(t, err)
	assert.Equal(t, f, back)

	_, err = SplitRows(types.Features{"a": []int{1}, "b": []int{1, 2}})
	assert.Error(t, err)
	_, err = SplitRows(types.Features{"a": 1})
	assert.Error(t, err)

	_, err = SelectColumns(f, []string{"missing"})
	assert.Error(t, err)
	sel, err := SelectColumns(f, []string{"text"})
	require.NoError(t, err)
	assert.Len(t, sel, 1)
}

func TestSerializingEncoder(t *testing.T) {
	enc := NewSerializingEncoder(tokenize.WhitespaceTokenizer{})
	enc.MaxLength = 6

	features := Preprocess(sampleBatch(), "id")
	out, err := enc.ConvertToFeatures(features)
	require.NoError(t, err)

	texts := out[FeatureText].([]string)
	assert.Equal(t, "[COL] title [VAL] ipad [COL] price [VAL] 499", texts[0])

	ids := out[FeatureInputIDs].([][]int)
	require.Len(t, ids, 3)
	assert.Len(t, ids[0], 6, "truncated to MaxLength")
	assert.Equal(t, ClsID, ids[0][0])
	assert.Equal(t, SepID, ids[0][5])
	assert.Equal(t, enc.TokenID("[COL]"), ids[0][1])
	for _, id := range ids[0][1:5] {
		assert.GreaterOrEqual(t, id, numReserved)
		assert.Less(t, id, enc.VocabSize)
	}

	masks := out[FeatureAttentionMask].([][]int)
	assert.Equal(t, []int{1, 1, 1, 1, 1, 1}, masks[0])

	_, err = enc.ConvertToFeatures(types.Features{})
	assert.Error(t, err)
}

func TestSerializingEncoderCollate(t *testing.T) {
	enc := NewSerializingEncoder(nil)
	batch, err := enc.Collate(context.Background(), []types.Features{
		{FeatureInputIDs: []int{1, 5, 2}},
		{FeatureInputIDs: []int{1, 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 5, 2}, {1, 2, 0}}, batch[FeatureInputIDs])
	assert.Equal(t, [][]int{{1, 1, 1}, {1, 1, 0}}, batch[FeatureAttentionMask])
}

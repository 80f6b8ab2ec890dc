package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func items(scores ...float64) []ScoredItem[int] {
	out := make([]ScoredItem[int], len(scores))
	for i, s := range scores {
		out[i] = ScoredItem[int]{Item: i, Score: s}
	}
	return out
}

func ids(top []ScoredItem[int]) []int {
	out := make([]int, len(top))
	for i, it := range top {
		out[i] = it.Item
	}
	return out
}

func TestTopKByScore(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		k      int
		want   []int
	}{
		{"empty", nil, 3, nil},
		{"zero k", []float64{1, 2}, 0, nil},
		{"fewer than k", []float64{0.2, 0.9, 0.5}, 10, []int{1, 2, 0}},
		{"best two", []float64{0.1, 0.7, 0.3, 0.9, 0.5}, 2, []int{3, 1}},
		{"ties keep input order", []float64{0.5, 0.5, 0.5, 0.5}, 2, []int{0, 1}},
		{"ties at the cutoff", []float64{0.2, 0.8, 0.5, 0.8, 0.5}, 3, []int{1, 3, 2}},
		{"negative scores", []float64{-3, -1, -2}, 2, []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TopKByScore(items(tt.scores...), tt.k)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestTopKByScoreLeavesInputAlone(t *testing.T) {
	in := items(0.3, 0.1, 0.2)
	TopKByScore(in, 2)
	assert.Equal(t, []int{0, 1, 2}, ids(in))
}

func TestNormalizeInPlace(t *testing.T) {
	v := []float32{3, 4}
	NormalizeInPlace(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1, math.Sqrt(norm), 1e-6)

	zero := []float32{0, 0, 0}
	NormalizeInPlace(zero)
	assert.Equal(t, []float32{0, 0, 0}, zero)

	NormalizeInPlace(nil)
}

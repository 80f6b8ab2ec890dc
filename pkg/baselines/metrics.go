package baselines

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/soundprediction/uniblocker/pkg/types"
)

// PairKey packs a (left row, right row) pair into one bitmap key.
func PairKey(left, right int) uint64 {
	return uint64(uint32(left))<<32 | uint64(uint32(right))
}

// SplitPairKey unpacks PairKey.
func SplitPairKey(key uint64) (left, right int) {
	return int(key >> 32), int(uint32(key))
}

// Evaluate scores a candidate set against the ground truth. nMatches counts
// every true match, including ones whose identifiers are absent from the
// tables. For self-joins pairs are unordered and the comparison space is
// n(n-1)/2.
func Evaluate(candidates, truth *roaring64.Bitmap, nMatches, nLeft, nRight int, dedupe bool) types.Metrics {
	nCand := float64(candidates.GetCardinality())
	tp := float64(candidates.AndCardinality(truth))

	space := float64(nLeft) * float64(nRight)
	if dedupe {
		space = float64(nLeft) * float64(nLeft-1) / 2
	}

	m := types.Metrics{
		"n_candidates":    nCand,
		"n_matches":       float64(nMatches),
		"n_left":          float64(nLeft),
		"n_right":         float64(nRight),
		"recall":          0,
		"precision":       0,
		"f1":              0,
		"cssr":            0,
		"reduction_ratio": 1,
	}
	if nMatches > 0 {
		m["recall"] = tp / float64(nMatches)
	}
	if nCand > 0 {
		m["precision"] = tp / nCand
	}
	if p, r := m["precision"], m["recall"]; p+r > 0 {
		m["f1"] = 2 * p * r / (p + r)
	}
	if space > 0 {
		m["cssr"] = nCand / space
		m["reduction_ratio"] = 1 - m["cssr"]
	}
	return m
}

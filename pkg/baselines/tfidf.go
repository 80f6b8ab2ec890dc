package baselines

import (
	"math"
	"slices"
)

// term is one non-zero coordinate of a sparse vector.
type term struct {
	index  int32
	weight float32
}

type sparseVector []term

// vectorizer computes smoothed, L2-normalised TF-IDF vectors:
// idf(t) = ln((1+n)/(1+df(t))) + 1.
type vectorizer struct {
	vocab map[string]int32
	terms []string
	idf   []float32
}

func fitVectorizer(corpora ...[][]string) *vectorizer {
	v := &vectorizer{vocab: make(map[string]int32)}
	var df []int
	n := 0
	for _, docs := range corpora {
		for _, doc := range docs {
			n++
			seen := make(map[int32]struct{}, len(doc))
			for _, tok := range doc {
				idx, ok := v.vocab[tok]
				if !ok {
					idx = int32(len(v.terms))
					v.vocab[tok] = idx
					v.terms = append(v.terms, tok)
					df = append(df, 0)
				}
				if _, dup := seen[idx]; !dup {
					seen[idx] = struct{}{}
					df[idx]++
				}
			}
		}
	}
	v.idf = make([]float32, len(df))
	for i, d := range df {
		v.idf[i] = float32(math.Log(float64(1+n)/float64(1+d)) + 1)
	}
	return v
}

func (v *vectorizer) transform(doc []string) sparseVector {
	counts := make(map[int32]int, len(doc))
	for _, tok := range doc {
		if idx, ok := v.vocab[tok]; ok {
			counts[idx]++
		}
	}
	vec := make(sparseVector, 0, len(counts))
	var norm float64
	for idx, c := range counts {
		w := float32(c) * v.idf[idx]
		vec = append(vec, term{index: idx, weight: w})
		norm += float64(w) * float64(w)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i].weight *= inv
		}
	}
	slices.SortFunc(vec, func(a, b term) int { return int(a.index - b.index) })
	return vec
}

func (v *vectorizer) transformAll(docs [][]string) []sparseVector {
	out := make([]sparseVector, len(docs))
	for i, d := range docs {
		out[i] = v.transform(d)
	}
	return out
}

package utils

import (
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Defaults for MinHash/LSH candidate generation.
const (
	DefaultMinHashPermutations = 128
	DefaultMinHashBandSize     = 4
	DefaultShingleSize         = 3
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// NormalizeStringExact lowercases text and collapses whitespace so equal
// strings map to the same key.
func NormalizeStringExact(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(strings.ToLower(s), " "))
}

// Shingles returns the character k-grams of the normalized text with spaces
// removed. Texts shorter than k yield a single shingle.
func Shingles(text string, k int) []string {
	if k <= 0 {
		k = DefaultShingleSize
	}
	cleaned := []rune(strings.ReplaceAll(NormalizeStringExact(text), " ", ""))
	if len(cleaned) == 0 {
		return nil
	}
	if len(cleaned) < k {
		return []string{string(cleaned)}
	}
	out := make([]string, 0, len(cleaned)-k+1)
	for i := 0; i+k <= len(cleaned); i++ {
		out = append(out, string(cleaned[i:i+k]))
	}
	return out
}

// MinHasher computes MinHash signatures and LSH band keys over token sets.
type MinHasher struct {
	permutations int
	bandSize     int
	seeds        []uint64
}

// NewMinHasher creates a hasher with the given number of permutations and
// rows per band. Non-positive values select the defaults.
func NewMinHasher(permutations, bandSize int) *MinHasher {
	if permutations <= 0 {
		permutations = DefaultMinHashPermutations
	}
	if bandSize <= 0 {
		bandSize = DefaultMinHashBandSize
	}
	seeds := make([]uint64, permutations)
	state := uint64(0x9e3779b97f4a7c15)
	for i := range seeds {
		state = splitmix64(state)
		seeds[i] = state
	}
	return &MinHasher{permutations: permutations, bandSize: bandSize, seeds: seeds}
}

// Permutations returns the signature length.
func (m *MinHasher) Permutations() int { return m.permutations }

// Signature returns the MinHash signature of tokens, or nil for an empty set.
func (m *MinHasher) Signature(tokens []string) []uint64 {
	if len(tokens) == 0 {
		return nil
	}
	sig := make([]uint64, m.permutations)
	for i := range sig {
		sig[i] = math.MaxUint64
	}
	for _, tok := range tokens {
		h := xxhash.Sum64String(tok)
		for i, seed := range m.seeds {
			if v := splitmix64(h ^ seed); v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// BandKeys hashes every complete band of the signature into one key. Keys
// include the band index so equal bands at different offsets do not collide.
func (m *MinHasher) BandKeys(signature []uint64) []uint64 {
	if len(signature) == 0 {
		return nil
	}
	keys := make([]uint64, 0, len(signature)/m.bandSize)
	buf := make([]byte, 0, 8*(m.bandSize+1))
	for band, start := 0, 0; start+m.bandSize <= len(signature); band, start = band+1, start+m.bandSize {
		buf = appendUint64(buf[:0], uint64(band))
		for _, v := range signature[start : start+m.bandSize] {
			buf = appendUint64(buf, v)
		}
		keys = append(keys, xxhash.Sum64(buf))
	}
	return keys
}

func appendUint64(b []byte, v uint64) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24), byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// LSHIndex buckets integer ids by the band keys of their token sets.
type LSHIndex struct {
	hasher  *MinHasher
	buckets map[uint64][]int
}

// NewLSHIndex creates an empty index.
func NewLSHIndex(hasher *MinHasher) *LSHIndex {
	return &LSHIndex{hasher: hasher, buckets: make(map[uint64][]int)}
}

// Add indexes id under the bands of tokens.
func (x *LSHIndex) Add(id int, tokens []string) {
	for _, key := range x.hasher.BandKeys(x.hasher.Signature(tokens)) {
		x.buckets[key] = append(x.buckets[key], id)
	}
}

// Candidates returns the distinct ids sharing at least one band with tokens,
// in first-seen order.
func (x *LSHIndex) Candidates(tokens []string) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, key := range x.hasher.BandKeys(x.hasher.Signature(tokens)) {
		for _, id := range x.buckets[key] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// JaccardSimilarity returns the Jaccard similarity between two token sets.
func JaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[s] = struct{}{}
	}

	intersection := 0
	for s := range setA {
		if _, ok := setB[s]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

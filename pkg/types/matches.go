package types

import (
	"encoding/json"
	"sort"
)

// Pair is an ordered (left, right) identifier pair.
type Pair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Validate checks that both sides are set.
func (p Pair) Validate() error {
	if p.Left == "" || p.Right == "" {
		return ErrEmptyID
	}
	return nil
}

// MatchSet is a set of ground-truth duplicate pairs.
type MatchSet map[Pair]struct{}

// NewMatchSet builds a set from pairs.
func NewMatchSet(pairs ...Pair) MatchSet {
	s := make(MatchSet, len(pairs))
	for _, p := range pairs {
		s.Add(p)
	}
	return s
}

// Add inserts a pair.
func (s MatchSet) Add(p Pair) { s[p] = struct{}{} }

// Contains reports whether the pair is in the set.
func (s MatchSet) Contains(p Pair) bool {
	_, ok := s[p]
	return ok
}

// Len returns the number of pairs.
func (s MatchSet) Len() int { return len(s) }

// Equal reports whether both sets hold the same pairs.
func (s MatchSet) Equal(other MatchSet) bool {
	if len(s) != len(other) {
		return false
	}
	for p := range s {
		if !other.Contains(p) {
			return false
		}
	}
	return true
}

// Pairs returns the pairs sorted by left then right identifier.
func (s MatchSet) Pairs() []Pair {
	out := make([]Pair, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Left != out[j].Left {
			return out[i].Left < out[j].Left
		}
		return out[i].Right < out[j].Right
	})
	return out
}

// MarshalJSON encodes the set as a sorted list of pairs.
func (s MatchSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Pairs())
}

// UnmarshalJSON decodes a list of pairs.
func (s *MatchSet) UnmarshalJSON(data []byte) error {
	var pairs []Pair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	*s = NewMatchSet(pairs...)
	return nil
}

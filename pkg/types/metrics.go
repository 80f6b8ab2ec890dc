package types

import "sort"

// Metrics maps a metric name to its value for one trial.
type Metrics map[string]float64

// Keys returns the metric names in sorted order.
func (m Metrics) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge copies every entry of other into m, overwriting existing names.
func (m Metrics) Merge(other Metrics) Metrics {
	for k, v := range other {
		m[k] = v
	}
	return m
}

// Clone returns a shallow copy.
func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

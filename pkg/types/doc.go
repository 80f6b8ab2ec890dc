// Package types defines the core data types shared across uniblocker.
//
// This package contains the fundamental types used by the loaders, baselines
// and the sweep driver:
//   - Record: one table row as ordered (column, value) fields plus an identifier
//   - MatchSet: ground-truth (left, right) identifier pairs
//   - Features: a model-ready batch produced by the feature preprocessor
//   - Metrics: metric name to value mapping produced by a baseline join
//
// # Records
//
// Identifier columns never appear in Record.Fields; they are kept in Record.ID:
//
//	rec := types.Record{
//		ID:     "42",
//		Fields: []types.Field{{Column: "title", Value: "iPhone 12"}},
//	}
//	if err := rec.Validate(); err != nil {
//	    // Handle validation error
//	}
//
// # JSON Serialization
//
// All types are JSON-serializable; Metrics marshals as a flat object.
package types

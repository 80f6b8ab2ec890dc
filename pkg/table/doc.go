// Package table reads on-disk tables (CSV, TSV, Parquet, JSON lines, optionally
// gzip or zstd compressed) into an in-memory Table and provides the
// normalisation steps applied before records are handed to the loaders:
// byte-order-mark stripping, exact-duplicate removal, missing-value filling and
// a structural validity check.
//
// Missing values follow pandas semantics: an empty CSV field, a JSON null and a
// Parquet null are all missing, and a missing cell is distinct from an empty
// string until FillMissing runs.
package table

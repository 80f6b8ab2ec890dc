// Package utils holds the helpers shared by the loaders, baselines and the
// sweep driver: bounded fan-out with panic recovery, top-k candidate
// selection, MinHash/LSH signatures over token sets and parquet file I/O.
package utils

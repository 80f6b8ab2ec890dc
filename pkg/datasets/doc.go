// Package datasets adapts on-disk tables into records, match sets and
// model-ready feature batches.
//
// GitTablesDataset streams records out of a noisy table corpus, skipping any
// file that cannot be read or fails the validity heuristic. LoadMatches builds
// ground-truth match sets from labelled pair files. Preprocess and the Encoder
// interface turn table batches into features, and DeepMatcher wires all of it
// into per-table training loaders chained by a loader.SequentialLoader.
package datasets

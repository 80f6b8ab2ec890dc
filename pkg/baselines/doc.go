// Package baselines implements the blocking baselines swept by the sweep
// driver. Every baseline has the JoinFunc signature: it loads a dataset
// directory, tokenises both tables, retrieves the NNeighbors most similar left
// records for every right record and scores the candidate set against the
// ground-truth matches.
//
//   - sparse_join: exact top-k cosine over TF-IDF vectors via an inverted index
//   - ann_join (alias nmslib_join): TF-IDF vectors hashed to a dense space and
//     searched with a cover tree
//   - lsh_join: MinHash signatures with LSH banding, ranked by Jaccard
package baselines

// Package uniblocker runs entity-blocking baselines and records how well
// they recover known matches.
//
// A blocking baseline takes two tables (or one table joined with itself),
// tokenizes every record and retrieves the nearest records of the other
// table as candidate pairs. Recall, precision and the candidate-set size
// ratio are then computed against the ground-truth match file of the
// dataset.
//
// # Datasets
//
// A dataset is a directory holding table_a.csv, table_b.csv and
// matches.csv. Tables may also be parquet, JSON Lines or compressed
// (.gz, .zst) CSV. The match file carries id1/id2 pairs, optionally with a
// label column whose zero rows are dropped.
//
// # Basic Usage
//
// Open a client from configuration and sweep a baseline:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := uniblocker.NewClient(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	results, err := client.Sweep(ctx, sweep.SparseJoin(), uniblocker.SweepRequest{
//		NNeighbors: []int{10, 100},
//	})
//
// Every trial is tracked as a run named <baseline>/<dataset> and its
// metrics are written to <results>/<baseline>/<dataset>/metrics.json.
//
// # Single Trials
//
// Join runs one grid point without checkpoints:
//
//	res, err := client.Join(ctx, sweep.NMSLibJoin(), sweep.TrialConfig{
//		DataDir:    "data/blocking/abt-buy",
//		Tokenizer:  tokenize.Whitespace,
//		NNeighbors: 100,
//	})
//	fmt.Println(res.Metrics["recall"])
//
// # Configuration
//
// Configuration is read by viper from .uniblocker.yaml in $HOME or the
// working directory. UNIBLOCKER_DATA_ROOT, UNIBLOCKER_RESULTS_DIR,
// UNIBLOCKER_TRACKER_DSN, TUNE_ORIG_WORKING_DIR and SEMAPHORE_LIMIT
// override the file.
//
// For more examples, see the cmd/uniblocker commands.
package uniblocker

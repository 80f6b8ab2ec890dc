package uniblocker

import (
	"encoding/json"

	"github.com/soundprediction/uniblocker/pkg/sweep"
	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:   "join <baseline>",
	Short: "Run one trial of a baseline and print its metrics",
	Long: `Run a single trial: one data directory, one tokenizer and one
neighbour count. The trial is tracked and its metrics.json written exactly
as during a sweep, but no checkpoint or circuit breaker is involved.`,
	Args: cobra.ExactArgs(1),
	RunE: runJoin,
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().String("data-dir", "", "dataset directory holding table_a.csv, table_b.csv and matches.csv")
	joinCmd.Flags().String("tokenizer", "none", "tokenizer (none, regex, whitespace, qgram, subword)")
	joinCmd.Flags().Int("n-neighbors", sweep.DefaultNNeighbors[0], "neighbours retrieved per record")
	joinCmd.Flags().String("results-dir", "", "results directory (default: data.results_dir, else the baseline's)")
	joinCmd.MarkFlagRequired("data-dir")
}

func runJoin(cmd *cobra.Command, args []string) error {
	b, err := sweep.BaselineFor(args[0])
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	flags := cmd.Flags()
	if flags.Changed("results-dir") {
		client.Config().Data.ResultsDir, _ = flags.GetString("results-dir")
	}

	var cfg sweep.TrialConfig
	cfg.DataDir, _ = flags.GetString("data-dir")
	cfg.Tokenizer, _ = flags.GetString("tokenizer")
	cfg.NNeighbors, _ = flags.GetInt("n-neighbors")

	res, err := client.Join(cmd.Context(), b, cfg)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

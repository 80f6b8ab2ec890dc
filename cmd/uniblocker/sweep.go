package uniblocker

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/soundprediction/uniblocker"
	"github.com/soundprediction/uniblocker/pkg/sweep"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <baseline>",
	Short: "Run a baseline over every dataset, tokenizer and neighbour count",
	Long: `Run a registered baseline over the Cartesian product of data
directories, tokenizers and neighbour counts.

Without --data-dirs every dataset under the blocking data root is used
(except the configured exclusions). The baseline always sweeps its own
tokenizer list; --tokenizers is accepted for compatibility and ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := sweep.BaselineFor(args[0])
		if err != nil {
			return err
		}
		return runSweep(cmd, b)
	},
}

var sweepSparseJoinCmd = &cobra.Command{
	Use:   "sweep-sparse-join",
	Short: "Sweep the sparse lexical join (regex, whitespace, qgram, subword)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd, sweep.SparseJoin())
	},
}

var sweepNMSLibJoinCmd = &cobra.Command{
	Use:   "sweep-nmslib-join",
	Short: "Sweep the approximate nearest-neighbour join (none, regex, whitespace, subword)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd, sweep.NMSLibJoin())
	},
}

func init() {
	for _, cmd := range []*cobra.Command{sweepCmd, sweepSparseJoinCmd, sweepNMSLibJoinCmd} {
		rootCmd.AddCommand(cmd)

		cmd.Flags().StringSlice("data-dirs", nil, "data directories (default: every dataset under the data root)")
		cmd.Flags().StringSlice("tokenizers", nil, "ignored; the baseline's tokenizers are always used")
		cmd.Flags().IntSlice("n-neighbors", nil, "neighbour counts (default [100])")
		cmd.Flags().String("results-dir", "", "results directory (default: data.results_dir, else the baseline's)")
		cmd.Flags().Int("workers", 0, "concurrent trials (default $SEMAPHORE_LIMIT or sweep.workers)")
		cmd.Flags().Bool("resume", true, "skip trials whose checkpoint is completed")
	}
}

func runSweep(cmd *cobra.Command, b sweep.Baseline) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	flags := cmd.Flags()
	cfg := client.Config()
	if flags.Changed("results-dir") {
		client.Config().Data.ResultsDir, _ = flags.GetString("results-dir")
	}
	if flags.Changed("workers") {
		cfg.Sweep.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("resume") {
		cfg.Sweep.Resume, _ = flags.GetBool("resume")
	}

	var req uniblocker.SweepRequest
	req.DataDirs, _ = flags.GetStringSlice("data-dirs")
	req.Tokenizers, _ = flags.GetStringSlice("tokenizers")
	req.NNeighbors, _ = flags.GetIntSlice("n-neighbors")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, runErr := client.Sweep(ctx, b, req)
	printResults(cmd.OutOrStdout(), results)
	return runErr
}

func printResults(w io.Writer, results []sweep.TrialResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIAL\tRECALL\tCANDIDATES\tSTATUS")
	for _, r := range results {
		status := "ok"
		switch {
		case r.Err != nil:
			status = r.Err.Error()
		case r.Resumed:
			status = "resumed"
		}
		fmt.Fprintf(tw, "%s\t%.4f\t%.0f\t%s\n", r.TrialID, r.Metrics["recall"], r.Metrics["n_candidates"], status)
	}
	tw.Flush()
}

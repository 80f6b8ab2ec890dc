package uniblocker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/soundprediction/uniblocker/pkg/checkpoint"
	"github.com/soundprediction/uniblocker/pkg/config"
	"github.com/spf13/cobra"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect and clean sweep trial checkpoints",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every trial checkpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := openCheckpoints()
		if err != nil {
			return err
		}
		cps, err := cm.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, cp := range cps {
			fmt.Fprintln(cmd.OutOrStdout(), cp.Summary())
		}
		return nil
	},
}

var checkpointsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count checkpoints per status and baseline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := openCheckpoints()
		if err != nil {
			return err
		}
		stats, err := cm.GetStatistics(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var checkpointsStalledCmd = &cobra.Command{
	Use:   "stalled",
	Short: "List running trials that stopped updating",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := openCheckpoints()
		if err != nil {
			return err
		}
		after, _ := cmd.Flags().GetDuration("after")
		stalled, err := cm.FindStalled(cmd.Context(), after)
		if err != nil {
			return err
		}
		for _, cp := range stalled {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tattempts=%d\tupdated=%s\n", cp.TrialID, cp.AttemptCount, cp.LastUpdatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var checkpointsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove checkpoints older than --older-than",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := openCheckpoints()
		if err != nil {
			return err
		}
		age, _ := cmd.Flags().GetDuration("older-than")
		n, err := cm.CleanOld(cmd.Context(), age)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d checkpoints from %s\n", n, cm.GetCheckpointDir())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.AddCommand(checkpointsListCmd, checkpointsStatsCmd, checkpointsStalledCmd, checkpointsCleanCmd)

	checkpointsStalledCmd.Flags().Duration("after", time.Hour, "age of the last update after which a running trial is stalled")
	checkpointsCleanCmd.Flags().Duration("older-than", 7*24*time.Hour, "minimum checkpoint age")
}

func openCheckpoints() (*checkpoint.CheckpointManager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return checkpoint.NewCheckpointManager(cfg.Sweep.CheckpointDir)
}

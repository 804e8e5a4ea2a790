package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/kfsearch/kfsearch/internal/engine"
	"github.com/kfsearch/kfsearch/internal/output"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show observational query telemetry since the store was opened",
		Long: `Reports query counts by kind and model, the latency histogram, and
the zero-result rate. This is purely observational: nothing reported
here is consulted by search, temporal alignment, or fusion when
ranking results.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func runStats(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadProjectConfig()
	if err != nil {
		return err
	}

	eng, err := engine.Build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	snap := eng.Metrics.Snapshot()

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "total queries: %d (since %s)", snap.TotalQueries, snap.Since.Format("2006-01-02 15:04:05"))
	for kind, count := range snap.KindCounts {
		out.Statusf("", "  %-10s %d", kind, count)
	}
	out.Statusf("", "zero-result queries: %d (%.1f%%)", snap.ZeroResultQueries, snap.ZeroResultPercentage())
	for bucket, count := range snap.LatencyDistribution {
		out.Statusf("", "  latency %-6s %d", bucket, count)
	}
	return nil
}

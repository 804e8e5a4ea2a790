package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kfsearch/kfsearch/internal/engine"
	"github.com/kfsearch/kfsearch/internal/output"
	"github.com/kfsearch/kfsearch/internal/telemetry"
	"github.com/kfsearch/kfsearch/internal/temporal"
	"github.com/kfsearch/kfsearch/internal/vectorindex"
)

type temporalOptions struct {
	model  string
	limit  int
	format string
}

func newTemporalCmd() *cobra.Command {
	var opts temporalOptions

	cmd := &cobra.Command{
		Use:   "temporal <sentence> [more sentences...]",
		Short: "Align a multi-sentence scene description against candidate videos",
		Long: `Each argument is one sentence of a temporally ordered scene
description. The aligner finds the best gap-constrained assignment of
sentences to frames within each candidate video and ranks videos by
total alignment score.

Example:
  kfsearch temporal "a car stops at a red light" "the driver gets out and walks away"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemporal(cmd, strings.Join(args, ". "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.model, "model", "m", string(vectorindex.ModelClip), "Model tag to align against")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of ranked videos")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runTemporal(cmd *cobra.Command, query string, opts temporalOptions) error {
	cfg, err := loadProjectConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	eng, err := engine.Build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	model := vectorindex.ModelTag(strings.ToUpper(opts.model))
	params := temporal.DefaultParams(model)
	params.K = opts.limit
	params.TopKPerSentence = cfg.Temporal.TopKPerSentence
	params.MaxCandidateVideos = cfg.Temporal.MaxCandidateVideos
	params.WMin = cfg.Temporal.WMin
	params.WMax = cfg.Temporal.WMax
	params.AnchorTop = cfg.Temporal.AnchorTop
	params.AnchorWindow = cfg.Temporal.AnchorWindow
	params.AnchorBoost = float32(cfg.Temporal.AnchorBoost)

	start := time.Now()
	resp, err := eng.TA.Align(cmd.Context(), query, params)
	resultCount := 0
	if resp != nil {
		resultCount = len(resp.Results)
	}
	eng.Metrics.Record(telemetry.QueryEvent{
		Kind:        telemetry.QueryKindTemporal,
		Model:       string(model),
		ResultCount: resultCount,
		Latency:     time.Since(start),
		Timestamp:   start,
	})
	if err != nil {
		return err
	}

	return printTemporalResponse(cmd, opts.format, resp)
}

func printTemporalResponse(cmd *cobra.Command, format string, resp *temporal.Response) error {
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	out := output.New(cmd.OutOrStdout())
	if len(resp.Results) == 0 {
		out.Status("", "no candidate videos aligned")
		return nil
	}
	for i, r := range resp.Results {
		out.Statusf("", "%2d. %.4f  %s  frames=%v", i+1, r.Score, r.VideoID, r.Frames)
	}
	return nil
}

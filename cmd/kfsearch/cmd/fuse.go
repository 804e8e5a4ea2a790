package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kfsearch/kfsearch/internal/engine"
	"github.com/kfsearch/kfsearch/internal/fusion"
	"github.com/kfsearch/kfsearch/internal/imagesrc"
	"github.com/kfsearch/kfsearch/internal/output"
	"github.com/kfsearch/kfsearch/internal/telemetry"
)

type fuseOptions struct {
	limit  int
	image  string
	format string
}

func newFuseCmd() *cobra.Command {
	var opts fuseOptions

	cmd := &cobra.Command{
		Use:   "fuse [query]",
		Short: "Search every enabled model concurrently and merge the results",
		Long: `Runs the query against every model enabled in the configuration,
concurrently, and merges the ranked lists by keeping the
highest-scoring hit per asset path. The winning model is reported per
result for observability only; it plays no part in ranking.

Examples:
  kfsearch fuse "a dog catching a frisbee"
  kfsearch fuse --image ./probe.jpg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFuse(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVar(&opts.image, "image", "", "Path, URL, or data URL of the probe image")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runFuse(cmd *cobra.Command, query string, opts fuseOptions) error {
	cfg, err := loadProjectConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	eng, err := engine.Build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	start := time.Now()
	var hits []fusion.Hit
	if opts.image != "" {
		hits, err = eng.MMF.ImageSearch(cmd.Context(), imagesrc.FromPath(opts.image), opts.limit)
	} else {
		if query == "" {
			return fmt.Errorf("provide a query or --image")
		}
		hits, err = eng.MMF.TextSearch(cmd.Context(), query, opts.limit)
	}

	eng.Metrics.Record(telemetry.QueryEvent{
		Kind:        telemetry.QueryKindFusion,
		ResultCount: len(hits),
		Latency:     time.Since(start),
		Timestamp:   start,
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	out := output.New(cmd.OutOrStdout())
	if len(hits) == 0 {
		out.Status("", "no results")
		return nil
	}
	for i, h := range hits {
		out.Statusf("", "%2d. %.4f  %s  (model=%s, id=%d)", i+1, h.Score, h.AssetPath, h.Model, h.ID)
	}
	return nil
}

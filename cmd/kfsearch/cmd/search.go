package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kfsearch/kfsearch/internal/engine"
	"github.com/kfsearch/kfsearch/internal/imagesrc"
	"github.com/kfsearch/kfsearch/internal/output"
	"github.com/kfsearch/kfsearch/internal/retrieval"
	"github.com/kfsearch/kfsearch/internal/telemetry"
	"github.com/kfsearch/kfsearch/internal/vectorindex"
)

type searchOptions struct {
	model    string
	limit    int
	image    string
	neighbor string
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search one model's index by text, image, or visual neighbor",
		Long: `Search a single model's index.

A positional query string runs text search. --image runs image search
against a local file, URL, or data URL. --neighbor runs a visual
neighbor search from an existing asset id, ignoring the positional
query.

Examples:
  kfsearch search "a person riding a bicycle" --model CLIP
  kfsearch search --image ./probe.jpg --model BEIT3
  kfsearch search --neighbor 4021 --model CLIP --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model tag (CLIP, LONGCLIP, CLIP2VIDEO, BEIT3)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVar(&opts.image, "image", "", "Path, URL, or data URL of the probe image")
	cmd.Flags().StringVar(&opts.neighbor, "neighbor", "", "Asset id to search visual neighbors of")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
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

	start := time.Now()
	var hits []retrieval.Hit
	var kind telemetry.QueryKind

	switch {
	case opts.neighbor != "":
		id, perr := parseAssetID(opts.neighbor)
		if perr != nil {
			return perr
		}
		kind = telemetry.QueryKindNeighbor
		hits, err = eng.RE.NeighborSearch(cmd.Context(), model, id, opts.limit)
	case opts.image != "":
		kind = telemetry.QueryKindImage
		hits, err = eng.RE.ImageSearch(cmd.Context(), model, imagesrc.FromPath(opts.image), opts.limit)
	default:
		if query == "" {
			return fmt.Errorf("provide a query, --image, or --neighbor")
		}
		kind = telemetry.QueryKindText
		hits, err = eng.RE.TextSearch(cmd.Context(), model, query, opts.limit)
	}

	eng.Metrics.Record(telemetry.QueryEvent{
		Kind:        kind,
		Model:       string(model),
		ResultCount: len(hits),
		Latency:     time.Since(start),
		Timestamp:   start,
	})

	if err != nil {
		return err
	}

	return printHits(cmd, opts.format, hits)
}

func printHits(cmd *cobra.Command, format string, hits []retrieval.Hit) error {
	if format == "json" {
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
		out.Statusf("", "%2d. %.4f  %s  (id=%d)", i+1, h.Score, h.AssetPath, h.ID)
	}
	return nil
}

func parseAssetID(s string) (uint64, error) {
	var id uint64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid asset id %q: %w", s, err)
	}
	return id, nil
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kfsearch/kfsearch/internal/engine"
	"github.com/kfsearch/kfsearch/internal/output"
	"github.com/kfsearch/kfsearch/internal/vectorindex"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the configured model indexes",
	}
	cmd.AddCommand(newIndexInfoCmd())
	return cmd
}

type indexModelInfo struct {
	Tag        string  `json:"tag"`
	Dim        int     `json:"dim"`
	Vectors    int     `json:"vectors"`
	ScoreFloor float32 `json:"score_floor"`
}

func newIndexInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show dimensions and vector counts for each enabled model's index",
		Long: `Loads every enabled model's index and id map and reports its
dimensionality, vector count, and score floor.

This helps verify an index was built with the expected model before
running real queries against it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexInfo(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func runIndexInfo(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadProjectConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	eng, err := engine.Build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	var infos []indexModelInfo
	for _, tag := range cfg.EnabledModels() {
		idx, err := eng.Indexes.Get(tag)
		if err != nil {
			return err
		}
		infos = append(infos, indexModelInfo{
			Tag:        string(tag),
			Dim:        idx.Dim(),
			Vectors:    idx.Len(),
			ScoreFloor: vectorindex.ScoreFloor(tag),
		})
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Assets int              `json:"assets"`
			Models []indexModelInfo `json:"models"`
		}{Assets: eng.Assets.Len(), Models: infos})
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "assets: %d", eng.Assets.Len())
	for _, info := range infos {
		out.Statusf("", "%-10s dim=%-4d vectors=%-8d score_floor=%.2f", info.Tag, info.Dim, info.Vectors, info.ScoreFloor)
	}
	return nil
}

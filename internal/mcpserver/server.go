// Package mcpserver exposes the retrieval engine over the Model Context
// Protocol so AI coding assistants and other MCP clients can run the same
// text, image, neighbor, temporal, and fused searches the CLI runs.
package mcpserver

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kfsearch/kfsearch/internal/engine"
	"github.com/kfsearch/kfsearch/internal/fusion"
	"github.com/kfsearch/kfsearch/internal/imagesrc"
	"github.com/kfsearch/kfsearch/internal/retrieval"
	"github.com/kfsearch/kfsearch/internal/telemetry"
	"github.com/kfsearch/kfsearch/internal/temporal"
	"github.com/kfsearch/kfsearch/internal/vectorindex"
	"github.com/kfsearch/kfsearch/pkg/version"
)

// Server bridges an assembled engine to MCP clients over stdio.
type Server struct {
	mcp    *mcp.Server
	engine *engine.Engine
	logger *slog.Logger
}

// New constructs an MCP server over an already-built engine and registers
// every search tool.
func New(eng *engine.Engine) *Server {
	s := &Server{
		engine: eng,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "kfsearch",
		Version: version.Version,
	}, nil)

	s.registerTools()
	return s
}

// Serve runs the server over stdio until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

type hitOutput struct {
	AssetPath string  `json:"asset_path" jsonschema:"asset path relative to the indexed corpus root"`
	Score     float32 `json:"score" jsonschema:"similarity score, higher is more relevant"`
	ID        uint64  `json:"id" jsonschema:"asset id, usable as the neighbor_search anchor"`
}

type textSearchInput struct {
	Model string `json:"model" jsonschema:"model tag to search: CLIP, LONGCLIP, CLIP2VIDEO, or BEIT3"`
	Query string `json:"query" jsonschema:"free-text description of the desired keyframe"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

type imageSearchInput struct {
	Model string `json:"model" jsonschema:"model tag to search: CLIP, LONGCLIP, CLIP2VIDEO, or BEIT3"`
	Image string `json:"image" jsonschema:"probe image: a local path, an http(s) URL, or a data: URL"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

type neighborSearchInput struct {
	Model   string `json:"model" jsonschema:"model tag to search: CLIP, LONGCLIP, CLIP2VIDEO, or BEIT3"`
	AssetID uint64 `json:"asset_id" jsonschema:"asset id to find visual neighbors of"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

type searchOutput struct {
	Results []hitOutput `json:"results" jsonschema:"ranked hits, most similar first"`
}

type temporalSearchInput struct {
	Model     string   `json:"model" jsonschema:"model tag to align against: CLIP, LONGCLIP, CLIP2VIDEO, or BEIT3"`
	Sentences []string `json:"sentences" jsonschema:"temporally ordered scene description, one sentence per step"`
	Limit     int      `json:"limit,omitempty" jsonschema:"maximum number of ranked videos, default 10"`
}

type temporalResultOutput struct {
	VideoID string  `json:"video_id" jsonschema:"aligned video identifier"`
	Frames  []int   `json:"frames" jsonschema:"0-based frame row index per sentence, ascending"`
	Score   float32 `json:"score" jsonschema:"alignment score, higher is better"`
}

type temporalSearchOutput struct {
	Results []temporalResultOutput `json:"results" jsonschema:"ranked video alignments"`
}

type fuseSearchInput struct {
	Query string `json:"query,omitempty" jsonschema:"free-text query; omit when using image"`
	Image string `json:"image,omitempty" jsonschema:"probe image: a local path, an http(s) URL, or a data: URL; omit when using query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

type fuseHitOutput struct {
	AssetPath string  `json:"asset_path" jsonschema:"asset path relative to the indexed corpus root"`
	Score     float32 `json:"score" jsonschema:"similarity score, higher is more relevant"`
	ID        uint64  `json:"id" jsonschema:"asset id"`
	Model     string  `json:"model" jsonschema:"the model whose hit won this asset path; observational only"`
}

type fuseSearchOutput struct {
	Results []fuseHitOutput `json:"results" jsonschema:"ranked, deduplicated hits across every enabled model"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "text_search",
		Description: "Search one model's keyframe index by a free-text description.",
	}, s.handleTextSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "image_search",
		Description: "Search one model's keyframe index by example image.",
	}, s.handleImageSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "neighbor_search",
		Description: "Find visual neighbors of an already-known asset id within one model's index.",
	}, s.handleNeighborSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "temporal_search",
		Description: "Align a multi-sentence, temporally ordered scene description against candidate videos and rank by alignment score.",
	}, s.handleTemporalSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fuse_search",
		Description: "Search every enabled model concurrently and merge the ranked lists, keeping the highest-scoring hit per asset path.",
	}, s.handleFuseSearch)
}

func (s *Server) recordQuery(kind telemetry.QueryKind, model string, n int, start time.Time) {
	s.engine.Metrics.Record(telemetry.QueryEvent{
		Kind:        kind,
		Model:       model,
		ResultCount: n,
		Latency:     time.Since(start),
		Timestamp:   start,
	})
}

func (s *Server) handleTextSearch(ctx context.Context, _ *mcp.CallToolRequest, in textSearchInput) (*mcp.CallToolResult, searchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, searchOutput{}, newInvalidParamsError("query is required")
	}
	model := vectorindex.ModelTag(strings.ToUpper(in.Model))
	limit := defaultLimit(in.Limit)

	start := time.Now()
	hits, err := s.engine.RE.TextSearch(ctx, model, in.Query, limit)
	s.recordQuery(telemetry.QueryKindText, string(model), len(hits), start)
	if err != nil {
		return nil, searchOutput{}, mapError(err)
	}
	return nil, searchOutput{Results: toHitOutputs(hits)}, nil
}

func (s *Server) handleImageSearch(ctx context.Context, _ *mcp.CallToolRequest, in imageSearchInput) (*mcp.CallToolResult, searchOutput, error) {
	if strings.TrimSpace(in.Image) == "" {
		return nil, searchOutput{}, newInvalidParamsError("image is required")
	}
	model := vectorindex.ModelTag(strings.ToUpper(in.Model))
	limit := defaultLimit(in.Limit)

	start := time.Now()
	hits, err := s.engine.RE.ImageSearch(ctx, model, resolveImageSource(in.Image), limit)
	s.recordQuery(telemetry.QueryKindImage, string(model), len(hits), start)
	if err != nil {
		return nil, searchOutput{}, mapError(err)
	}
	return nil, searchOutput{Results: toHitOutputs(hits)}, nil
}

func (s *Server) handleNeighborSearch(ctx context.Context, _ *mcp.CallToolRequest, in neighborSearchInput) (*mcp.CallToolResult, searchOutput, error) {
	model := vectorindex.ModelTag(strings.ToUpper(in.Model))
	limit := defaultLimit(in.Limit)

	start := time.Now()
	hits, err := s.engine.RE.NeighborSearch(ctx, model, in.AssetID, limit)
	s.recordQuery(telemetry.QueryKindNeighbor, string(model), len(hits), start)
	if err != nil {
		return nil, searchOutput{}, mapError(err)
	}
	return nil, searchOutput{Results: toHitOutputs(hits)}, nil
}

func (s *Server) handleTemporalSearch(ctx context.Context, _ *mcp.CallToolRequest, in temporalSearchInput) (*mcp.CallToolResult, temporalSearchOutput, error) {
	if len(in.Sentences) == 0 {
		return nil, temporalSearchOutput{}, newInvalidParamsError("sentences is required and must be non-empty")
	}
	model := vectorindex.ModelTag(strings.ToUpper(in.Model))
	query := strings.Join(in.Sentences, ". ")

	cfg := s.engine.Cfg
	params := temporal.DefaultParams(model)
	params.K = defaultLimit(in.Limit)
	params.TopKPerSentence = cfg.Temporal.TopKPerSentence
	params.MaxCandidateVideos = cfg.Temporal.MaxCandidateVideos
	params.WMin = cfg.Temporal.WMin
	params.WMax = cfg.Temporal.WMax
	params.AnchorTop = cfg.Temporal.AnchorTop
	params.AnchorWindow = cfg.Temporal.AnchorWindow
	params.AnchorBoost = float32(cfg.Temporal.AnchorBoost)

	start := time.Now()
	resp, err := s.engine.TA.Align(ctx, query, params)
	resultCount := 0
	if resp != nil {
		resultCount = len(resp.Results)
	}
	s.recordQuery(telemetry.QueryKindTemporal, string(model), resultCount, start)
	if err != nil {
		return nil, temporalSearchOutput{}, mapError(err)
	}

	out := temporalSearchOutput{Results: make([]temporalResultOutput, 0, len(resp.Results))}
	for _, r := range resp.Results {
		out.Results = append(out.Results, temporalResultOutput{VideoID: r.VideoID, Frames: r.Frames, Score: r.Score})
	}
	return nil, out, nil
}

func (s *Server) handleFuseSearch(ctx context.Context, _ *mcp.CallToolRequest, in fuseSearchInput) (*mcp.CallToolResult, fuseSearchOutput, error) {
	limit := defaultLimit(in.Limit)
	start := time.Now()

	var hits []fusion.Hit
	var err error
	switch {
	case strings.TrimSpace(in.Image) != "":
		hits, err = s.engine.MMF.ImageSearch(ctx, resolveImageSource(in.Image), limit)
	case strings.TrimSpace(in.Query) != "":
		hits, err = s.engine.MMF.TextSearch(ctx, in.Query, limit)
	default:
		return nil, fuseSearchOutput{}, newInvalidParamsError("provide either query or image")
	}

	s.recordQuery(telemetry.QueryKindFusion, "", len(hits), start)
	if err != nil {
		return nil, fuseSearchOutput{}, mapError(err)
	}

	out := fuseSearchOutput{Results: make([]fuseHitOutput, 0, len(hits))}
	for _, h := range hits {
		out.Results = append(out.Results, fuseHitOutput{AssetPath: h.AssetPath, Score: h.Score, ID: h.ID, Model: string(h.Model)})
	}
	return nil, out, nil
}

func toHitOutputs(hits []retrieval.Hit) []hitOutput {
	out := make([]hitOutput, len(hits))
	for i, h := range hits {
		out[i] = hitOutput{AssetPath: h.AssetPath, Score: h.Score, ID: h.ID}
	}
	return out
}

func defaultLimit(n int) int {
	if n <= 0 {
		return 10
	}
	if n > 200 {
		return 200
	}
	return n
}

func resolveImageSource(s string) imagesrc.Source {
	switch {
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return imagesrc.FromHTTPURL(s)
	case strings.HasPrefix(s, "data:"):
		return imagesrc.FromDataURL(s)
	default:
		return imagesrc.FromPath(s)
	}
}

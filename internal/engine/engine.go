// Package engine assembles the full request path - asset map, vector
// indexes, query encoders, retrieval, temporal alignment, fusion, and
// query telemetry - from a validated configuration. It is the single
// place both the CLI and the MCP adapter build their working state from,
// so the two surfaces can never drift on how a model gets wired up.
package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kfsearch/kfsearch/internal/asset"
	"github.com/kfsearch/kfsearch/internal/config"
	"github.com/kfsearch/kfsearch/internal/fusion"
	"github.com/kfsearch/kfsearch/internal/pvfs"
	"github.com/kfsearch/kfsearch/internal/queryenc"
	"github.com/kfsearch/kfsearch/internal/retrieval"
	"github.com/kfsearch/kfsearch/internal/telemetry"
	"github.com/kfsearch/kfsearch/internal/temporal"
	"github.com/kfsearch/kfsearch/internal/translate"
	"github.com/kfsearch/kfsearch/internal/vectorindex"
)

// Engine bundles every component a caller needs, assembled once from a
// validated Config.
type Engine struct {
	Cfg      *config.Config
	Assets   *asset.Map
	Indexes  *vectorindex.Registry
	Encoders *queryenc.Registry
	RE       *retrieval.Engine
	PV       *pvfs.Store
	TA       *temporal.Aligner
	MMF      *fusion.Fusion
	Metrics  *telemetry.QueryMetrics
}

// Build wires up every component from cfg. It fails closed: an enabled
// model whose index or encoder backend cannot be reached aborts
// construction rather than silently running with fewer models than
// configured.
func Build(ctx context.Context, cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	assets, err := asset.Load(cfg.Paths.IDMapPath)
	if err != nil {
		return nil, fmt.Errorf("load id map: %w", err)
	}

	translator := buildTranslator(cfg)

	indexes := vectorindex.NewRegistry()
	var encoderList []queryenc.Encoder
	for _, tag := range cfg.EnabledModels() {
		mc, _ := cfg.ModelByTag(tag)

		indexPath := mc.IndexFile
		if !filepath.IsAbs(indexPath) {
			indexPath = filepath.Join(cfg.Paths.IndexRoot, indexPath)
		}
		if err := indexes.Load(tag, indexPath, mc.Dimensions, mc.ExpectedLen); err != nil {
			return nil, fmt.Errorf("load index for %s: %w", tag, err)
		}

		enc, err := queryenc.NewHTTPEncoder(ctx, queryenc.BackendConfig{
			Tag:       tag,
			Endpoint:  mc.Endpoint,
			Dim:       mc.Dimensions,
			MaxTokens: mc.MaxTokens,
		}, translator)
		if err != nil {
			return nil, fmt.Errorf("connect encoder for %s: %w", tag, err)
		}
		encoderList = append(encoderList, enc)
	}
	encoders := queryenc.NewRegistry(encoderList...)

	re, err := retrieval.New(indexes, encoders, assets)
	if err != nil {
		return nil, fmt.Errorf("build retrieval engine: %w", err)
	}

	pv, err := pvfs.New(pvfs.Config{
		FeaturesRoot:      cfg.Paths.FeaturesRoot,
		Extension:         cfg.PVFS.Extension,
		CacheBudgetFloats: cfg.PVFS.CacheBudgetFloats,
	})
	if err != nil {
		return nil, fmt.Errorf("build feature store: %w", err)
	}

	ta := temporal.New(re, pv, assets, encoders, translator)
	mmf := fusion.New(re, cfg.EnabledModels())

	metricsStore, err := telemetry.OpenSQLiteMetricsStore(MetricsDBPath())
	var metrics *telemetry.QueryMetrics
	if err != nil {
		// Telemetry is observational only; a store we can't open should
		// never block a search from running.
		metrics = telemetry.NewQueryMetrics(nil)
	} else {
		metrics = telemetry.NewQueryMetrics(metricsStore)
	}

	return &Engine{
		Cfg:      cfg,
		Assets:   assets,
		Indexes:  indexes,
		Encoders: encoders,
		RE:       re,
		PV:       pv,
		TA:       ta,
		MMF:      mmf,
		Metrics:  metrics,
	}, nil
}

func buildTranslator(cfg *config.Config) translate.Translator {
	if cfg.Translate.Endpoint == "" {
		return translate.Passthrough{}
	}
	return translate.NewHTTPTranslator(cfg.Translate.Endpoint, 0)
}

// Close releases every component that owns a file handle or connection.
func (e *Engine) Close() error {
	if e.Metrics != nil {
		_ = e.Metrics.Close()
	}
	return e.Indexes.Close()
}

// MetricsDBPath is the default location of the local query telemetry store.
func MetricsDBPath() string {
	return filepath.Join(config.GetUserConfigDir(), "metrics.db")
}

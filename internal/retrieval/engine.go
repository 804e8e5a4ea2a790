// Package retrieval implements the retrieval engine (RE): the
// single-model query pipeline for text, image, and neighbor search.
package retrieval

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/kfsearch/kfsearch/internal/asset"
	"github.com/kfsearch/kfsearch/internal/imagesrc"
	"github.com/kfsearch/kfsearch/internal/kferrors"
	"github.com/kfsearch/kfsearch/internal/queryenc"
	"github.com/kfsearch/kfsearch/internal/vectorindex"
)

// Hit is a single ranked result.
type Hit struct {
	Score     float32
	ID        uint64
	AssetPath string
}

// Engine orchestrates single-model search: select an EI by model, encode
// the probe via QE, search, map ids through IAM, and return ranked hits.
type Engine struct {
	indexes  *vectorindex.Registry
	encoders *queryenc.Registry
	assets   *asset.Map
}

// New constructs a retrieval engine over the given component handles. All
// three must be non-nil; they are immutable for the engine's lifetime.
func New(indexes *vectorindex.Registry, encoders *queryenc.Registry, assets *asset.Map) (*Engine, error) {
	if indexes == nil || encoders == nil || assets == nil {
		return nil, fmt.Errorf("retrieval: indexes, encoders, and assets are all required")
	}
	return &Engine{indexes: indexes, encoders: encoders, assets: assets}, nil
}

// TextSearch encodes query text under model and returns up to k hits.
func (e *Engine) TextSearch(ctx context.Context, model vectorindex.ModelTag, query string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	enc, err := e.encoders.Get(model)
	if err != nil {
		return nil, err
	}
	vec, err := enc.EncodeText(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.searchVector(model, vec, k)
}

// ImageSearch encodes an image probe under model and returns up to k hits.
func (e *Engine) ImageSearch(ctx context.Context, model vectorindex.ModelTag, src imagesrc.Source, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	enc, err := e.encoders.Get(model)
	if err != nil {
		return nil, err
	}
	vec, err := enc.EncodeImage(ctx, src)
	if err != nil {
		return nil, err
	}
	return e.searchVector(model, vec, k)
}

// NeighborSearch reconstructs the vector stored at id in model's EI and
// searches with it, returning the id's own nearest neighbors.
func (e *Engine) NeighborSearch(ctx context.Context, model vectorindex.ModelTag, id uint64, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := kferrors.FromContext(ctx); err != nil {
		return nil, err
	}
	idx, err := e.indexes.Get(model)
	if err != nil {
		return nil, err
	}
	vec, err := idx.Reconstruct(id)
	if err != nil {
		return nil, err
	}
	return e.searchVector(model, vec, k)
}

// TextSearchVector searches with an already-encoded query vector,
// skipping QE. Used by callers (the temporal aligner) that need the raw
// per-sentence vector for later similarity-matrix work in addition to a
// ranked shortlist.
func (e *Engine) TextSearchVector(model vectorindex.ModelTag, vec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	return e.searchVector(model, vec, k)
}

func (e *Engine) searchVector(model vectorindex.ModelTag, vec []float32, k int) ([]Hit, error) {
	idx, err := e.indexes.Get(model)
	if err != nil {
		return nil, err
	}
	raw, err := idx.Search(vec, k)
	if err != nil {
		return nil, err
	}
	return e.toHits(model, raw), nil
}

// toHits resolves ids through the asset map, applies the model's score
// floor, and deduplicates by asset path keeping the highest score.
func (e *Engine) toHits(model vectorindex.ModelTag, raw []vectorindex.Hit) []Hit {
	floor := vectorindex.ScoreFloor(model)
	best := make(map[string]Hit)
	var order []string

	for _, r := range raw {
		if r.ID == vectorindex.SentinelID {
			continue
		}
		if r.Score < floor {
			continue
		}
		p, err := e.assets.PathOf(r.ID)
		if err != nil {
			continue // data-gap: drop silently within this aggregation
		}
		p = path.Clean(p)
		hit := Hit{Score: r.Score, ID: r.ID, AssetPath: p}
		if existing, ok := best[p]; !ok || hit.Score > existing.Score {
			if !ok {
				order = append(order, p)
			}
			best[p] = hit
		}
	}

	out := make([]Hit, 0, len(order))
	for _, p := range order {
		out = append(out, best[p])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

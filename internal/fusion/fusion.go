// Package fusion implements multi-model fusion (MMF): runs the retrieval
// engine once per configured model, concurrently, and merges the ranked
// lists into one by keeping the highest-scoring hit per asset path.
package fusion

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kfsearch/kfsearch/internal/imagesrc"
	"github.com/kfsearch/kfsearch/internal/kferrors"
	"github.com/kfsearch/kfsearch/internal/retrieval"
	"github.com/kfsearch/kfsearch/internal/vectorindex"
)

// Hit carries the winning model's identity for observability; it is never
// consulted when ranking.
type Hit struct {
	retrieval.Hit
	Model vectorindex.ModelTag
}

// Fusion runs RE once per model and deduplicates the combined result.
type Fusion struct {
	re     *retrieval.Engine
	models []vectorindex.ModelTag
}

// New constructs a fusion layer over the given models. The models are
// searched concurrently; their order in models only decides ties: when two
// models score an asset path equally, the earlier model's hit is kept, and
// equally scored paths keep first-seen order.
func New(re *retrieval.Engine, models []vectorindex.ModelTag) *Fusion {
	return &Fusion{re: re, models: models}
}

// TextSearch runs text_search for every configured model concurrently,
// deduplicates by asset path keeping the highest score, and truncates to
// k.
func (f *Fusion) TextSearch(ctx context.Context, query string, k int) ([]Hit, error) {
	return f.search(ctx, k, func(ctx context.Context, m vectorindex.ModelTag) ([]retrieval.Hit, error) {
		return f.re.TextSearch(ctx, m, query, k)
	})
}

// ImageSearch runs image_search for every configured model concurrently.
func (f *Fusion) ImageSearch(ctx context.Context, src imagesrc.Source, k int) ([]Hit, error) {
	return f.search(ctx, k, func(ctx context.Context, m vectorindex.ModelTag) ([]retrieval.Hit, error) {
		return f.re.ImageSearch(ctx, m, src, k)
	})
}

func (f *Fusion) search(ctx context.Context, k int, call func(context.Context, vectorindex.ModelTag) ([]retrieval.Hit, error)) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	perModel := make([][]retrieval.Hit, len(f.models))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range f.models {
		i, m := i, m
		g.Go(func() error {
			hits, err := call(gctx, m)
			if err != nil {
				if kferrors.IsDataGap(err) {
					return nil // a model with no matching content contributes nothing
				}
				return err
			}
			perModel[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return dedupeHighestScore(f.models, perModel, k), nil
}

// dedupeHighestScore merges per-model hit lists, keeping the
// highest-scoring hit for each asset path, sorts descending, and
// truncates to k.
func dedupeHighestScore(models []vectorindex.ModelTag, perModel [][]retrieval.Hit, k int) []Hit {
	best := make(map[string]Hit)
	var order []string

	for i, hits := range perModel {
		model := models[i]
		for _, h := range hits {
			existing, ok := best[h.AssetPath]
			if !ok {
				order = append(order, h.AssetPath)
				best[h.AssetPath] = Hit{Hit: h, Model: model}
				continue
			}
			if h.Score > existing.Score {
				best[h.AssetPath] = Hit{Hit: h, Model: model}
			}
		}
	}

	out := make([]Hit, 0, len(order))
	for _, p := range order {
		out = append(out, best[p])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

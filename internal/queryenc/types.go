// Package queryenc implements the query encoder (QE): the per-model
// adapter layer that turns a text string or an image source into a
// unit-norm vector in that model's embedding space.
package queryenc

import (
	"context"
	"math"

	"github.com/kfsearch/kfsearch/internal/imagesrc"
	"github.com/kfsearch/kfsearch/internal/vectorindex"
)

// MaxTokens declares a model's fixed token window. Models without a limit
// (0) skip the truncation step entirely.
type MaxTokens int

// Encoder produces query embeddings for a single model. Implementations
// must declare themselves statically; there is no dynamic provider
// discovery and no mock fallback.
type Encoder interface {
	EncodeText(ctx context.Context, text string) ([]float32, error)
	EncodeImage(ctx context.Context, src imagesrc.Source) ([]float32, error)
	Dim() int
	Tag() vectorindex.ModelTag
}

// Normalize L2-normalizes v in place and returns it. An all-zero vector is
// returned unchanged, per the degenerate-query contract.
func Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
	return v
}

package fusion

import (
	"context"
	"testing"

	"github.com/kfsearch/kfsearch/internal/asset"
	"github.com/kfsearch/kfsearch/internal/queryenc"
	"github.com/kfsearch/kfsearch/internal/retrieval"
	"github.com/kfsearch/kfsearch/internal/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFusion(t *testing.T) *Fusion {
	t.Helper()

	rawAssets := map[string]string{
		"0": "Keyframes_L21/keyframes/L21_V001/001.jpg",
		"1": "Keyframes_L21/keyframes/L21_V001/002.jpg",
		"2": "Keyframes_L21/keyframes/L21_V002/001.jpg",
	}
	am, err := asset.FromMap(rawAssets)
	require.NoError(t, err)

	// CLIP: id 0 is the best match.
	clipRows := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	clipIdx, err := vectorindex.NewFlatIndexFromRows(3, clipRows)
	require.NoError(t, err)

	// BEiT-3's query vector below is {0,1,0}; id 2 is its best match, a
	// distinct asset from CLIP's own best match (id 0).
	beitRows := [][]float32{{1, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	beitIdx, err := vectorindex.NewFlatIndexFromRows(3, beitRows)
	require.NoError(t, err)

	reg := vectorindex.NewRegistry()
	reg.Set(vectorindex.ModelClip, clipIdx)
	reg.Set(vectorindex.ModelBeit3, beitIdx)

	encReg := queryenc.NewRegistry(
		&clipTextEncoder{},
		&beitTextEncoder{},
	)

	re, err := retrieval.New(reg, encReg, am)
	require.NoError(t, err)

	return New(re, []vectorindex.ModelTag{vectorindex.ModelClip, vectorindex.ModelBeit3})
}

// clipTextEncoder/beitTextEncoder embed queryenc.Encoder so that only the
// methods these tests call need bodies; EncodeImage is left to the nil
// embedded interface and is never called here.
type clipTextEncoder struct{ queryenc.Encoder }

func (c *clipTextEncoder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (c *clipTextEncoder) Dim() int                 { return 3 }
func (c *clipTextEncoder) Tag() vectorindex.ModelTag { return vectorindex.ModelClip }

type beitTextEncoder struct{ queryenc.Encoder }

func (b *beitTextEncoder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	return []float32{0, 1, 0}, nil
}
func (b *beitTextEncoder) Dim() int                 { return 3 }
func (b *beitTextEncoder) Tag() vectorindex.ModelTag { return vectorindex.ModelBeit3 }

func TestTextSearchMergesAcrossModels(t *testing.T) {
	f := buildFusion(t)
	hits, err := f.TextSearch(context.Background(), "a person walking", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	// BEiT-3's id 2 and CLIP's id 0 are both perfect matches for their
	// respective query vectors and target different asset paths, so both
	// should survive the dedup.
	var byModel = map[vectorindex.ModelTag]bool{}
	var byPath = map[string]bool{}
	for _, h := range hits {
		byModel[h.Model] = true
		byPath[h.AssetPath] = true
	}
	assert.True(t, byModel[vectorindex.ModelClip])
	assert.True(t, byModel[vectorindex.ModelBeit3])
	assert.True(t, byPath["Keyframes_L21/keyframes/L21_V001/001.jpg"])
	assert.True(t, byPath["Keyframes_L21/keyframes/L21_V002/001.jpg"])
}

func TestTextSearchDedupesKeepingHighestScore(t *testing.T) {
	rawAssets := map[string]string{
		"0": "Keyframes_L21/keyframes/L21_V001/001.jpg",
	}
	am, err := asset.FromMap(rawAssets)
	require.NoError(t, err)

	rows := [][]float32{{1, 0, 0}}
	idxA, err := vectorindex.NewFlatIndexFromRows(3, rows)
	require.NoError(t, err)
	idxB, err := vectorindex.NewFlatIndexFromRows(3, rows)
	require.NoError(t, err)

	reg := vectorindex.NewRegistry()
	reg.Set(vectorindex.ModelClip, idxA)
	reg.Set(vectorindex.ModelLongClip, idxB)

	encReg := queryenc.NewRegistry(&clipTextEncoder{}, &longClipOffAxisEncoder{})
	re, err := retrieval.New(reg, encReg, am)
	require.NoError(t, err)

	f := New(re, []vectorindex.ModelTag{vectorindex.ModelClip, vectorindex.ModelLongClip})
	hits, err := f.TextSearch(context.Background(), "q", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, vectorindex.ModelClip, hits[0].Model)
}

type longClipOffAxisEncoder struct{ queryenc.Encoder }

func (l *longClipOffAxisEncoder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.8, 0.6, 0}, nil
}
func (l *longClipOffAxisEncoder) Dim() int                 { return 3 }
func (l *longClipOffAxisEncoder) Tag() vectorindex.ModelTag { return vectorindex.ModelLongClip }

func TestTextSearchTruncatesToK(t *testing.T) {
	f := buildFusion(t)
	hits, err := f.TextSearch(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestTextSearchKZeroReturnsEmpty(t *testing.T) {
	f := buildFusion(t)
	hits, err := f.TextSearch(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

package pvfs

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/kfsearch/kfsearch/internal/kferrors"
	"github.com/kfsearch/kfsearch/internal/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFeatureFile(t *testing.T, root string, model vectorindex.ModelTag, videoID string, rows [][]float32) {
	t.Helper()
	dir := filepath.Join(root, "features-"+string(model), "features")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(rows)))
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	binary.LittleEndian.PutUint32(buf[4:8], uint32(cols))

	for _, row := range rows {
		for _, x := range row {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(x))
			buf = append(buf, b[:]...)
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, videoID+".bin"), buf, 0o644))
}

func TestStoreLoadsAndCaches(t *testing.T) {
	root := t.TempDir()
	writeFeatureFile(t, root, vectorindex.ModelClip, "L21_V001", [][]float32{
		{1, 0}, {0, 1},
	})

	s, err := New(Config{FeaturesRoot: root})
	require.NoError(t, err)

	m, err := s.Load(vectorindex.ModelClip, "L21_V001")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Rows)
	assert.Equal(t, []float32{1, 0}, m.Row(0))

	m2, err := s.Load(vectorindex.ModelClip, "L21_V001")
	require.NoError(t, err)
	assert.Same(t, m, m2, "second load should be served from cache")
}

func TestStoreUnknownVideoFails(t *testing.T) {
	root := t.TempDir()
	s, err := New(Config{FeaturesRoot: root})
	require.NoError(t, err)

	_, err = s.Load(vectorindex.ModelClip, "missing")
	require.Error(t, err)
	assert.Equal(t, kferrors.ErrCodeUnknownVideo, kferrors.Code(err))
}

func TestStoreRenormalizesDriftedRows(t *testing.T) {
	root := t.TempDir()
	writeFeatureFile(t, root, vectorindex.ModelClip, "L21_V002", [][]float32{
		{2, 0}, // norm 2, well outside the 1e-5 drift tolerance
	})

	s, err := New(Config{FeaturesRoot: root})
	require.NoError(t, err)

	m, err := s.Load(vectorindex.ModelClip, "L21_V002")
	require.NoError(t, err)
	assert.InDelta(t, float64(1.0), float64(m.Row(0)[0]), 1e-6)
}

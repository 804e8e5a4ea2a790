package vectorindex

import (
	"path/filepath"
	"testing"

	"github.com/kfsearch/kfsearch/internal/kferrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLoadAndGet(t *testing.T) {
	idx, err := NewFlatIndexFromRows(3, unitRows())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "clip.gob")
	require.NoError(t, idx.Save(path))

	r := NewRegistry()
	require.NoError(t, r.Load(ModelClip, path, 3, len(unitRows())))

	got, err := r.Get(ModelClip)
	require.NoError(t, err)
	assert.Equal(t, len(unitRows()), got.Len())
	assert.Equal(t, []ModelTag{ModelClip}, r.Tags())
}

func TestRegistryGetUnloadedModelIsModelUnavailable(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(ModelBeit3)
	require.Error(t, err)
	assert.Equal(t, kferrors.ErrCodeModelUnavailable, kferrors.Code(err))
}

func TestRegistryLoadRejectsSizeMismatch(t *testing.T) {
	idx, err := NewFlatIndexFromRows(3, unitRows())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "clip.gob")
	require.NoError(t, idx.Save(path))

	r := NewRegistry()
	err = r.Load(ModelClip, path, 3, len(unitRows())+1)
	require.Error(t, err)
	assert.Equal(t, kferrors.ErrCodeSizeMismatch, kferrors.Code(err))
}

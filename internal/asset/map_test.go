package asset

import (
	"testing"

	"github.com/kfsearch/kfsearch/internal/kferrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRaw() map[string]string {
	return map[string]string{
		"0": `Keyframes_L21/keyframes/L21_V001/001.jpg`,
		"1": `Keyframes_L21/keyframes/L21_V001/002.jpg`,
		"2": `Keyframes_L21\keyframes\L21_V002\001.jpg`,
	}
}

func TestFromMapBuildsDescriptors(t *testing.T) {
	m, err := FromMap(sampleRaw())
	require.NoError(t, err)
	require.Equal(t, 3, m.Len())

	d, err := m.Describe(0)
	require.NoError(t, err)
	assert.Equal(t, "L21_V001", d.VideoID)
	assert.Equal(t, "L21", d.Batch)
	assert.Equal(t, 1, d.FrameNo)

	d2, err := m.Describe(2)
	require.NoError(t, err)
	assert.Equal(t, "Keyframes_L21/keyframes/L21_V002/001.jpg", d2.Path, "backslashes must canonicalize to forward slashes")
}

func TestIDsOfVideoSortedByFrameNo(t *testing.T) {
	m, err := FromMap(sampleRaw())
	require.NoError(t, err)

	ids, ok := m.IDsOfVideo("L21_V001")
	require.True(t, ok)
	assert.Equal(t, []uint64{0, 1}, ids)

	_, ok = m.IDsOfVideo("nonexistent")
	assert.False(t, ok)
}

func TestPathOfUnknownIDFails(t *testing.T) {
	m, err := FromMap(sampleRaw())
	require.NoError(t, err)

	_, err = m.PathOf(99)
	require.Error(t, err)
	assert.Equal(t, kferrors.ErrCodeUnknownID, kferrors.Code(err))
}

func TestFromMapRejectsGapInKeySpace(t *testing.T) {
	raw := map[string]string{
		"0": `Keyframes_L21/keyframes/L21_V001/001.jpg`,
		"2": `Keyframes_L21/keyframes/L21_V001/002.jpg`,
	}
	_, err := FromMap(raw)
	require.Error(t, err)
}

func TestFromMapRejectsUnparseablePath(t *testing.T) {
	raw := map[string]string{"0": "not-a-valid-asset-path"}
	_, err := FromMap(raw)
	require.Error(t, err)
}

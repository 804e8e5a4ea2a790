package imagesrc

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestLoadFromBytes(t *testing.T) {
	rgb, err := Load(FromBytes(tinyPNG(t)))
	require.NoError(t, err)
	assert.Equal(t, 4, rgb.Width)
	assert.Equal(t, 4, rgb.Height)
	assert.Equal(t, byte(10), rgb.Pix[0])
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.png")
	require.NoError(t, os.WriteFile(path, tinyPNG(t), 0o644))

	rgb, err := Load(FromPath(path))
	require.NoError(t, err)
	assert.Equal(t, 4, rgb.Width)
}

func TestLoadFromMissingPathFails(t *testing.T) {
	_, err := Load(FromPath("/does/not/exist.png"))
	require.Error(t, err)
}

func TestLoadFromDataURL(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(tinyPNG(t))
	rgb, err := Load(FromDataURL("data:image/png;base64," + encoded))
	require.NoError(t, err)
	assert.Equal(t, 4, rgb.Height)
}

func TestLoadFromHTTPURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tinyPNG(t))
	}))
	defer srv.Close()

	rgb, err := Load(FromHTTPURL(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, 4, rgb.Width)
}

func TestLoadFromHTTPURLNon200Fails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Load(FromHTTPURL(srv.URL))
	require.Error(t, err)
}

func TestResizePreservesAspectTarget(t *testing.T) {
	rgb, err := Load(FromBytes(tinyPNG(t)))
	require.NoError(t, err)

	resized := Resize(rgb, 8, 8)
	assert.Equal(t, 8, resized.Width)
	assert.Equal(t, 8, resized.Height)
}

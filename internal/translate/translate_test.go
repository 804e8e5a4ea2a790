package translate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kfsearch/kfsearch/internal/kferrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassthroughReturnsInputUnchanged(t *testing.T) {
	out, err := Passthrough{}.Translate(context.Background(), "a red car")
	require.NoError(t, err)
	assert.Equal(t, "a red car", out)
}

func TestHTTPTranslatorRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"a red car"}`))
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(srv.URL, 0)
	out, err := tr.Translate(context.Background(), "một chiếc xe màu đỏ")
	require.NoError(t, err)
	assert.Equal(t, "a red car", out)
}

func TestHTTPTranslatorUnavailable(t *testing.T) {
	tr := NewHTTPTranslator("http://127.0.0.1:1", 0)
	_, err := tr.Translate(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, kferrors.ErrCodeTranslatorUnavailable, kferrors.Code(err))
}

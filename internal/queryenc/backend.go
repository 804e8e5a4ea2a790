package queryenc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kfsearch/kfsearch/internal/imagesrc"
	"github.com/kfsearch/kfsearch/internal/kferrors"
	"github.com/kfsearch/kfsearch/internal/translate"
	"github.com/kfsearch/kfsearch/internal/vectorindex"
)

// BackendConfig configures a single model's HTTP encoder backend: a local
// process that owns the model weights and tokenizer and exposes
// /encode_text and /encode_image over HTTP, analogous to a local
// inference server.
type BackendConfig struct {
	Tag       vectorindex.ModelTag
	Endpoint  string // e.g. http://localhost:9659
	Dim       int
	MaxTokens int // 0 means no fixed token window
}

// HTTPEncoder talks to a model's local encoder backend. It never retries
// and never synthesizes a result when the backend is unreachable; callers
// see ModelUnavailable instead.
type HTTPEncoder struct {
	cfg        BackendConfig
	client     *http.Client
	translator translate.Translator
}

var _ Encoder = (*HTTPEncoder)(nil)

// NewHTTPEncoder constructs an encoder for one model's backend. The health
// check at construction time means a model that cannot be reached never
// enters the registry at all.
func NewHTTPEncoder(ctx context.Context, cfg BackendConfig, translator translate.Translator) (*HTTPEncoder, error) {
	e := &HTTPEncoder{
		cfg:        cfg,
		client:     &http.Client{},
		translator: translator,
	}
	if err := e.healthCheck(ctx); err != nil {
		return nil, kferrors.ModelUnavailable(fmt.Sprintf("encoder backend for %s unavailable at %s", cfg.Tag, cfg.Endpoint), err)
	}
	return e, nil
}

func (e *HTTPEncoder) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (e *HTTPEncoder) Dim() int                 { return e.cfg.Dim }
func (e *HTTPEncoder) Tag() vectorindex.ModelTag { return e.cfg.Tag }

type encodeTextRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

type encodeResponse struct {
	Embedding []float64 `json:"embedding"`
}

type encodeImageRequest struct {
	ImageBase64 string `json:"image_base64"`
	Model       string `json:"model"`
}

// EncodeText translates the text, truncates it if the model has a fixed
// token window, and posts it to the backend for encoding. The result is
// always re-normalized before return.
func (e *HTTPEncoder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	if err := kferrors.FromContext(ctx); err != nil {
		return nil, err
	}

	translated, err := e.translator.Translate(ctx, text)
	if err != nil {
		return nil, err
	}

	body := translated
	if e.cfg.MaxTokens > 0 {
		body = TruncateForTokens(translated, e.cfg.MaxTokens)
	}

	v, err := e.postEncodeText(ctx, body)
	if err != nil && e.cfg.MaxTokens > 0 {
		hard := HardTruncate(body)
		v, err = e.postEncodeText(ctx, hard)
		if err != nil {
			return nil, TokenEncodingFailedError(err)
		}
	}
	if err != nil {
		return nil, err
	}
	return Normalize(v), nil
}

func (e *HTTPEncoder) postEncodeText(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(encodeTextRequest{Text: text, Model: string(e.cfg.Tag)})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint+"/encode_text", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, kferrors.HTTPFetchFailed(fmt.Sprintf("encode_text request to %s", e.cfg.Endpoint), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, kferrors.HTTPFetchFailed(fmt.Sprintf("encode_text status %d: %s", resp.StatusCode, string(b)), nil)
	}

	var out encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode encode_text response: %w", err)
	}
	return toFloat32(out.Embedding), nil
}

// EncodeImage reduces src to an RGB buffer, re-encodes it for transport,
// and posts it to the backend.
func (e *HTTPEncoder) EncodeImage(ctx context.Context, src imagesrc.Source) ([]float32, error) {
	if err := kferrors.FromContext(ctx); err != nil {
		return nil, err
	}

	rgb, err := imagesrc.Load(src)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(encodeImageRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(rgb.Pix),
		Model:       string(e.cfg.Tag),
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint+"/encode_image", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, kferrors.HTTPFetchFailed(fmt.Sprintf("encode_image request to %s", e.cfg.Endpoint), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, kferrors.HTTPFetchFailed(fmt.Sprintf("encode_image status %d: %s", resp.StatusCode, string(b)), nil)
	}

	var out encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode encode_image response: %w", err)
	}

	slog.Debug("query_image_encoded", slog.String("model", string(e.cfg.Tag)), slog.Int("width", rgb.Width), slog.Int("height", rgb.Height))
	return Normalize(toFloat32(out.Embedding)), nil
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

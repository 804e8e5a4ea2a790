// Package translate provides the query encoder's translation dependency:
// an opaque string-to-string function the core treats as a pure external
// collaborator. No retries, no caching beyond what the translator itself
// provides.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kfsearch/kfsearch/internal/kferrors"
)

// Translator translates text into the language the encoder backends were
// trained on. Failures propagate unchanged; the core never retries.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Passthrough is a no-op translator for deployments where the query
// language already matches the encoder's trained language.
type Passthrough struct{}

func (Passthrough) Translate(_ context.Context, text string) (string, error) { return text, nil }

// HTTPTranslator calls an external translation service over HTTP. It is a
// thin client: one request, no retry, no cache.
type HTTPTranslator struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTranslator builds a translator against endpoint, which must accept
// a JSON body {"text": "..."} and return {"text": "..."}.
func NewHTTPTranslator(endpoint string, timeout time.Duration) *HTTPTranslator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTranslator{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

type translateRequest struct {
	Text string `json:"text"`
}

type translateResponse struct {
	Text string `json:"text"`
}

func (t *HTTPTranslator) Translate(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(translateRequest{Text: text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", kferrors.TranslatorUnavailable(fmt.Sprintf("translate request to %s", t.endpoint), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", kferrors.TranslatorUnavailable(fmt.Sprintf("translate status %d: %s", resp.StatusCode, string(b)), nil)
	}

	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode translate response: %w", err)
	}
	return out.Text, nil
}

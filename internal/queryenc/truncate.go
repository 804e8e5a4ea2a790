package queryenc

import (
	"unicode/utf8"

	"github.com/sentencizer/sentencizer"

	"github.com/kfsearch/kfsearch/internal/kferrors"
)

// segmenter splits text into sentences for the truncation algorithm. It is
// shared process-wide; sentencizer's segmenter holds no per-call state.
var segmenter = sentencizer.New("en")

// TruncateForTokens implements the deterministic byte-budget truncation
// required before tokenizing text for a fixed-token-window encoder. It
// never splits a UTF-8 rune.
func TruncateForTokens(text string, maxTokens int) string {
	budget := 4 * maxTokens
	if len(text) <= budget {
		return text
	}

	sentences := segmenter.Segment(text)
	if len(sentences) == 0 {
		return truncateBytes(text, budget)
	}

	first := sentences[0]
	if len(first) <= budget {
		return first
	}

	if len(sentences) > 1 {
		last := sentences[len(sentences)-1]
		combined := first + " " + last
		if len(combined) <= budget {
			return combined
		}
	}

	head := int(0.6 * float64(budget))
	tail := int(0.4 * float64(budget))
	return truncateBytes(text, head) + "…" + truncateTail(text, tail)
}

// truncateBytes returns a UTF-8-safe prefix of at most n bytes.
func truncateBytes(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// truncateTail returns a UTF-8-safe suffix of at most n bytes.
func truncateTail(s string, n int) string {
	if n >= len(s) {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

// HardTruncate is the 50-byte last-resort truncation applied after a first
// tokenization failure. A second failure after this surfaces
// TokenEncodingFailed.
func HardTruncate(text string) string {
	return truncateBytes(text, 50)
}

// TokenEncodingFailedError wraps a second consecutive tokenization
// failure per the hard-truncate-and-retry contract.
func TokenEncodingFailedError(cause error) error {
	return kferrors.TokenEncodingFailed("tokenization failed after hard truncation", cause)
}

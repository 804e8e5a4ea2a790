package queryenc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateForTokensShortTextUnchanged(t *testing.T) {
	text := "a short query"
	assert.Equal(t, text, TruncateForTokens(text, 77))
}

func TestTruncateForTokensLongTextIsBounded(t *testing.T) {
	long := strings.Repeat("một chiếc xe màu đỏ trong đêm tối. ", 200)
	out := TruncateForTokens(long, 77)
	assert.LessOrEqual(t, len(out), 4*77+len("…")+100)
	assert.True(t, strings.HasPrefix(out, "một"))
}

func TestHardTruncateBoundsToFiftyBytes(t *testing.T) {
	long := strings.Repeat("x", 500)
	assert.LessOrEqual(t, len(HardTruncate(long)), 50)
}

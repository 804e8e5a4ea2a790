package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// =============================================================================
// Config Merge Edge Cases
// =============================================================================

func TestLoad_ModelListReplacedWholesaleByTag(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
models:
  - tag: CLIP
    enabled: true
    endpoint: http://localhost:8601
    dimensions: 512
    max_tokens: 77
`
	err := os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	// The project config only mentions CLIP; the other three defaults
	// (disabled) still carry through untouched.
	require.Len(t, cfg.Models, 4)
	m, ok := cfg.ModelByTag("LONGCLIP")
	require.True(t, ok)
	assert.False(t, m.Enabled)
}

func TestLoad_ZeroValuesNotMerged(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
retrieval:
  max_results: 0
models:
  - tag: CLIP
    enabled: true
    endpoint: http://localhost:8601
    dimensions: 512
    max_tokens: 77
`
	err := os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Retrieval.MaxResults, "zero should not override the default max_results")
}

func TestLoad_NegativeMaxResults_Validated(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
retrieval:
  max_results: -10
models:
  - tag: CLIP
    enabled: true
    endpoint: http://localhost:8601
    dimensions: 512
    max_tokens: 77
`
	err := os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)
	require.Error(t, err)
	require.Nil(t, cfg)
	assert.Contains(t, err.Error(), "max_results must be non-negative")
}

func TestValidate_EnabledModelMissingEndpoint(t *testing.T) {
	cfg := NewConfig()
	cfg.Models[0].Enabled = true
	cfg.Models[0].Endpoint = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint must be set")
}

func TestValidate_EnabledModelBadDimensions(t *testing.T) {
	cfg := NewConfig()
	cfg.Models[0].Enabled = true
	cfg.Models[0].Dimensions = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions must be positive")
}

func TestValidate_TemporalWMaxBelowWMin(t *testing.T) {
	cfg := NewConfig()
	cfg.Models[0].Enabled = true
	cfg.Temporal.WMin = 5
	cfg.Temporal.WMax = 2

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "w_max must be")
}

func TestValidate_DuplicateModelTagRejected(t *testing.T) {
	cfg := NewConfig()
	cfg.Models[0].Enabled = true
	cfg.Models = append(cfg.Models, cfg.Models[0])

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tag")
}

// =============================================================================
// Config File Permission Edge Cases
// =============================================================================

func TestLoad_UnreadableConfigFile_ReturnsError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("test requires non-root user")
	}

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".kfsearch.yaml")
	err := os.WriteFile(configPath, []byte("version: 1"), 0o000)
	require.NoError(t, err)
	defer func() { _ = os.Chmod(configPath, 0o644) }()

	cfg, err := Load(tmpDir)
	require.Error(t, err, "Load should fail for unreadable config file")
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "read", "error should mention read failure")
}

// =============================================================================
// Config JSON Marshaling Edge Cases
// =============================================================================

func TestConfig_JSON_RoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Retrieval.MaxResults = 42
	cfg.Temporal.WMin = 3
	cfg.Models[0].Enabled = true
	cfg.Models[0].Endpoint = "http://localhost:8601"

	data, err := jsonMarshal(cfg)
	require.NoError(t, err)

	var parsed Config
	err = jsonUnmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Equal(t, 42, parsed.Retrieval.MaxResults)
	assert.Equal(t, 3, parsed.Temporal.WMin)
	require.Len(t, parsed.Models, len(cfg.Models))
	assert.True(t, parsed.Models[0].Enabled)
	assert.Equal(t, "http://localhost:8601", parsed.Models[0].Endpoint)
}

func TestConfig_UnmarshalJSON_InvalidJSON_ReturnsError(t *testing.T) {
	invalidJSON := []byte("{invalid json")

	var cfg Config
	err := jsonUnmarshal(invalidJSON, &cfg)
	require.Error(t, err, "unmarshal should fail for invalid JSON")
}

// =============================================================================
// EnabledModels / ModelByTag Edge Cases
// =============================================================================

func TestEnabledModels_ReturnsOnlyEnabledInDeclaredOrder(t *testing.T) {
	cfg := NewConfig()
	cfg.Models[1].Enabled = true // LONGCLIP
	cfg.Models[3].Enabled = true // BEIT3

	tags := cfg.EnabledModels()
	require.Len(t, tags, 2)
	assert.Equal(t, "LONGCLIP", string(tags[0]))
	assert.Equal(t, "BEIT3", string(tags[1]))
}

func TestModelByTag_UnknownReturnsFalse(t *testing.T) {
	cfg := NewConfig()
	_, ok := cfg.ModelByTag("NOT_A_MODEL")
	assert.False(t, ok)
}

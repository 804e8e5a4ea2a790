package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kfsearch/kfsearch/internal/vectorindex"
)

// =============================================================================
// Default Configuration Tests
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "./data/indexes", cfg.Paths.IndexRoot)
	assert.Equal(t, "./data/features", cfg.Paths.FeaturesRoot)
	assert.Equal(t, "./data/id_map.json", cfg.Paths.IDMapPath)

	require.Len(t, cfg.Models, len(vectorindex.AllModelTags))
	for _, m := range cfg.Models {
		assert.False(t, m.Enabled, "models start disabled until an operator opts in")
	}

	assert.Equal(t, 100, cfg.Retrieval.MaxResults)

	assert.Equal(t, 1, cfg.Temporal.WMin)
	assert.Equal(t, 0, cfg.Temporal.WMax)
	assert.Equal(t, 200, cfg.Temporal.TopKPerSentence)
	assert.Equal(t, 30, cfg.Temporal.MaxCandidateVideos)
	assert.Equal(t, 5, cfg.Temporal.AnchorTop)
	assert.Equal(t, 2, cfg.Temporal.AnchorWindow)
	assert.InDelta(t, 0.10, cfg.Temporal.AnchorBoost, 1e-9)

	assert.Equal(t, 32*300*768, cfg.PVFS.CacheBudgetFloats)

	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
}

func TestConfig_VersionDefaultsToOne(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 1, cfg.Version)
}

// =============================================================================
// Configuration File Loading Tests
// =============================================================================

func withOneModelEnabled(yamlBody string) string {
	return yamlBody + "\nmodels:\n  - tag: CLIP\n    enabled: true\n    endpoint: http://localhost:8601\n    dimensions: 512\n    max_tokens: 77\n"
}

func TestLoad_NoConfigFile_FailsValidationWithNoModelEnabled(t *testing.T) {
	tmpDir := t.TempDir()

	// No project config and no user config: defaults ship with every
	// model disabled, which fails Validate (at least one must be
	// enabled), so Load surfaces that as a configuration error.
	_, err := Load(tmpDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one model")
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := withOneModelEnabled(`
version: 1
retrieval:
  max_results: 50
temporal:
  w_min: 2
  w_max: 10
`)
	err := os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Retrieval.MaxResults)
	assert.Equal(t, 2, cfg.Temporal.WMin)
	assert.Equal(t, 10, cfg.Temporal.WMax)
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := withOneModelEnabled(`
version: 1
`)
	err := os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	tags := cfg.EnabledModels()
	require.Len(t, tags, 1)
	assert.Equal(t, vectorindex.ModelClip, tags[0])
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	tmpDir := t.TempDir()
	yamlContent := withOneModelEnabled(`
version: 1
retrieval:
  max_results: 11
`)
	ymlContent := withOneModelEnabled(`
version: 1
retrieval:
  max_results: 22
`)
	err := os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yaml"), []byte(yamlContent), 0o644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yml"), []byte(ymlContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 11, cfg.Retrieval.MaxResults)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	invalidContent := `
version: 1
retrieval:
  max_results: [invalid yaml syntax
`
	err := os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoad_InvalidFieldType_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	invalidContent := `
version: 1
retrieval:
  max_results: "not-a-number"
`
	err := os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_UnknownModelTag_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
models:
  - tag: NOT_A_REAL_MODEL
    enabled: true
    endpoint: http://localhost:1
    dimensions: 8
`
	err := os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "unknown tag")
}

// =============================================================================
// Environment Variable Override Tests
// =============================================================================

func TestLoad_EnvVarOverridesMaxResults(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := withOneModelEnabled("version: 1\n")
	err := os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("KFSEARCH_MAX_RESULTS", "7")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retrieval.MaxResults)
}

func TestLoad_EnvVarOverridesLogLevel(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := withOneModelEnabled("version: 1\n")
	err := os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("KFSEARCH_LOG_LEVEL", "debug")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestLoad_EnvVarOverridesTransport(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := withOneModelEnabled("version: 1\n")
	err := os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("KFSEARCH_TRANSPORT", "sse")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "sse", cfg.Server.Transport)
}

func TestLoad_EnvVarOverridesModelEndpointAndEnablesIt(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("KFSEARCH_MODEL_CLIP_ENDPOINT", "http://localhost:9999")
	configContent := `
version: 1
models:
  - tag: CLIP
    enabled: false
    dimensions: 512
    max_tokens: 77
`
	err := os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	m, ok := cfg.ModelByTag(vectorindex.ModelClip)
	require.True(t, ok)
	assert.True(t, m.Enabled)
	assert.Equal(t, "http://localhost:9999", m.Endpoint)
}

func TestLoad_EnvVarEmptyString_DoesNotOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := withOneModelEnabled("version: 1\n")
	err := os.WriteFile(filepath.Join(tmpDir, ".kfsearch.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("KFSEARCH_LOG_LEVEL", "")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Server.LogLevel)
}

// =============================================================================
// User/Global Configuration Tests
// =============================================================================

func TestGetUserConfigPath_DefaultsToXDGLocation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")

	path := GetUserConfigPath()

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	expected := filepath.Join(home, ".config", "kfsearch", "config.yaml")
	assert.Equal(t, expected, path)
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	customConfig := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", customConfig)

	path := GetUserConfigPath()

	expected := filepath.Join(customConfig, "kfsearch", "config.yaml")
	assert.Equal(t, expected, path)
}

func TestGetUserConfigDir_ReturnsParentOfConfigPath(t *testing.T) {
	dir := GetUserConfigDir()
	path := GetUserConfigPath()

	assert.Equal(t, filepath.Dir(path), dir)
}

func TestUserConfigExists_ReturnsFalseWhenMissing(t *testing.T) {
	emptyDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", emptyDir)

	assert.False(t, UserConfigExists())
}

func TestUserConfigExists_ReturnsTrueWhenPresent(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)
	kfDir := filepath.Join(configDir, "kfsearch")
	require.NoError(t, os.MkdirAll(kfDir, 0o755))
	configPath := filepath.Join(kfDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("version: 1"), 0o644))

	assert.True(t, UserConfigExists())
}

func TestLoad_UserConfigOverridesDefaults(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	kfDir := filepath.Join(configDir, "kfsearch")
	require.NoError(t, os.MkdirAll(kfDir, 0o755))
	userConfig := withOneModelEnabled(`
version: 1
translate:
  endpoint: http://custom-translate:9000
`)
	require.NoError(t, os.WriteFile(filepath.Join(kfDir, "config.yaml"), []byte(userConfig), 0o644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)
	assert.Equal(t, "http://custom-translate:9000", cfg.Translate.Endpoint)
}

func TestLoad_ProjectConfigOverridesUserConfig(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	kfDir := filepath.Join(configDir, "kfsearch")
	require.NoError(t, os.MkdirAll(kfDir, 0o755))
	userConfig := withOneModelEnabled(`
version: 1
retrieval:
  max_results: 5
`)
	require.NoError(t, os.WriteFile(filepath.Join(kfDir, "config.yaml"), []byte(userConfig), 0o644))

	projectConfig := `
version: 1
retrieval:
  max_results: 9
`
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".kfsearch.yaml"), []byte(projectConfig), 0o644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Retrieval.MaxResults)
	// The user config's enabled model carries through since the project
	// config doesn't redeclare models.
	tags := cfg.EnabledModels()
	require.Len(t, tags, 1)
}

func TestLoad_EnvVarOverridesUserAndProjectConfig(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)
	t.Setenv("KFSEARCH_MAX_RESULTS", "3")

	kfDir := filepath.Join(configDir, "kfsearch")
	require.NoError(t, os.MkdirAll(kfDir, 0o755))
	userConfig := withOneModelEnabled(`
version: 1
retrieval:
  max_results: 5
`)
	require.NoError(t, os.WriteFile(filepath.Join(kfDir, "config.yaml"), []byte(userConfig), 0o644))

	projectConfig := `
version: 1
retrieval:
  max_results: 9
`
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".kfsearch.yaml"), []byte(projectConfig), 0o644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retrieval.MaxResults)
}

func TestLoad_InvalidUserConfig_ReturnsError(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	kfDir := filepath.Join(configDir, "kfsearch")
	require.NoError(t, os.MkdirAll(kfDir, 0o755))
	invalidConfig := `
version: 1
retrieval:
  max_results: [invalid yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(kfDir, "config.yaml"), []byte(invalidConfig), 0o644))

	cfg, err := Load(projectDir)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "user config")
}

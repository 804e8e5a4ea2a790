package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kfsearch/kfsearch/internal/vectorindex"
)

// Config is the complete kfsearch configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Models    []ModelConfig   `yaml:"models" json:"models"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Temporal  TemporalConfig  `yaml:"temporal" json:"temporal"`
	PVFS      PVFSConfig      `yaml:"pvfs" json:"pvfs"`
	Translate TranslateConfig `yaml:"translate" json:"translate"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// PathsConfig locates the on-disk artifacts every component reads at
// startup: the flat index files (one per model), the per-video feature
// store root, and the id-to-asset map.
type PathsConfig struct {
	IndexRoot    string `yaml:"index_root" json:"index_root"`
	FeaturesRoot string `yaml:"features_root" json:"features_root"`
	IDMapPath    string `yaml:"id_map_path" json:"id_map_path"`
}

// ModelConfig declares one embedding model's backend and shape. The set
// of Tag values is fixed (vectorindex.AllModelTags); a model not listed
// here is simply not loaded, and searches against it fail with
// ModelUnavailable rather than falling back to another model.
type ModelConfig struct {
	Tag         string `yaml:"tag" json:"tag"`
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Endpoint    string `yaml:"endpoint" json:"endpoint"`
	Dimensions  int    `yaml:"dimensions" json:"dimensions"`
	MaxTokens   int    `yaml:"max_tokens" json:"max_tokens"`
	IndexFile   string `yaml:"index_file" json:"index_file"`
	ExpectedLen int    `yaml:"expected_len" json:"expected_len"`
}

// RetrievalConfig tunes the single-model retrieval engine.
type RetrievalConfig struct {
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// TemporalConfig tunes the temporal aligner's gap-constrained DP and
// anchor bonus.
type TemporalConfig struct {
	WMin               int     `yaml:"w_min" json:"w_min"`
	WMax               int     `yaml:"w_max" json:"w_max"`
	TopKPerSentence    int     `yaml:"top_k_per_sentence" json:"top_k_per_sentence"`
	MaxCandidateVideos int     `yaml:"max_candidate_videos" json:"max_candidate_videos"`
	AnchorTop          int     `yaml:"anchor_top" json:"anchor_top"`
	AnchorWindow       int     `yaml:"anchor_window" json:"anchor_window"`
	AnchorBoost        float64 `yaml:"anchor_boost" json:"anchor_boost"`
	DefaultModel       string  `yaml:"default_model" json:"default_model"`
}

// PVFSConfig tunes the per-video feature store's LRU cache.
type PVFSConfig struct {
	CacheBudgetFloats int    `yaml:"cache_budget_floats" json:"cache_budget_floats"`
	Extension         string `yaml:"extension" json:"extension"`
}

// TranslateConfig configures the optional translation dependency ahead
// of query encoding. Empty Endpoint means passthrough (no translation).
type TranslateConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// ServerConfig configures the MCP/CLI transport.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	Port      int    `yaml:"port" json:"port"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns a Config with sensible defaults: all four models
// declared with default endpoints but disabled (an operator opts a model
// in by setting its Enabled flag), and the tunables from the temporal aligner and retrieval
// engine set to their documented defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			IndexRoot:    "./data/indexes",
			FeaturesRoot: "./data/features",
			IDMapPath:    "./data/id_map.json",
		},
		Models: defaultModelConfigs(),
		Retrieval: RetrievalConfig{
			MaxResults: 100,
		},
		Temporal: TemporalConfig{
			WMin:               1,
			WMax:               0, // 0 = unbounded
			TopKPerSentence:    200,
			MaxCandidateVideos: 30,
			AnchorTop:          5,
			AnchorWindow:       2,
			AnchorBoost:        0.10,
			DefaultModel:       string(vectorindex.ModelClip),
		},
		PVFS: PVFSConfig{
			CacheBudgetFloats: 32 * 300 * 768,
			Extension:         "bin",
		},
		Translate: TranslateConfig{
			Endpoint: "",
		},
		Server: ServerConfig{
			Transport: "stdio",
			Port:      8765,
			LogLevel:  "info",
		},
	}
}

func defaultModelConfigs() []ModelConfig {
	return []ModelConfig{
		{Tag: string(vectorindex.ModelClip), Enabled: false, Endpoint: "http://localhost:8601", Dimensions: 512, MaxTokens: 77, IndexFile: "clip.idx"},
		{Tag: string(vectorindex.ModelLongClip), Enabled: false, Endpoint: "http://localhost:8602", Dimensions: 768, MaxTokens: 248, IndexFile: "longclip.idx"},
		{Tag: string(vectorindex.ModelClip2Video), Enabled: false, Endpoint: "http://localhost:8603", Dimensions: 512, MaxTokens: 77, IndexFile: "clip2video.idx"},
		{Tag: string(vectorindex.ModelBeit3), Enabled: false, Endpoint: "http://localhost:8604", Dimensions: 1024, MaxTokens: 64, IndexFile: "beit3.idx"},
	}
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kfsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "kfsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "kfsearch", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user
// configuration file.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load loads configuration from dir with increasing precedence:
//  1. hardcoded defaults
//  2. user/global config (~/.config/kfsearch/config.yaml)
//  3. project config (.kfsearch.yaml in dir)
//  4. environment variables (KFSEARCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".kfsearch.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".kfsearch.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c. Models are merged
// by tag: a model present in other replaces the matching default entry
// wholesale rather than field-by-field, since a partially-specified
// model (e.g. endpoint but no dimensions) is a config error caught by
// Validate, not something to silently patch from defaults.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.IndexRoot != "" {
		c.Paths.IndexRoot = other.Paths.IndexRoot
	}
	if other.Paths.FeaturesRoot != "" {
		c.Paths.FeaturesRoot = other.Paths.FeaturesRoot
	}
	if other.Paths.IDMapPath != "" {
		c.Paths.IDMapPath = other.Paths.IDMapPath
	}

	if len(other.Models) > 0 {
		byTag := make(map[string]ModelConfig, len(c.Models))
		for _, m := range c.Models {
			byTag[m.Tag] = m
		}
		for _, m := range other.Models {
			byTag[m.Tag] = m
		}
		merged := make([]ModelConfig, 0, len(byTag))
		for _, tag := range vectorindex.AllModelTags {
			if m, ok := byTag[string(tag)]; ok {
				merged = append(merged, m)
			}
		}
		c.Models = merged
	}

	if other.Retrieval.MaxResults != 0 {
		c.Retrieval.MaxResults = other.Retrieval.MaxResults
	}

	if other.Temporal.WMin != 0 {
		c.Temporal.WMin = other.Temporal.WMin
	}
	if other.Temporal.WMax != 0 {
		c.Temporal.WMax = other.Temporal.WMax
	}
	if other.Temporal.TopKPerSentence != 0 {
		c.Temporal.TopKPerSentence = other.Temporal.TopKPerSentence
	}
	if other.Temporal.MaxCandidateVideos != 0 {
		c.Temporal.MaxCandidateVideos = other.Temporal.MaxCandidateVideos
	}
	if other.Temporal.AnchorTop != 0 {
		c.Temporal.AnchorTop = other.Temporal.AnchorTop
	}
	if other.Temporal.AnchorWindow != 0 {
		c.Temporal.AnchorWindow = other.Temporal.AnchorWindow
	}
	if other.Temporal.AnchorBoost != 0 {
		c.Temporal.AnchorBoost = other.Temporal.AnchorBoost
	}
	if other.Temporal.DefaultModel != "" {
		c.Temporal.DefaultModel = other.Temporal.DefaultModel
	}

	if other.PVFS.CacheBudgetFloats != 0 {
		c.PVFS.CacheBudgetFloats = other.PVFS.CacheBudgetFloats
	}
	if other.PVFS.Extension != "" {
		c.PVFS.Extension = other.PVFS.Extension
	}

	if other.Translate.Endpoint != "" {
		c.Translate.Endpoint = other.Translate.Endpoint
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies KFSEARCH_* environment variable overrides,
// the highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KFSEARCH_INDEX_ROOT"); v != "" {
		c.Paths.IndexRoot = v
	}
	if v := os.Getenv("KFSEARCH_FEATURES_ROOT"); v != "" {
		c.Paths.FeaturesRoot = v
	}
	if v := os.Getenv("KFSEARCH_ID_MAP_PATH"); v != "" {
		c.Paths.IDMapPath = v
	}
	if v := os.Getenv("KFSEARCH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retrieval.MaxResults = n
		}
	}
	if v := os.Getenv("KFSEARCH_TEMPORAL_W_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Temporal.WMin = n
		}
	}
	if v := os.Getenv("KFSEARCH_TEMPORAL_W_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Temporal.WMax = n
		}
	}
	if v := os.Getenv("KFSEARCH_TRANSLATE_ENDPOINT"); v != "" {
		c.Translate.Endpoint = v
	}
	if v := os.Getenv("KFSEARCH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("KFSEARCH_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("KFSEARCH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}

	// Per-model endpoint overrides: KFSEARCH_MODEL_<TAG>_ENDPOINT.
	for i, m := range c.Models {
		key := "KFSEARCH_MODEL_" + strings.ToUpper(m.Tag) + "_ENDPOINT"
		if v := os.Getenv(key); v != "" {
			c.Models[i].Endpoint = v
			c.Models[i].Enabled = true
		}
	}
}

// EnabledModels returns the tags of every model with Enabled set.
func (c *Config) EnabledModels() []vectorindex.ModelTag {
	var tags []vectorindex.ModelTag
	for _, m := range c.Models {
		if m.Enabled {
			tags = append(tags, vectorindex.ModelTag(m.Tag))
		}
	}
	return tags
}

// ModelByTag returns the configured entry for tag, or false if absent.
func (c *Config) ModelByTag(tag vectorindex.ModelTag) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.Tag == string(tag) {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Paths.IndexRoot == "" {
		return fmt.Errorf("paths.index_root must not be empty")
	}
	if c.Paths.FeaturesRoot == "" {
		return fmt.Errorf("paths.features_root must not be empty")
	}
	if c.Paths.IDMapPath == "" {
		return fmt.Errorf("paths.id_map_path must not be empty")
	}

	seen := make(map[string]bool)
	validTags := make(map[string]bool, len(vectorindex.AllModelTags))
	for _, t := range vectorindex.AllModelTags {
		validTags[string(t)] = true
	}
	anyEnabled := false
	for _, m := range c.Models {
		if !validTags[m.Tag] {
			return fmt.Errorf("models: unknown tag %q", m.Tag)
		}
		if seen[m.Tag] {
			return fmt.Errorf("models: duplicate tag %q", m.Tag)
		}
		seen[m.Tag] = true
		if m.Enabled {
			anyEnabled = true
			if m.Endpoint == "" {
				return fmt.Errorf("models[%s]: endpoint must be set when enabled", m.Tag)
			}
			if m.Dimensions <= 0 {
				return fmt.Errorf("models[%s]: dimensions must be positive, got %d", m.Tag, m.Dimensions)
			}
			if m.MaxTokens < 0 {
				return fmt.Errorf("models[%s]: max_tokens must be non-negative, got %d", m.Tag, m.MaxTokens)
			}
		}
	}
	if !anyEnabled {
		return fmt.Errorf("models: at least one model must be enabled")
	}

	if c.Retrieval.MaxResults < 0 {
		return fmt.Errorf("retrieval.max_results must be non-negative, got %d", c.Retrieval.MaxResults)
	}

	if c.Temporal.WMax != 0 && c.Temporal.WMax < c.Temporal.WMin {
		return fmt.Errorf("temporal.w_max must be >= w_min (or 0 for unbounded), got w_min=%d w_max=%d", c.Temporal.WMin, c.Temporal.WMax)
	}
	if c.Temporal.AnchorBoost < 0 {
		return fmt.Errorf("temporal.anchor_boost must be non-negative, got %f", c.Temporal.AnchorBoost)
	}

	if c.PVFS.CacheBudgetFloats <= 0 {
		return fmt.Errorf("pvfs.cache_budget_floats must be positive, got %d", c.PVFS.CacheBudgetFloats)
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file, or returns (nil,
// nil) if it does not exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

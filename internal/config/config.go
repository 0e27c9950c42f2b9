package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete skillmind configuration.
type Config struct {
	Version      int                `yaml:"version" json:"version"`
	PatternStore PatternStoreConfig `yaml:"pattern_store" json:"pattern_store"`
	Router       RouterConfig       `yaml:"router" json:"router"`
	Indexer      IndexerConfig      `yaml:"indexer" json:"indexer"`
	Embedding    EmbeddingConfig    `yaml:"embedding" json:"embedding"`
	Server       ServerConfig       `yaml:"server" json:"server"`
}

// PatternStoreConfig configures the EWC++ Pattern Store.
type PatternStoreConfig struct {
	// MaxPatterns is the total pattern cap (across all skills) that triggers
	// eviction consideration during consolidation.
	MaxPatterns int `yaml:"max_patterns" json:"max_patterns"`

	// ImportanceThreshold is the minimum importance a pattern must retain
	// to survive consolidation once the store is over capacity.
	ImportanceThreshold float64 `yaml:"importance_threshold" json:"importance_threshold"`

	// ConsolidationThreshold is the new-pattern ratio that triggers
	// consolidation (see should_consolidate).
	ConsolidationThreshold float64 `yaml:"consolidation_threshold" json:"consolidation_threshold"`

	// FisherDecay is the multiplicative decay applied to the Fisher
	// Information Matrix at the start of each consolidation pass.
	FisherDecay float64 `yaml:"fisher_decay" json:"fisher_decay"`

	// FisherSampleSize bounds how many patterns are sampled to update the
	// Fisher matrix during one consolidation pass.
	FisherSampleSize int `yaml:"fisher_sample_size" json:"fisher_sample_size"`

	// DBPath is the on-disk SQLite database path.
	DBPath string `yaml:"db_path" json:"db_path"`
}

// RouterConfig configures the SONA mixture-of-experts Router.
type RouterConfig struct {
	// ToolWeights maps a tool name to its (accuracy, latency, reliability,
	// efficiency) scoring profile. Keys not present fall back to the
	// default profile.
	ToolWeights map[string]ToolWeightProfile `yaml:"tool_weights" json:"tool_weights"`

	// DecisionCacheSize is the LRU capacity of the Decision Cache.
	DecisionCacheSize int `yaml:"decision_cache_size" json:"decision_cache_size"`

	// DecisionCacheTTL is how long a cached routing decision remains valid.
	DecisionCacheTTL time.Duration `yaml:"decision_cache_ttl" json:"decision_cache_ttl"`

	// FallbackEnabled controls whether a failed executor call is retried
	// once with direct-fallback. Routing to direct-fallback when no expert
	// clears the eligibility bar happens regardless of this flag.
	FallbackEnabled bool `yaml:"fallback_enabled" json:"fallback_enabled"`

	// MinConfidenceMargin is a minimum score gap between the top two
	// eligible experts. It is validated and passed into the router's
	// config, but the router does not read it: a small gap only lowers
	// the decision's confidence and never changes the selection.
	MinConfidenceMargin float64 `yaml:"min_confidence_margin" json:"min_confidence_margin"`

	// CircuitMaxFailures/CircuitResetTimeout configure the per-expert
	// circuit breaker backing expert health.
	CircuitMaxFailures  int           `yaml:"circuit_max_failures" json:"circuit_max_failures"`
	CircuitResetTimeout time.Duration `yaml:"circuit_reset_timeout" json:"circuit_reset_timeout"`
}

// ToolWeightProfile is the static per-tool scoring weight set.
type ToolWeightProfile struct {
	Accuracy    float64 `yaml:"accuracy" json:"accuracy"`
	Latency     float64 `yaml:"latency" json:"latency"`
	Reliability float64 `yaml:"reliability" json:"reliability"`
	Efficiency  float64 `yaml:"efficiency" json:"efficiency"`
}

// IndexerConfig configures the Swarm Indexer.
type IndexerConfig struct {
	// MaxConcurrentWorkers bounds how many partitions are fetched in
	// parallel.
	MaxConcurrentWorkers int `yaml:"max_concurrent_workers" json:"max_concurrent_workers"`

	// GlobalRateLimit is the token-bucket refill rate shared by all
	// workers, in operations per second.
	GlobalRateLimit float64 `yaml:"global_rate_limit" json:"global_rate_limit"`

	// Partitions lists the keyspace partitions indexed by index_all.
	Partitions []string `yaml:"partitions" json:"partitions"`

	// LockPath is the on-disk lock file preventing concurrent index_all runs.
	LockPath string `yaml:"lock_path" json:"lock_path"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the embedder implementation ("static" or "ollama").
	Provider string `yaml:"provider" json:"provider"`

	// Dimensions is the configured embedding vector width. It is not passed
	// to the embedder: the width always comes from the chosen provider.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// Model names the embedding model (meaningful only for non-static
	// providers).
	Model string `yaml:"model" json:"model"`

	// OllamaHost is the configured Ollama API endpoint. It is not passed to
	// the embedder: the Ollama embedder reads its endpoint from the
	// SKILLMIND_OLLAMA_HOST environment variable (which also overrides this
	// field), so a value set only in a config file has no effect on it.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// ServerConfig configures the MCP server surface.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		PatternStore: PatternStoreConfig{
			MaxPatterns:            10000,
			ImportanceThreshold:    0.01,
			ConsolidationThreshold: 0.2,
			FisherDecay:            0.99,
			FisherSampleSize:       200,
			DBPath:                 defaultDataPath("patterns.db"),
		},
		Router: RouterConfig{
			ToolWeights: map[string]ToolWeightProfile{
				"search": {Accuracy: 0.7, Latency: 0.2, Reliability: 0.05, Efficiency: 0.05},
				"default": {Accuracy: 0.4, Latency: 0.3, Reliability: 0.2, Efficiency: 0.1},
			},
			DecisionCacheSize:   1000,
			DecisionCacheTTL:    5 * time.Minute,
			FallbackEnabled:     true,
			MinConfidenceMargin: 0.05,
			CircuitMaxFailures:  5,
			CircuitResetTimeout: 30 * time.Second,
		},
		Indexer: IndexerConfig{
			MaxConcurrentWorkers: 8,
			GlobalRateLimit:      2.0,
			Partitions:           []string{},
			LockPath:             defaultDataPath("indexer.lock"),
		},
		Embedding: EmbeddingConfig{
			Provider:   "static",
			Dimensions: 768,
			Model:      "",
			OllamaHost: "",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".skillmind", name)
	}
	return filepath.Join(home, ".skillmind", name)
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/skillmind/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/skillmind/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "skillmind", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "skillmind", "config.yaml")
	}
	return filepath.Join(home, ".config", "skillmind", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory, applying
// precedence in order of increasing priority:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/skillmind/config.yaml)
//  3. Project config (.skillmind.yaml in the given directory)
//  4. Environment variables (SKILLMIND_*)
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

// loadFromFile attempts to load configuration from .skillmind.yaml or
// .skillmind.yml in dir.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".skillmind.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".skillmind.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
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

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Pattern store
	if other.PatternStore.MaxPatterns != 0 {
		c.PatternStore.MaxPatterns = other.PatternStore.MaxPatterns
	}
	if other.PatternStore.ImportanceThreshold != 0 {
		c.PatternStore.ImportanceThreshold = other.PatternStore.ImportanceThreshold
	}
	if other.PatternStore.ConsolidationThreshold != 0 {
		c.PatternStore.ConsolidationThreshold = other.PatternStore.ConsolidationThreshold
	}
	if other.PatternStore.FisherDecay != 0 {
		c.PatternStore.FisherDecay = other.PatternStore.FisherDecay
	}
	if other.PatternStore.FisherSampleSize != 0 {
		c.PatternStore.FisherSampleSize = other.PatternStore.FisherSampleSize
	}
	if other.PatternStore.DBPath != "" {
		c.PatternStore.DBPath = other.PatternStore.DBPath
	}

	// Router
	if len(other.Router.ToolWeights) > 0 {
		if c.Router.ToolWeights == nil {
			c.Router.ToolWeights = map[string]ToolWeightProfile{}
		}
		for k, v := range other.Router.ToolWeights {
			c.Router.ToolWeights[k] = v
		}
	}
	if other.Router.DecisionCacheSize != 0 {
		c.Router.DecisionCacheSize = other.Router.DecisionCacheSize
	}
	if other.Router.DecisionCacheTTL != 0 {
		c.Router.DecisionCacheTTL = other.Router.DecisionCacheTTL
	}
	if other.Router.MinConfidenceMargin != 0 {
		c.Router.MinConfidenceMargin = other.Router.MinConfidenceMargin
	}
	if other.Router.CircuitMaxFailures != 0 {
		c.Router.CircuitMaxFailures = other.Router.CircuitMaxFailures
	}
	if other.Router.CircuitResetTimeout != 0 {
		c.Router.CircuitResetTimeout = other.Router.CircuitResetTimeout
	}

	// Indexer
	if other.Indexer.MaxConcurrentWorkers != 0 {
		c.Indexer.MaxConcurrentWorkers = other.Indexer.MaxConcurrentWorkers
	}
	if other.Indexer.GlobalRateLimit != 0 {
		c.Indexer.GlobalRateLimit = other.Indexer.GlobalRateLimit
	}
	if len(other.Indexer.Partitions) > 0 {
		c.Indexer.Partitions = other.Indexer.Partitions
	}
	if other.Indexer.LockPath != "" {
		c.Indexer.LockPath = other.Indexer.LockPath
	}

	// Embedding
	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.OllamaHost != "" {
		c.Embedding.OllamaHost = other.Embedding.OllamaHost
	}

	// Server
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies SKILLMIND_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SKILLMIND_MAX_PATTERNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.PatternStore.MaxPatterns = n
		}
	}
	if v := os.Getenv("SKILLMIND_IMPORTANCE_THRESHOLD"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 {
			c.PatternStore.ImportanceThreshold = f
		}
	}
	if v := os.Getenv("SKILLMIND_FISHER_DECAY"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f <= 1 {
			c.PatternStore.FisherDecay = f
		}
	}

	if v := os.Getenv("SKILLMIND_DECISION_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Router.DecisionCacheSize = n
		}
	}
	if v := os.Getenv("SKILLMIND_FALLBACK_ENABLED"); v != "" {
		c.Router.FallbackEnabled = strings.ToLower(v) == "true" || v == "1"
	}

	if v := os.Getenv("SKILLMIND_MAX_CONCURRENT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexer.MaxConcurrentWorkers = n
		}
	}
	if v := os.Getenv("SKILLMIND_GLOBAL_RATE_LIMIT"); v != "" {
		if f, err := parseFloat64(v); err == nil && f > 0 {
			c.Indexer.GlobalRateLimit = f
		}
	}

	if v := os.Getenv("SKILLMIND_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("SKILLMIND_OLLAMA_HOST"); v != "" {
		c.Embedding.OllamaHost = v
	}

	if v := os.Getenv("SKILLMIND_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("SKILLMIND_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.PatternStore.MaxPatterns <= 0 {
		return fmt.Errorf("pattern_store.max_patterns must be positive, got %d", c.PatternStore.MaxPatterns)
	}
	if c.PatternStore.ImportanceThreshold < 0 {
		return fmt.Errorf("pattern_store.importance_threshold must be non-negative, got %f", c.PatternStore.ImportanceThreshold)
	}
	if c.PatternStore.FisherDecay < 0 || c.PatternStore.FisherDecay > 1 {
		return fmt.Errorf("pattern_store.fisher_decay must be between 0 and 1, got %f", c.PatternStore.FisherDecay)
	}
	if c.PatternStore.FisherSampleSize < 0 {
		return fmt.Errorf("pattern_store.fisher_sample_size must be non-negative, got %d", c.PatternStore.FisherSampleSize)
	}

	if c.Router.DecisionCacheSize < 0 {
		return fmt.Errorf("router.decision_cache_size must be non-negative, got %d", c.Router.DecisionCacheSize)
	}
	if c.Router.MinConfidenceMargin < 0 {
		return fmt.Errorf("router.min_confidence_margin must be non-negative, got %f", c.Router.MinConfidenceMargin)
	}

	if c.Indexer.MaxConcurrentWorkers <= 0 {
		return fmt.Errorf("indexer.max_concurrent_workers must be positive, got %d", c.Indexer.MaxConcurrentWorkers)
	}
	if c.Indexer.GlobalRateLimit <= 0 {
		return fmt.Errorf("indexer.global_rate_limit must be positive, got %f", c.Indexer.GlobalRateLimit)
	}

	validProviders := map[string]bool{"static": true, "ollama": true}
	if !validProviders[strings.ToLower(c.Embedding.Provider)] {
		return fmt.Errorf("embedding.provider must be 'static' or 'ollama', got %s", c.Embedding.Provider)
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

// WriteYAML writes the configuration to a YAML file.
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

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

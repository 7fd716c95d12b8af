// Package config loads process configuration in layers: hardcoded defaults,
// a YAML file, then environment variables. Unknown YAML keys are tolerated
// and logged, never treated as fatal.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RealtimeSyncConfig controls the Watcher.
type RealtimeSyncConfig struct {
	Enabled     bool `yaml:"enabled" json:"enabled"`
	AutoEnable  bool `yaml:"auto_enable" json:"auto_enable"`
	DebounceMs  int  `yaml:"debounce_ms" json:"debounce_ms"`
}

// FreshnessGateConfig controls the pre-search catch-up check.
type FreshnessGateConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	CacheTTLMs int  `yaml:"cache_ttl_ms" json:"cache_ttl_ms"`
}

// PoolConfig controls the process-wide VectorStore connection pool.
type PoolConfig struct {
	IdleReapMs int `yaml:"idle_reap_ms" json:"idle_reap_ms"`
}

// EmbeddingsConfig selects the embedding provider/model; the dimension
// must match whatever collection is opened against it.
type EmbeddingsConfig struct {
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
}

// VectorStoreConfig is the connection target for the vector store: address
// is required for a real (non-embedded) deployment; token is optional.
type VectorStoreConfig struct {
	Address string `yaml:"address" json:"address"`
	Token   string `yaml:"token" json:"token"`
}

// Config is the top-level process configuration.
type Config struct {
	Version         int                 `yaml:"version" json:"version"`
	Embeddings      EmbeddingsConfig    `yaml:"embeddings" json:"embeddings"`
	VectorStore     VectorStoreConfig   `yaml:"vector_store" json:"vector_store"`
	RealtimeSync    RealtimeSyncConfig  `yaml:"realtime_sync" json:"realtime_sync"`
	FullScanIntervalMs int              `yaml:"full_scan_interval_ms" json:"full_scan_interval_ms"`
	FreshnessGate   FreshnessGateConfig `yaml:"freshness_gate" json:"freshness_gate"`
	ChunkBudget     int                 `yaml:"chunk_budget" json:"chunk_budget"`
	Pool            PoolConfig          `yaml:"pool" json:"pool"`
	IgnorePatterns  []string            `yaml:"ignore_patterns" json:"ignore_patterns"`
	StateDir        string              `yaml:"state_dir" json:"state_dir"`
	LogLevel        string              `yaml:"log_level" json:"log_level"`
}

// recognizedKeys are the enumerated top-level keys this configuration
// format accepts, including the ambient keys this implementation adds
// (state_dir, log_level, ignore_patterns).
var recognizedKeys = map[string]bool{
	"version":              true,
	"embeddings":           true,
	"vector_store":         true,
	"realtime_sync":        true,
	"full_scan_interval_ms": true,
	"freshness_gate":       true,
	"chunk_budget":         true,
	"pool":                 true,
	"ignore_patterns":      true,
	"state_dir":            true,
	"log_level":            true,
}

// Default builds a Config with this process's baseline defaults.
func Default() *Config {
	return &Config{
		Version: 1,
		Embeddings: EmbeddingsConfig{
			Provider: "",
			Model:    "",
		},
		RealtimeSync: RealtimeSyncConfig{
			Enabled:    true,
			AutoEnable: false,
			DebounceMs: 500,
		},
		FullScanIntervalMs: 300_000,
		FreshnessGate: FreshnessGateConfig{
			Enabled:    true,
			CacheTTLMs: 2_000,
		},
		ChunkBudget: 450_000,
		Pool: PoolConfig{
			IdleReapMs: 600_000,
		},
		StateDir: defaultStateDir(),
		LogLevel: "info",
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".syncore")
	}
	return filepath.Join(home, ".syncore")
}

// Load reads configuration for a codebase root directory: defaults, then
// <dir>/.syncore.yaml (or .yml) if present, then environment overrides.
// Unknown keys are logged via logger and otherwise ignored.
func Load(dir string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Default()

	path := filepath.Join(dir, ".syncore.yaml")
	if _, err := os.Stat(path); err != nil {
		alt := filepath.Join(dir, ".syncore.yml")
		if _, altErr := os.Stat(alt); altErr == nil {
			path = alt
		} else {
			path = ""
		}
	}
	if path != "" {
		if err := cfg.loadYAML(path, logger); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) loadYAML(path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Decode into a generic map first, to find and warn about unrecognized
	// top-level keys before decoding into the typed struct.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		if !recognizedKeys[key] {
			logger.Warn("config: unrecognized key ignored", "key", key, "file", path)
		}
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	return nil
}

// envPrefix namespaces every environment override this process recognizes.
const envPrefix = "SYNCORE_"

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(envPrefix + "EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv(envPrefix + "EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv(envPrefix + "VECTOR_STORE_ADDRESS"); v != "" {
		c.VectorStore.Address = v
	}
	if v := os.Getenv(envPrefix + "VECTOR_STORE_TOKEN"); v != "" {
		c.VectorStore.Token = v
	}
	if v := os.Getenv(envPrefix + "REALTIME_SYNC_ENABLED"); v != "" {
		c.RealtimeSync.Enabled = parseBool(v, c.RealtimeSync.Enabled)
	}
	if v := os.Getenv(envPrefix + "REALTIME_SYNC_AUTO_ENABLE"); v != "" {
		c.RealtimeSync.AutoEnable = parseBool(v, c.RealtimeSync.AutoEnable)
	}
	if v := os.Getenv(envPrefix + "REALTIME_SYNC_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.RealtimeSync.DebounceMs = n
		}
	}
	if v := os.Getenv(envPrefix + "FULL_SCAN_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.FullScanIntervalMs = n
		}
	}
	if v := os.Getenv(envPrefix + "FRESHNESS_GATE_ENABLED"); v != "" {
		c.FreshnessGate.Enabled = parseBool(v, c.FreshnessGate.Enabled)
	}
	if v := os.Getenv(envPrefix + "FRESHNESS_GATE_CACHE_TTL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.FreshnessGate.CacheTTLMs = n
		}
	}
	if v := os.Getenv(envPrefix + "CHUNK_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ChunkBudget = n
		}
	}
	if v := os.Getenv(envPrefix + "POOL_IDLE_REAP_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Pool.IdleReapMs = n
		}
	}
	if v := os.Getenv(envPrefix + "STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// FullScanInterval is FullScanIntervalMs as a time.Duration.
func (c *Config) FullScanInterval() time.Duration {
	return time.Duration(c.FullScanIntervalMs) * time.Millisecond
}

// DebounceWindow is RealtimeSync.DebounceMs as a time.Duration.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.RealtimeSync.DebounceMs) * time.Millisecond
}

// FreshnessCacheTTL is FreshnessGate.CacheTTLMs as a time.Duration.
func (c *Config) FreshnessCacheTTL() time.Duration {
	return time.Duration(c.FreshnessGate.CacheTTLMs) * time.Millisecond
}

// PoolIdleReap is Pool.IdleReapMs as a time.Duration.
func (c *Config) PoolIdleReap() time.Duration {
	return time.Duration(c.Pool.IdleReapMs) * time.Millisecond
}

// Validate rejects configurations that cannot produce a working process.
func (c *Config) Validate() error {
	if c.VectorStore.Address == "" {
		return fmt.Errorf("vector_store.address is required")
	}
	if c.ChunkBudget <= 0 {
		return fmt.Errorf("chunk_budget must be positive, got %d", c.ChunkBudget)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %s", c.LogLevel)
	}
	return nil
}

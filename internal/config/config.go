// Package config loads and watches the YAML service configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/glyphml/suggestions/engine"
)

// Config aggregates all runtime settings read from config.yaml.
type Config struct {
	Server struct {
		Address  string `yaml:"address"`
		Version  string `yaml:"version"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`

	Embedder struct {
		OrtDLL        string `yaml:"ort_dll"`
		ModelPath     string `yaml:"model_path"`
		TokenizerPath string `yaml:"tokenizer_path"`
		MaxSeqLen     int    `yaml:"max_seq_len"`
		CacheDir      string `yaml:"cache_dir"`
		ModelID       string `yaml:"model_id"`
	} `yaml:"embedder"`

	Scorer struct {
		Alpha            float32 `yaml:"alpha"`
		Beta             float32 `yaml:"beta"`
		MaxSpanTokens    int     `yaml:"max_span_tokens"`
		OverlapThreshold float64 `yaml:"overlap_threshold"`
		LexiconPath      string  `yaml:"lexicon_path"`
	} `yaml:"scorer"`

	Selector struct {
		UncertaintyWeight float64 `yaml:"uncertainty_weight"`
		DiversityWeight   float64 `yaml:"diversity_weight"`
		PoolLimit         int     `yaml:"pool_limit"`
	} `yaml:"selector"`

	Database struct {
		DSN          string `yaml:"dsn"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
	} `yaml:"database"`
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8000"
	}
	if c.Server.Version == "" {
		c.Server.Version = "0.1.0"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Embedder.MaxSeqLen <= 0 {
		c.Embedder.MaxSeqLen = 512
	}
	if c.Selector.PoolLimit <= 0 {
		c.Selector.PoolLimit = 500
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 10
	}
}

// ScorerConfig converts the scorer section into engine form.
func (c *Config) ScorerConfig() engine.ScorerConfig {
	cfg := engine.ScorerConfig{
		Alpha:            c.Scorer.Alpha,
		Beta:             c.Scorer.Beta,
		MaxSpanTokens:    c.Scorer.MaxSpanTokens,
		OverlapThreshold: c.Scorer.OverlapThreshold,
	}
	cfg.ApplyDefaults()
	return cfg
}

// SelectorConfig converts the selector section into engine form.
func (c *Config) SelectorConfig() engine.SelectorConfig {
	cfg := engine.SelectorConfig{
		UncertaintyWeight: c.Selector.UncertaintyWeight,
		DiversityWeight:   c.Selector.DiversityWeight,
	}
	cfg.ApplyDefaults()
	return cfg
}

// ResolveDSN returns the database connection string, preferring the
// DATABASE_URL environment variable over the config file.
func (c *Config) ResolveDSN() string {
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(c.Database.DSN)
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Manager holds the current configuration snapshot behind a lock so
// handlers can pick up reloaded selector weights without a restart.
type Manager struct {
	mu   sync.RWMutex
	path string
	cfg  Config
	subs []func(Config)
}

// NewManager loads the initial configuration.
func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, cfg: *cfg}, nil
}

// NewStatic wraps an in-memory configuration. Used by tests and by callers
// that have no config file; Reload and Watch are not supported on it.
func NewStatic(cfg Config) *Manager {
	cfg.ApplyDefaults()
	return &Manager{cfg: cfg}
}

// Snapshot returns a copy of the current configuration.
func (m *Manager) Snapshot() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Subscribe registers fn to run with the new snapshot after every
// successful Reload. Register all subscribers before Watch starts; fn runs
// on the watcher goroutine and must not block.
func (m *Manager) Subscribe(fn func(Config)) {
	m.subs = append(m.subs, fn)
}

// Reload re-reads the configuration file, swaps the snapshot and notifies
// subscribers. A parse failure leaves the previous snapshot in place.
func (m *Manager) Reload() error {
	cfg, err := Load(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = *cfg
	m.mu.Unlock()
	for _, fn := range m.subs {
		fn(*cfg)
	}
	return nil
}

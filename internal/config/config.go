// Package config defines Talemon's typed configuration surface and loads it
// from YAML. Unknown keys are rejected rather than silently ignored —
// the recognized options form a fixed surface (see spec §6), not an
// open-ended bag of settings.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Talemon configuration, shared by the scheduler,
// worker, and extractor binaries (each reads only the sections it needs).
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Objstore  ObjstoreConfig  `yaml:"oss"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Worker    WorkerConfig    `yaml:"worker"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Browser   BrowserConfig   `yaml:"browser"`
	Hasher    HasherConfig    `yaml:"hasher"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Health    HealthConfig    `yaml:"health"`
}

// StoreConfig configures the State Store connection.
type StoreConfig struct {
	DSN            string `yaml:"dsn"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	MaxIdleConns   int    `yaml:"max_idle_conns"`
}

// ObjstoreConfig configures the Object Store connection. PathTemplate is
// accepted and defaulted but not read by any component: snapshot paths
// always follow objstore.SnapshotDir (data/{url_hash}/{YYMMDD.HHMMSS}/).
type ObjstoreConfig struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"` // non-empty for S3-compatible (MinIO, etc.)
	PathTemplate string `yaml:"path_template"`
}

func (c *ObjstoreConfig) defaults() {
	if c.PathTemplate == "" {
		c.PathTemplate = "{url_hash}/{timestamp}/"
	}
}

// SchedulerConfig configures scheduler ticks.
type SchedulerConfig struct {
	ZombieTimeout time.Duration `yaml:"zombie_timeout"`
	TickInterval  time.Duration `yaml:"tick_interval"`
	BatchSize     int           `yaml:"batch_size"`
}

func (c *SchedulerConfig) defaults() {
	if c.ZombieTimeout <= 0 {
		c.ZombieTimeout = 5 * time.Minute
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 15 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
}

// WorkerConfig configures the capture protocol.
type WorkerConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	PageTimeout       time.Duration `yaml:"page_timeout"`
	BatchSize         int           `yaml:"batch_size"`
	Concurrency       int           `yaml:"concurrency"`
}

func (c *WorkerConfig) defaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 60 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
}

// ExtractorConfig configures the extractor poll loop.
type ExtractorConfig struct {
	Version      string        `yaml:"version"`
	BatchSize    int           `yaml:"batch_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

func (c *ExtractorConfig) defaults() {
	if c.Version == "" {
		c.Version = "v1"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
}

// BrowserConfig controls the headless browser driver.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	ProfileDir       string        `yaml:"profile_dir"`
	Extensions       []string      `yaml:"extensions"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          bool          `yaml:"stealth"`
}

func (c *BrowserConfig) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
}

// HasherConfig configures the fingerprinter's noise/ad-selector sets.
type HasherConfig struct {
	StripTags    []string `yaml:"strip_tags"`
	AdSelectors  []string `yaml:"ad_selectors"`
	ExtractAttrs []string `yaml:"extract_attrs"`
}

// RateLimitConfig configures the per-domain admission limiter.
type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
}

func (c *RateLimitConfig) defaults() {
	if c.RequestsPerWindow <= 0 {
		c.RequestsPerWindow = 10
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
}

// HealthConfig configures the ambient /healthz + /metrics HTTP server.
type HealthConfig struct {
	Addr string `yaml:"addr"`
}

func (c *HealthConfig) defaults() {
	if c.Addr == "" {
		c.Addr = ":9090"
	}
}

func (c *Config) applyDefaults() {
	c.Objstore.defaults()
	c.Scheduler.defaults()
	c.Worker.defaults()
	c.Extractor.defaults()
	c.Browser.defaults()
	c.RateLimit.defaults()
	c.Health.defaults()
}

// LoadFile reads and strictly decodes a YAML configuration file, rejecting
// unrecognized keys so typos surface at startup instead of silently no-op'ing.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

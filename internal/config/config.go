// Package config provides configuration loading and validation for the
// catalog synchronization engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// TagLatest selects the highest release tag offered by a mirror instead of
// pinning a fixed revision.
const TagLatest = "latest"

// Defaults applied by ApplyDefaults when a field is unset.
const (
	// DefaultOutput is the catalog file consumed by the downstream
	// configuration generator.
	DefaultOutput = "device-drivers.json"

	// DefaultMaxFileSizeBytes is the candidate file size ceiling (5 MiB).
	DefaultMaxFileSizeBytes = 5 * 1024 * 1024

	// DefaultRetryBudget is the number of fetch attempts per mirror.
	DefaultRetryBudget = 5

	// DefaultRetryBackoff is the fixed pause between fetch attempts.
	DefaultRetryBackoff = "2s"

	// DefaultAttemptTimeout is the hard per-attempt fetch timeout.
	DefaultAttemptTimeout = "5m"

	// DefaultCheckEvery is the record interval between resource checks.
	DefaultCheckEvery = 64

	// DefaultFlushPause is the pause after a memory-pressure flush.
	DefaultFlushPause = "500ms"

	// DefaultMemoryLimitMB is the approximate working-memory budget.
	DefaultMemoryLimitMB = 512

	// DefaultMinDiskMB is the minimum free durable storage below which a
	// run aborts.
	DefaultMinDiskMB = 128
)

// Option defines the interface for configuration loader options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure for a sync run.
type Config struct {
	// Mirrors is the prioritized list of source-tree locations
	Mirrors []MirrorConfig `yaml:"mirrors"`

	// Output is the path of the catalog file to write
	Output string `yaml:"output,omitempty"`

	// DefinitionDirs are the device-definition directories to scan,
	// relative to the snapshot root
	DefinitionDirs []string `yaml:"definitionDirs,omitempty"`

	// MaxFileSizeBytes is the candidate file size ceiling
	MaxFileSizeBytes int64 `yaml:"maxFileSizeBytes,omitempty"`

	Acquire   AcquireConfig  `yaml:"acquire,omitempty"`
	Resources ResourceConfig `yaml:"resources,omitempty"`
	Log       LogConfig      `yaml:"log,omitempty"`
}

// MirrorConfig identifies one location offering a copy of the source tree.
// URL may be a git repository URL or a local directory path.
type MirrorConfig struct {
	URL string `yaml:"url"`

	// Branch is the git branch to fetch (mutually exclusive with Tag)
	Branch string `yaml:"branch,omitempty"`

	// Tag is the git tag to fetch, or "latest" to pick the highest
	// release tag (mutually exclusive with Branch)
	Tag string `yaml:"tag,omitempty"`
}

// AcquireConfig defines retry behavior for source-tree acquisition.
type AcquireConfig struct {
	RetryBudget    int    `yaml:"retryBudget,omitempty"`
	RetryBackoff   string `yaml:"retryBackoff,omitempty"`
	AttemptTimeout string `yaml:"attemptTimeout,omitempty"`
}

// ResourceConfig defines the resource budget of the merge stage.
type ResourceConfig struct {
	MemoryLimitMB uint64 `yaml:"memoryLimitMB,omitempty"`
	MinDiskMB     uint64 `yaml:"minDiskMB,omitempty"`
	CheckEvery    int    `yaml:"checkEvery,omitempty"`
	FlushPause    string `yaml:"flushPause,omitempty"`
}

// LogConfig defines the diagnostics stream settings.
type LogConfig struct {
	// Level is the minimum emitted level (debug, info, warn, error)
	Level string `yaml:"level,omitempty"`

	// File is an optional persistent log file, written in addition to
	// the console
	File string `yaml:"file,omitempty"`
}

// LoadConfig loads, defaults, and validates configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ApplyDefaults fills unset fields with their default values.
func (c *Config) ApplyDefaults() {
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if len(c.DefinitionDirs) == 0 {
		c.DefinitionDirs = []string{"target"}
	}
	if c.MaxFileSizeBytes == 0 {
		c.MaxFileSizeBytes = DefaultMaxFileSizeBytes
	}
	if c.Acquire.RetryBudget == 0 {
		c.Acquire.RetryBudget = DefaultRetryBudget
	}
	if c.Acquire.RetryBackoff == "" {
		c.Acquire.RetryBackoff = DefaultRetryBackoff
	}
	if c.Acquire.AttemptTimeout == "" {
		c.Acquire.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.Resources.MemoryLimitMB == 0 {
		c.Resources.MemoryLimitMB = DefaultMemoryLimitMB
	}
	if c.Resources.MinDiskMB == 0 {
		c.Resources.MinDiskMB = DefaultMinDiskMB
	}
	if c.Resources.CheckEvery == 0 {
		c.Resources.CheckEvery = DefaultCheckEvery
	}
	if c.Resources.FlushPause == "" {
		c.Resources.FlushPause = DefaultFlushPause
	}
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if len(c.Mirrors) == 0 {
		return fmt.Errorf("at least one mirror must be configured")
	}

	for i, mirror := range c.Mirrors {
		if err := validateMirror(&mirror, i); err != nil {
			return err
		}
	}

	if c.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("maxFileSizeBytes must be positive")
	}

	if err := validateAcquire(&c.Acquire); err != nil {
		return err
	}

	return validateResources(&c.Resources)
}

// validateMirror validates a single mirror configuration
func validateMirror(mirror *MirrorConfig, index int) error {
	prefix := fmt.Sprintf("mirror[%d]", index)

	if mirror.URL == "" {
		return fmt.Errorf("%s: url is required", prefix)
	}

	if mirror.Branch != "" && mirror.Tag != "" {
		return fmt.Errorf("%s: only one of branch or tag may be specified", prefix)
	}

	return nil
}

// validateAcquire validates the acquisition retry settings
func validateAcquire(acquire *AcquireConfig) error {
	if acquire.RetryBudget < 1 {
		return fmt.Errorf("acquire.retryBudget must be at least 1")
	}
	if _, err := time.ParseDuration(acquire.RetryBackoff); err != nil {
		return fmt.Errorf("acquire.retryBackoff must be a valid duration (e.g., '2s'): %w", err)
	}
	if _, err := time.ParseDuration(acquire.AttemptTimeout); err != nil {
		return fmt.Errorf("acquire.attemptTimeout must be a valid duration (e.g., '5m'): %w", err)
	}
	return nil
}

// validateResources validates the resource budget settings
func validateResources(resources *ResourceConfig) error {
	if resources.CheckEvery < 1 {
		return fmt.Errorf("resources.checkEvery must be at least 1")
	}
	if _, err := time.ParseDuration(resources.FlushPause); err != nil {
		return fmt.Errorf("resources.flushPause must be a valid duration (e.g., '500ms'): %w", err)
	}
	return nil
}

// RetryBackoff returns the parsed retry backoff duration.
func (c *Config) RetryBackoff() time.Duration {
	d, _ := time.ParseDuration(c.Acquire.RetryBackoff)
	return d
}

// AttemptTimeout returns the parsed per-attempt fetch timeout.
func (c *Config) AttemptTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Acquire.AttemptTimeout)
	return d
}

// FlushPause returns the parsed post-flush pause duration.
func (c *Config) FlushPause() time.Duration {
	d, _ := time.ParseDuration(c.Resources.FlushPause)
	return d
}

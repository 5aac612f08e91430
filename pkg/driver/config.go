package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"siskin/pkg/vm"
)

// ConfigFileName is looked up in the working directory when no --config
// flag is given.
const ConfigFileName = "siskin.yaml"

// KnownFeatures lists the feature names a config may enable.
var KnownFeatures = []string{
	vm.FeatureJSONModules,
	vm.FeaturePromiseWithResolvers,
	vm.FeatureArrayGrouping,
}

// Config models siskin.yaml. Zero fields are filled from DefaultConfig.
type Config struct {
	Path string `yaml:"-"`

	// Features enables optional language features, see KnownFeatures.
	Features []string `yaml:"features"`
	// ModuleRoots are searched for bare specifiers such as "lib/util".
	ModuleRoots []string `yaml:"module_roots"`
	// Extensions are probed, in order, for specifiers without one.
	Extensions []string `yaml:"extensions"`
	// Color forces coloured diagnostics on or off. Unset means auto.
	Color *bool `yaml:"color"`
	// HistoryFile stores REPL history. A leading ~ is the home directory.
	HistoryFile string `yaml:"history_file"`
	// GCAfterRun collects the heap after every top-level run.
	GCAfterRun bool `yaml:"gc_after_run"`
	// ParallelFetch reads module sources on a worker pool.
	ParallelFetch *bool `yaml:"parallel_fetch"`
	// FetchWorkers sizes the worker pool. Zero picks the CPU count.
	FetchWorkers int `yaml:"fetch_workers"`
}

// DefaultConfig returns the configuration used without a siskin.yaml.
func DefaultConfig() *Config {
	parallel := true
	return &Config{
		Features:      slices.Clone(KnownFeatures),
		Extensions:    []string{".js", ".mjs", ".json"},
		HistoryFile:   "~/.siskin_history",
		ParallelFetch: &parallel,
	}
}

// LoadConfig parses a siskin.yaml and fills unset fields with defaults.
// Unknown keys and unknown features are errors.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg, err := DecodeConfig(file)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", abs, err)
	}
	cfg.Path = abs
	return cfg, nil
}

// DecodeConfig reads a config document from r. An empty document yields
// the defaults.
func DecodeConfig(r io.Reader) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	// Set pointer fields are explicit choices, even when they point at false.
	if err := mergo.Merge(&cfg, DefaultConfig(), mergo.WithoutDereference); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindConfig loads dir/siskin.yaml if it exists and returns the defaults
// otherwise.
func FindConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return LoadConfig(path)
}

// Validate checks feature names and extensions.
func (c *Config) Validate() error {
	for _, f := range c.Features {
		if !slices.Contains(KnownFeatures, f) {
			return fmt.Errorf("unknown feature %q (known: %s)", f, strings.Join(KnownFeatures, ", "))
		}
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	if c.FetchWorkers < 0 {
		return fmt.Errorf("fetch_workers must not be negative")
	}
	return nil
}

// ApplyFeatureFlags applies --feature values. "name" enables a feature and
// "no-name" disables it.
func (c *Config) ApplyFeatureFlags(flags []string) error {
	for _, flag := range flags {
		name, disable := strings.CutPrefix(flag, "no-")
		if !slices.Contains(KnownFeatures, name) {
			return fmt.Errorf("unknown feature %q (known: %s)", name, strings.Join(KnownFeatures, ", "))
		}
		idx := slices.Index(c.Features, name)
		switch {
		case disable && idx >= 0:
			c.Features = slices.Delete(c.Features, idx, idx+1)
		case !disable && idx < 0:
			c.Features = append(c.Features, name)
		}
	}
	return nil
}

// HasFeature reports whether name is enabled.
func (c *Config) HasFeature(name string) bool {
	return slices.Contains(c.Features, name)
}

// HistoryPath expands a leading ~ in HistoryFile. It returns "" when history
// is disabled or the home directory is unknown.
func (c *Config) HistoryPath() string {
	p := c.HistoryFile
	if p == "" || p == "-" {
		return ""
	}
	if rest, ok := strings.CutPrefix(p, "~"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, rest)
	}
	return p
}

func (c *Config) parallelFetch() bool {
	return c.ParallelFetch == nil || *c.ParallelFetch
}

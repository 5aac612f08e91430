package driver

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestDecodeConfig(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		check  func(t *testing.T, cfg *Config)
		errMsg string
	}{
		{
			name:  "empty document",
			input: "",
			check: func(t *testing.T, cfg *Config) {
				if !slices.Equal(cfg.Features, KnownFeatures) {
					t.Errorf("Expected default features, got %v", cfg.Features)
				}
				if !cfg.parallelFetch() {
					t.Error("Expected parallel fetching by default")
				}
				if cfg.Color != nil {
					t.Errorf("Expected automatic colour, got %v", *cfg.Color)
				}
			},
		},
		{
			name: "explicit values",
			input: `
features: [json-modules]
module_roots: [vendor, lib]
extensions: [.mjs]
color: false
gc_after_run: true
parallel_fetch: false
fetch_workers: 2
`,
			check: func(t *testing.T, cfg *Config) {
				if !slices.Equal(cfg.Features, []string{"json-modules"}) {
					t.Errorf("Expected [json-modules], got %v", cfg.Features)
				}
				if !slices.Equal(cfg.ModuleRoots, []string{"vendor", "lib"}) {
					t.Errorf("Expected roots [vendor lib], got %v", cfg.ModuleRoots)
				}
				if !slices.Equal(cfg.Extensions, []string{".mjs"}) {
					t.Errorf("Expected extensions [.mjs], got %v", cfg.Extensions)
				}
				if cfg.Color == nil || *cfg.Color {
					t.Error("Expected colour forced off")
				}
				if !cfg.GCAfterRun {
					t.Error("Expected gc_after_run")
				}
				if cfg.parallelFetch() {
					t.Error("Expected parallel fetching disabled")
				}
				if cfg.FetchWorkers != 2 {
					t.Errorf("Expected 2 fetch workers, got %d", cfg.FetchWorkers)
				}
				if cfg.HistoryFile != "~/.siskin_history" {
					t.Errorf("Expected the default history file, got %q", cfg.HistoryFile)
				}
			},
		},
		{
			name:  "explicit false pointer",
			input: "parallel_fetch: false\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.ParallelFetch == nil || *cfg.ParallelFetch {
					t.Error("Expected parallel_fetch: false to survive the defaults merge")
				}
				if !slices.Equal(cfg.Features, KnownFeatures) {
					t.Errorf("Expected default features, got %v", cfg.Features)
				}
			},
		},
		{
			name:   "unknown key",
			input:  "featurez: []\n",
			errMsg: "featurez",
		},
		{
			name:   "unknown feature",
			input:  "features: [decorators]\n",
			errMsg: `unknown feature "decorators"`,
		},
		{
			name:   "extension without dot",
			input:  "extensions: [js]\n",
			errMsg: `extension "js" must start with a dot`,
		},
		{
			name:   "negative workers",
			input:  "fetch_workers: -1\n",
			errMsg: "fetch_workers must not be negative",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := DecodeConfig(strings.NewReader(test.input))
			if test.errMsg != "" {
				if err == nil || !strings.Contains(err.Error(), test.errMsg) {
					t.Fatalf("Expected error containing %q, got %v", test.errMsg, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			test.check(t, cfg)
		})
	}
}

func TestFindConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := FindConfig(dir)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Path != "" {
		t.Errorf("Expected defaults without a file, got config from %s", cfg.Path)
	}

	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte("gc_after_run: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = FindConfig(dir)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Path != path || !cfg.GCAfterRun {
		t.Errorf("Expected config loaded from %s, got %+v", path, cfg)
	}
}

func TestApplyFeatureFlags(t *testing.T) {
	tests := []struct {
		flags    []string
		expected []string
		errMsg   string
	}{
		{[]string{"no-json-modules"}, []string{"promise-with-resolvers", "array-grouping"}, ""},
		{[]string{"no-array-grouping", "array-grouping"}, []string{"json-modules", "promise-with-resolvers", "array-grouping"}, ""},
		{[]string{"json-modules"}, KnownFeatures, ""},
		{[]string{"no-top-level-await"}, nil, `unknown feature "top-level-await"`},
	}
	for _, test := range tests {
		cfg := DefaultConfig()
		err := cfg.ApplyFeatureFlags(test.flags)
		if test.errMsg != "" {
			if err == nil || !strings.Contains(err.Error(), test.errMsg) {
				t.Errorf("Flags %v: expected error %q, got %v", test.flags, test.errMsg, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Flags %v: unexpected error %v", test.flags, err)
			continue
		}
		if !slices.Equal(cfg.Features, test.expected) {
			t.Errorf("Flags %v: expected %v, got %v", test.flags, test.expected, cfg.Features)
		}
	}
}

func TestHistoryPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		file     string
		expected string
	}{
		{"~/.siskin_history", filepath.Join(home, ".siskin_history")},
		{"/tmp/history", "/tmp/history"},
		{"-", ""},
		{"", ""},
	}
	for _, test := range tests {
		cfg := &Config{HistoryFile: test.file}
		if got := cfg.HistoryPath(); got != test.expected {
			t.Errorf("HistoryPath(%q): expected %q, got %q", test.file, test.expected, got)
		}
	}
}

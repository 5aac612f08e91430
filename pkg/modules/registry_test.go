package modules

import (
	"errors"
	"testing"
	"time"
)

func TestRegistryBasicOperations(t *testing.T) {
	registry := NewRegistry(DefaultLoaderConfig())

	if registry.Size() != 0 {
		t.Errorf("Expected empty registry, got size %d", registry.Size())
	}

	record := &SourceRecord{
		Specifier:    "./test.js",
		ResolvedPath: "test.js",
		Content:      "export {};",
		State:        SourceFetched,
		LoadTime:     time.Now(),
	}
	registry.Set("test.js", record)

	if registry.Size() != 1 {
		t.Errorf("Expected registry size 1, got %d", registry.Size())
	}

	retrieved := registry.Get("test.js")
	if retrieved != record {
		t.Errorf("Expected the stored record, got %+v", retrieved)
	}

	if registry.Get("nonexistent.js") != nil {
		t.Error("Expected nil for non-existent module, got record")
	}

	stats := registry.GetStats()
	if stats.CacheHits != 1 || stats.CacheMisses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d hits and %d misses", stats.CacheHits, stats.CacheMisses)
	}
	if stats.LoadedModules != 1 || stats.TotalModules != 1 {
		t.Errorf("Expected 1 loaded module, got %+v", stats)
	}
	if stats.MemoryUsage != int64(len("test.js")+len("export {};")) {
		t.Errorf("Expected memory usage of path and content, got %d", stats.MemoryUsage)
	}
}

func TestRegistryReplaceAndRemove(t *testing.T) {
	registry := NewRegistry(nil)

	registry.Set("a.js", &SourceRecord{State: SourceFailed, Error: errors.New("boom")})
	registry.Set("a.js", &SourceRecord{State: SourceFetched})

	stats := registry.GetStats()
	if stats.TotalModules != 1 || stats.LoadedModules != 1 || stats.FailedModules != 0 {
		t.Errorf("Expected replacement to keep counts consistent, got %+v", stats)
	}

	registry.Remove("a.js")
	registry.Remove("a.js")
	stats = registry.GetStats()
	if stats.TotalModules != 0 || stats.LoadedModules != 0 {
		t.Errorf("Expected empty counts after Remove, got %+v", stats)
	}
}

func TestRegistryList(t *testing.T) {
	registry := NewRegistry(DefaultLoaderConfig())

	for _, path := range []string{"c.js", "a.js", "b.js"} {
		registry.Set(path, &SourceRecord{ResolvedPath: path, State: SourceFetched, LoadTime: time.Now()})
	}

	list := registry.List()
	expected := []string{"a.js", "b.js", "c.js"}
	if len(list) != len(expected) {
		t.Fatalf("Expected %d modules in list, got %d", len(expected), len(list))
	}
	for i := range expected {
		if list[i] != expected[i] {
			t.Errorf("Expected list[%d] = %s, got %s", i, expected[i], list[i])
		}
	}

	registry.Clear()
	if registry.Size() != 0 {
		t.Errorf("Expected empty registry after Clear, got %d", registry.Size())
	}
}

func TestRegistryEviction(t *testing.T) {
	config := DefaultLoaderConfig()
	config.CacheSize = 2
	registry := NewRegistry(config)

	base := time.Now()
	registry.Set("old.js", &SourceRecord{State: SourceFetched, LoadTime: base})
	registry.Set("mid.js", &SourceRecord{State: SourceFetched, LoadTime: base.Add(time.Second)})
	registry.Set("new.js", &SourceRecord{State: SourceFetched, LoadTime: base.Add(2 * time.Second)})

	if registry.Size() != 2 {
		t.Errorf("Expected size 2 after eviction, got %d", registry.Size())
	}
	if registry.Get("old.js") != nil {
		t.Error("Expected oldest module to be evicted")
	}
	if registry.Get("new.js") == nil {
		t.Error("Expected newest module to be cached")
	}
}

func TestRegistryTTL(t *testing.T) {
	config := DefaultLoaderConfig()
	config.CacheTTL = time.Minute
	reg := NewRegistry(config).(*registry)

	now := time.Now()
	reg.now = func() time.Time { return now }
	reg.Set("a.js", &SourceRecord{State: SourceFetched, LoadTime: now})

	if reg.Get("a.js") == nil {
		t.Fatal("Expected fresh module to be cached")
	}

	now = now.Add(2 * time.Minute)
	if reg.Get("a.js") != nil {
		t.Error("Expected expired module to be a miss")
	}
	if reg.Size() != 0 {
		t.Errorf("Expected expired module to be dropped, got size %d", reg.Size())
	}
}

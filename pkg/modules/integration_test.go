package modules

import (
	"strings"
	"sync"
	"testing"
	"testing/fstest"
)

func newTestLoader(parallel bool) (*Loader, *MemoryResolver) {
	mem := NewMemoryResolver("test-memory")
	// main.js -> utils.js -> math.js, main.js -> config.json
	mem.AddModule("main.js", `
import { add } from './utils';
import config from './config.json' with { type: 'json' };
export const result = add(1, config.multiplier);`)
	mem.AddModule("utils.js", `
import { square } from './math';
export function add(a, b) { return a + b; }
export { square };`)
	mem.AddModule("math.js", `export function square(x) { return x * x; }`)
	mem.AddModule("config.json", `{"multiplier": 2}`)

	config := DefaultLoaderConfig()
	config.EnableParallel = parallel
	config.NumWorkers = 2
	config.JobBufferSize = 4
	return NewLoader(config, mem), mem
}

func TestLoaderFetch(t *testing.T) {
	loader, _ := newTestLoader(false)
	defer loader.Close()

	record, err := loader.Fetch("./main.js", "")
	if err != nil {
		t.Fatalf("Expected successful fetch, got error: %v", err)
	}
	if record.ResolvedPath != "main.js" || record.Kind != SourceJavaScript || record.State != SourceFetched {
		t.Errorf("Unexpected record: %+v", record)
	}
	if !strings.Contains(record.Content, "import { add }") {
		t.Errorf("Expected main.js content, got %q", record.Content)
	}
	if record.WorkerID != -1 {
		t.Errorf("Expected synchronous fetch to report worker -1, got %d", record.WorkerID)
	}

	cfg, err := loader.Fetch("./config.json", "main.js")
	if err != nil {
		t.Fatalf("Expected successful fetch, got error: %v", err)
	}
	if cfg.Kind != SourceJSON {
		t.Errorf("Expected JSON kind, got %s", cfg.Kind)
	}

	// A second request for the same path is a registry hit.
	again, err := loader.Fetch("./main", "")
	if err != nil || again != record {
		t.Errorf("Expected cached record, got %+v, %v", again, err)
	}

	stats := loader.GetStats()
	if stats.Fetches != 2 {
		t.Errorf("Expected 2 fetches, got %d", stats.Fetches)
	}
	if stats.Registry.CacheHits != 1 {
		t.Errorf("Expected 1 cache hit, got %d", stats.Registry.CacheHits)
	}
	if deps := loader.Graph().Dependencies("main.js"); len(deps) != 1 || deps[0] != "config.json" {
		t.Errorf("Expected main.js -> config.json edge, got %v", deps)
	}
}

func TestLoaderResolverChain(t *testing.T) {
	first := NewMemoryResolver("first")
	first.SetPriority(10)
	second := NewMemoryResolver("second")
	second.SetPriority(20)
	fs := NewFileSystemResolver(fstest.MapFS{"disk.js": {Data: []byte("disk")}}, "")

	first.AddModule("shared.js", "first")
	second.AddModule("shared.js", "second")
	second.AddModule("only-second.js", "second")

	loader := NewLoader(nil, fs, second, first)
	defer loader.Close()

	names := []string{}
	for _, r := range loader.Resolvers() {
		names = append(names, r.Name())
	}
	if strings.Join(names, ",") != "first,second,FileSystem" {
		t.Errorf("Expected resolvers in priority order, got %v", names)
	}

	tests := []struct {
		specifier string
		resolver  string
	}{
		{"./shared.js", "first"},
		{"./only-second.js", "second"},
		{"./disk.js", "FileSystem"},
	}
	for _, test := range tests {
		resolved, err := loader.Resolve(test.specifier, "")
		if err != nil {
			t.Errorf("Resolve(%s): unexpected error %v", test.specifier, err)
			continue
		}
		resolved.Source.Close()
		if resolved.Resolver != test.resolver {
			t.Errorf("Resolve(%s): expected resolver %s, got %s", test.specifier, test.resolver, resolved.Resolver)
		}
	}

	_, err := loader.Resolve("./nowhere.js", "")
	if err == nil || !strings.Contains(err.Error(), "Cannot find module './nowhere.js'") {
		t.Errorf("Expected a not-found error, got %v", err)
	}
	_, err = loader.Resolve("left-pad", "")
	if err == nil || !strings.Contains(err.Error(), "no resolver handles it") {
		t.Errorf("Expected an unhandled specifier error, got %v", err)
	}
}

func TestLoaderFetchAsync(t *testing.T) {
	loader, _ := newTestLoader(true)
	defer loader.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	got := make(map[string]*SourceRecord)
	for _, spec := range []string{"./main.js", "./utils.js", "./math.js", "./missing.js"} {
		wg.Add(1)
		loader.FetchAsync(spec, "", func(record *SourceRecord, err error) {
			defer wg.Done()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				got[spec] = nil
				return
			}
			got[spec] = record
		})
	}
	wg.Wait()

	for _, spec := range []string{"./main.js", "./utils.js", "./math.js"} {
		if got[spec] == nil {
			t.Errorf("Expected %s to be fetched", spec)
		} else if got[spec].WorkerID < 0 {
			t.Errorf("Expected %s to be fetched by a worker, got id %d", spec, got[spec].WorkerID)
		}
	}
	if got["./missing.js"] != nil {
		t.Error("Expected ./missing.js to fail")
	}

	stats := loader.GetStats()
	if stats.WorkerPool.TotalJobs != 4 || stats.WorkerPool.FailedJobs != 1 {
		t.Errorf("Expected 4 pool jobs with 1 failure, got %+v", stats.WorkerPool)
	}

	if err := loader.Close(); err != nil {
		t.Errorf("Expected clean Close, got %v", err)
	}
	called := false
	loader.FetchAsync("./main.js", "", func(record *SourceRecord, err error) {
		called = true
		if err == nil {
			t.Error("Expected fetch after Close to fail")
		}
	})
	if !called {
		t.Error("Expected done to be called synchronously after Close")
	}
}

func TestLoaderSourceLimit(t *testing.T) {
	mem := NewMemoryResolver("")
	mem.AddModule("big.js", strings.Repeat("x", 64))
	config := DefaultLoaderConfig()
	config.MaxSourceSize = 16
	loader := NewLoader(config, mem)

	record, err := loader.Fetch("./big.js", "")
	if err == nil {
		t.Fatal("Expected oversized source to fail")
	}
	if record == nil || record.State != SourceFailed {
		t.Errorf("Expected a failed record, got %+v", record)
	}
	// The failure is cached like any other fetch.
	if _, err := loader.Fetch("./big.js", ""); err == nil {
		t.Error("Expected cached failure")
	}
	if loader.GetStats().Registry.FailedModules != 1 {
		t.Errorf("Expected 1 failed module, got %+v", loader.GetStats().Registry)
	}
}

func TestLoaderClearCache(t *testing.T) {
	loader, mem := newTestLoader(false)
	if _, err := loader.Fetch("./math.js", ""); err != nil {
		t.Fatal(err)
	}
	mem.UpdateModule("math.js", "export const changed = true;")

	cached, _ := loader.Fetch("./math.js", "")
	if strings.Contains(cached.Content, "changed") {
		t.Error("Expected stale content before ClearCache")
	}

	loader.ClearCache()
	fresh, _ := loader.Fetch("./math.js", "")
	if !strings.Contains(fresh.Content, "changed") {
		t.Errorf("Expected updated content after ClearCache, got %q", fresh.Content)
	}
}

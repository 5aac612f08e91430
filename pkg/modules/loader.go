package modules

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

const moduleLoaderDebug = false

func debugPrintf(format string, args ...interface{}) {
	if moduleLoaderDebug {
		fmt.Fprintf(os.Stderr, "[modules] "+format+"\n", args...)
	}
}

// Loader resolves specifiers through a resolver chain and fetches module
// sources, caching them in a registry. It knows nothing about the engine:
// the host turns a SourceRecord into a module record.
type Loader struct {
	resolvers []ModuleResolver
	registry  ModuleRegistry
	graph     *DependencyGraph
	config    *LoaderConfig

	poolOnce sync.Once
	pool     FetchPool

	mutex          sync.RWMutex // guards resolvers and fetch stats
	fetches        int
	totalFetchTime time.Duration
}

// NewLoader creates a module loader
func NewLoader(config *LoaderConfig, resolvers ...ModuleResolver) *Loader {
	if config == nil {
		config = DefaultLoaderConfig()
	}
	l := &Loader{
		registry: NewRegistry(config),
		graph:    NewDependencyGraph(),
		config:   config,
	}
	for _, r := range resolvers {
		l.AddResolver(r)
	}
	return l
}

// AddResolver adds a module resolver to the chain
func (l *Loader) AddResolver(resolver ModuleResolver) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.resolvers = append(l.resolvers, resolver)
	// Sort resolvers by priority (lower = higher priority)
	sort.SliceStable(l.resolvers, func(i, j int) bool {
		return l.resolvers[i].Priority() < l.resolvers[j].Priority()
	})
}

// Resolvers returns the resolver chain in priority order
func (l *Loader) Resolvers() []ModuleResolver {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return append([]ModuleResolver(nil), l.resolvers...)
}

// Registry returns the source cache
func (l *Loader) Registry() ModuleRegistry {
	return l.registry
}

// Graph returns the import graph recorded by Fetch
func (l *Loader) Graph() *DependencyGraph {
	return l.graph
}

// Resolve asks each resolver that claims the specifier, in priority
// order, and returns the first success.
func (l *Loader) Resolve(specifier, fromPath string) (*ResolvedModule, error) {
	var errs []string
	for _, resolver := range l.Resolvers() {
		if !resolver.CanResolve(specifier) {
			continue
		}
		resolved, err := resolver.Resolve(specifier, fromPath)
		if err == nil {
			debugPrintf("%s resolved %q from %q to %s", resolver.Name(), specifier, fromPath, resolved.ResolvedPath)
			return resolved, nil
		}
		errs = append(errs, resolver.Name()+": "+err.Error())
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("Cannot find module '%s': no resolver handles it", specifier)
	}
	return nil, fmt.Errorf("Cannot find module '%s' (%s)", specifier, strings.Join(errs, "; "))
}

// Fetch resolves specifier and returns its source, from the registry when
// cached. The request is recorded in the import graph.
func (l *Loader) Fetch(specifier, fromPath string) (*SourceRecord, error) {
	return l.fetch(specifier, fromPath, -1)
}

func (l *Loader) fetch(specifier, fromPath string, workerID int) (*SourceRecord, error) {
	start := time.Now()
	resolved, err := l.Resolve(specifier, fromPath)
	if err != nil {
		return nil, err
	}
	if resolved.Source != nil {
		defer resolved.Source.Close()
	}
	path := resolved.ResolvedPath
	if fromPath != "" {
		l.graph.AddDependency(fromPath, path)
	} else {
		l.graph.AddModule(path)
	}

	if l.config.CacheEnabled {
		if record := l.registry.Get(path); record != nil {
			return record, record.Error
		}
	}

	record := &SourceRecord{
		Specifier:    specifier,
		ResolvedPath: path,
		Kind:         resolved.Kind,
		Resolver:     resolved.Resolver,
		Native:       resolved.Native,
		State:        SourceFetched,
		LoadTime:     start,
		WorkerID:     workerID,
	}
	if resolved.Source != nil {
		content, err := l.readSource(resolved.Source)
		if err != nil {
			record.State = SourceFailed
			record.Error = fmt.Errorf("reading %s: %w", path, err)
		}
		record.Content = content
	}
	record.FetchDuration = time.Since(start)

	l.mutex.Lock()
	l.fetches++
	l.totalFetchTime += record.FetchDuration
	l.mutex.Unlock()

	if l.config.CacheEnabled {
		l.registry.Set(path, record)
	}
	return record, record.Error
}

func (l *Loader) readSource(r io.Reader) (string, error) {
	if max := l.config.MaxSourceSize; max > 0 {
		r = io.LimitReader(r, max+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if max := l.config.MaxSourceSize; max > 0 && int64(len(data)) > max {
		return "", fmt.Errorf("source larger than %d bytes", max)
	}
	return string(data), nil
}

// FetchAsync runs Fetch on the worker pool and calls done from a pool
// goroutine. Without parallel fetching it calls done before returning.
func (l *Loader) FetchAsync(specifier, fromPath string, done func(*SourceRecord, error)) {
	if !l.config.EnableParallel {
		done(l.Fetch(specifier, fromPath))
		return
	}
	l.poolOnce.Do(func() {
		l.pool = NewWorkerPool(l.config, func(job *FetchJob, workerID int) *FetchResult {
			record, err := l.fetch(job.Specifier, job.FromPath, workerID)
			return &FetchResult{Record: record, Error: err, WorkerID: workerID}
		})
	})
	if l.pool == nil {
		done(nil, fmt.Errorf("module loader closed"))
		return
	}
	err := l.pool.Submit(&FetchJob{
		Specifier: specifier,
		FromPath:  fromPath,
		Done: func(result *FetchResult) {
			done(result.Record, result.Error)
		},
	})
	if err != nil {
		done(nil, err)
	}
}

// Close stops the worker pool, waiting for running fetches.
func (l *Loader) Close() error {
	var err error
	l.poolOnce.Do(func() {}) // no pool may start after Close
	if l.pool != nil {
		err = l.pool.Shutdown()
	}
	return err
}

// ClearCache drops every cached source and the import graph
func (l *Loader) ClearCache() {
	l.registry.Clear()
	l.graph.Clear()
}

// GetStats returns loader statistics
func (l *Loader) GetStats() LoaderStats {
	stats := LoaderStats{
		Registry: l.registry.GetStats(),
		Graph:    l.graph.Stats(),
	}
	if l.pool != nil {
		stats.WorkerPool = l.pool.GetStats()
	}
	l.mutex.RLock()
	stats.Fetches = l.fetches
	stats.TotalFetchTime = l.totalFetchTime
	l.mutex.RUnlock()
	return stats
}

package modules

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// registry is the default ModuleRegistry: a map bounded by
// LoaderConfig.CacheSize whose entries expire after CacheTTL.
type registry struct {
	mutex   sync.Mutex
	sources map[string]*SourceRecord
	stats   RegistryStats
	config  *LoaderConfig
	now     func() time.Time
}

// NewRegistry returns an empty registry; nil config means the defaults.
func NewRegistry(config *LoaderConfig) ModuleRegistry {
	if config == nil {
		config = DefaultLoaderConfig()
	}

	return &registry{
		sources: make(map[string]*SourceRecord),
		config:  config,
		now:     time.Now,
	}
}

// Get retrieves a source record by resolved path. Expired records count
// as misses and are dropped.
func (r *registry) Get(path string) *SourceRecord {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	record := r.sources[path]
	if record == nil {
		r.stats.CacheMisses++
		return nil
	}
	if r.config.CacheTTL > 0 && r.now().Sub(record.LoadTime) > r.config.CacheTTL {
		r.removeLocked(path)
		r.stats.CacheMisses++
		return nil
	}
	r.stats.CacheHits++
	return record
}

// Set stores record, evicting the oldest entry when the cache is full.
func (r *registry) Set(path string, record *SourceRecord) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.sources[path]; exists {
		r.removeLocked(path)
	} else if r.config.CacheSize > 0 && len(r.sources) >= r.config.CacheSize {
		r.evictOldest()
	}

	r.stats.TotalModules++
	switch record.State {
	case SourceFetched:
		r.stats.LoadedModules++
	case SourceFailed:
		r.stats.FailedModules++
	}
	r.sources[path] = record
}

func (r *registry) Remove(path string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.removeLocked(path)
}

func (r *registry) removeLocked(path string) {
	record := r.sources[path]
	if record == nil {
		return
	}
	delete(r.sources, path)
	r.stats.TotalModules--
	switch record.State {
	case SourceFetched:
		r.stats.LoadedModules--
	case SourceFailed:
		r.stats.FailedModules--
	}
}

func (r *registry) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	clear(r.sources)
	r.stats = RegistryStats{}
}

func (r *registry) List() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return slices.Sorted(maps.Keys(r.sources))
}

func (r *registry) Size() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return len(r.sources)
}

// GetStats returns the counters, with MemoryUsage estimated from path and
// source lengths.
func (r *registry) GetStats() RegistryStats {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var memoryUsage int64
	for path, record := range r.sources {
		memoryUsage += int64(len(path) + len(record.Content))
	}

	stats := r.stats
	stats.MemoryUsage = memoryUsage
	return stats
}

// evictOldest drops the entry with the earliest LoadTime. r.mutex is held.
func (r *registry) evictOldest() {
	var oldestPath string
	var oldest *SourceRecord
	for path, record := range r.sources {
		if oldest == nil || record.LoadTime.Before(oldest.LoadTime) {
			oldestPath, oldest = path, record
		}
	}
	if oldest != nil {
		debugPrintf("registry: evicting %s", oldestPath)
		r.removeLocked(oldestPath)
	}
}

package modules

import (
	"io"
	"path"
	"runtime"
	"strings"
	"time"
)

// SourceKind tells the host how to turn a fetched source into a module.
type SourceKind int

const (
	SourceJavaScript SourceKind = iota // module source text
	SourceJSON                         // JSON module, needs type: "json"
	SourceNative                       // module built in Go
)

func (k SourceKind) String() string {
	switch k {
	case SourceJavaScript:
		return "javascript"
	case SourceJSON:
		return "json"
	case SourceNative:
		return "native"
	default:
		return "unknown"
	}
}

// KindForPath guesses the source kind from a file extension.
func KindForPath(p string) SourceKind {
	if strings.EqualFold(path.Ext(p), ".json") {
		return SourceJSON
	}
	return SourceJavaScript
}

// ResolvedModule is the result of module resolution
type ResolvedModule struct {
	Specifier    string        // Original specifier
	ResolvedPath string        // Resolved path, the registry and cache key
	Kind         SourceKind    // How the source should be compiled
	Source       io.ReadCloser // Module source, nil for native modules
	Resolver     string        // Name of resolver that found this module

	// Native is set by resolvers that build modules in Go. The host knows
	// its concrete type.
	Native any
}

// SourceState represents the fetch state of a module source
type SourceState int

const (
	SourceResolved SourceState = iota // Path resolved, not read yet
	SourceFetched                     // Source read into memory
	SourceFailed                      // Resolution or read failed
)

func (s SourceState) String() string {
	switch s {
	case SourceResolved:
		return "resolved"
	case SourceFetched:
		return "fetched"
	case SourceFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SourceRecord is a fetched module source as kept by the registry.
type SourceRecord struct {
	Specifier    string     // Specifier of the first request
	ResolvedPath string     // Resolved path
	Kind         SourceKind // How to compile Content
	Content      string     // Source text, empty for native modules
	Resolver     string     // Resolver that found the module
	Native       any        // See ResolvedModule.Native

	State SourceState
	Error error

	LoadTime      time.Time     // When the fetch started
	FetchDuration time.Duration // Time spent resolving and reading
	WorkerID      int           // Pool worker that fetched it, -1 when synchronous
}

// FetchJob is a module fetch handed to the worker pool
type FetchJob struct {
	Specifier string    // Specifier as written
	FromPath  string    // Resolved path of the importing module
	Timestamp time.Time // When the job was created

	// Done receives the result on a pool goroutine.
	Done func(*FetchResult)
}

// FetchResult is the outcome of a FetchJob
type FetchResult struct {
	Record   *SourceRecord
	Error    error
	WorkerID int
}

// LoaderConfig configures module loader behavior
type LoaderConfig struct {
	// Parallel fetch settings
	EnableParallel bool // Whether FetchAsync uses the worker pool
	NumWorkers     int  // Number of fetch workers (0 = auto)
	JobBufferSize  int  // Size of job queue buffer

	// Caching settings
	CacheEnabled bool          // Whether to cache fetched sources
	CacheSize    int           // Maximum number of cached sources (0 = unlimited)
	CacheTTL     time.Duration // Time-to-live for cached sources (0 = no expiry)

	// MaxSourceSize rejects larger module files (0 = unlimited)
	MaxSourceSize int64
}

// DefaultLoaderConfig returns sensible default configuration
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		EnableParallel: true,
		NumWorkers:     runtime.NumCPU(),
		JobBufferSize:  100,

		CacheEnabled: true,
		CacheSize:    0, // Unlimited
		CacheTTL:     0, // No expiry

		MaxSourceSize: 64 << 20,
	}
}

// WorkerPoolStats contains statistics about worker pool performance
type WorkerPoolStats struct {
	TotalJobs     int           // Total jobs submitted
	ActiveJobs    int           // Currently active jobs
	CompletedJobs int           // Successfully completed jobs
	FailedJobs    int           // Failed jobs
	AverageTime   time.Duration // Average processing time per job
	TotalTime     time.Duration // Total time spent processing
	WorkerCount   int           // Number of workers
}

// RegistryStats contains statistics about the module registry
type RegistryStats struct {
	TotalModules  int   // Total sources in registry
	LoadedModules int   // Sources successfully fetched
	FailedModules int   // Sources that failed to fetch
	CacheHits     int   // Number of cache hits
	CacheMisses   int   // Number of cache misses
	MemoryUsage   int64 // Approximate memory usage in bytes
}

// LoaderStats contains overall statistics about module loading
type LoaderStats struct {
	WorkerPool     WorkerPoolStats
	Registry       RegistryStats
	Graph          GraphStats
	Fetches        int           // Sources read from a resolver
	TotalFetchTime time.Duration // Time spent in those reads
}

package modules

import (
	"io/fs"
)

// ModuleFS is the file system a FileSystemResolver reads sources from.
type ModuleFS interface {
	fs.FS
	fs.ReadFileFS
}

// ModuleResolver is one link of the loader's resolver chain. The loader
// asks resolvers in ascending Priority order and takes the first
// successful Resolve among those whose CanResolve accepts the specifier.
type ModuleResolver interface {
	Name() string
	CanResolve(specifier string) bool

	// Resolve maps specifier to a source. fromPath is the resolved path of
	// the importing module, empty for imports made by the host.
	Resolve(specifier string, fromPath string) (*ResolvedModule, error)

	Priority() int
}

// ModuleRegistry caches fetched module sources by resolved path.
type ModuleRegistry interface {
	Get(path string) *SourceRecord
	Set(path string, record *SourceRecord)
	Remove(path string)
	Clear()
	List() []string
	Size() int
	GetStats() RegistryStats
}

// FetchPool reads module sources off the agent goroutine.
type FetchPool interface {
	// Submit queues job. job.Done is called on a pool goroutine.
	Submit(job *FetchJob) error

	// Shutdown stops accepting jobs and waits for running ones.
	Shutdown() error

	HasActiveJobs() bool
	GetStats() WorkerPoolStats
}

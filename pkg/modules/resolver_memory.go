package modules

import (
	"fmt"
	"io"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"
)

// MemoryResolver serves modules registered by the embedder, such as the
// REPL's inputs or sources passed to Session.AddModule. Keys are
// slash-separated virtual paths; they never touch the file system.
type MemoryResolver struct {
	name     string
	priority int

	mu      sync.RWMutex
	modules map[string]*MemoryModule
}

// MemoryModule is one stored source. Version starts at 1 and grows with
// every UpdateModule.
type MemoryModule struct {
	Path    string
	Content string
	Version int
}

// NewMemoryResolver returns an empty store. It outranks the file system
// resolver so registered sources shadow files of the same name.
func NewMemoryResolver(name string) *MemoryResolver {
	if name == "" {
		name = "Memory"
	}
	return &MemoryResolver{
		name:     name,
		priority: 50,
		modules:  make(map[string]*MemoryModule),
	}
}

func (r *MemoryResolver) Name() string { return r.name }

func (r *MemoryResolver) Priority() int { return r.priority }

// SetPriority moves the resolver within the chain.
func (r *MemoryResolver) SetPriority(priority int) { r.priority = priority }

// CanResolve accepts every path specifier and bare names that were stored
// verbatim.
func (r *MemoryResolver) CanResolve(specifier string) bool {
	if isPathSpecifier(specifier) {
		return true
	}
	return r.GetModule(specifier) != nil
}

func (r *MemoryResolver) Resolve(specifier string, fromPath string) (*ResolvedModule, error) {
	key, err := memoryKey(specifier, fromPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", specifier, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, candidate := range probePaths(key) {
		if m, ok := r.modules[candidate]; ok {
			return &ResolvedModule{
				Specifier:    specifier,
				ResolvedPath: candidate,
				Kind:         KindForPath(candidate),
				Source:       io.NopCloser(strings.NewReader(m.Content)),
				Resolver:     r.name,
			}, nil
		}
	}
	return nil, fmt.Errorf("failed to resolve %s: module not found: %s", specifier, key)
}

// memoryKey turns a specifier into a store key. Relative specifiers are
// taken from the referrer's directory; a leading slash means the store
// root.
func memoryKey(specifier, fromPath string) (string, error) {
	switch {
	case strings.HasPrefix(specifier, "./"), strings.HasPrefix(specifier, "../"):
		if fromPath != "" {
			return path.Join(path.Dir(fromPath), specifier), nil
		}
		if strings.HasPrefix(specifier, "../") {
			return "", fmt.Errorf("relative import %s requires fromPath", specifier)
		}
		return path.Clean(specifier), nil
	case strings.HasPrefix(specifier, "/"):
		return path.Clean(specifier[1:]), nil
	}
	return specifier, nil
}

// probePaths lists the keys tried for p: the exact key, then each default
// extension, then the index files of p as a directory.
func probePaths(p string) []string {
	out := make([]string, 0, 1+len(defaultExtensions)+len(defaultIndexFiles))
	out = append(out, p)
	for _, ext := range defaultExtensions {
		out = append(out, p+ext)
	}
	for _, index := range defaultIndexFiles {
		out = append(out, path.Join(p, index))
	}
	return out
}

// AddModule stores content under p, replacing any previous source.
func (r *MemoryResolver) AddModule(p string, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[p] = &MemoryModule{Path: p, Content: content, Version: 1}
}

// UpdateModule replaces the source of an existing module.
func (r *MemoryResolver) UpdateModule(p string, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[p]
	if !ok {
		return fmt.Errorf("module not found: %s", p)
	}
	m.Content = content
	m.Version++
	return nil
}

func (r *MemoryResolver) RemoveModule(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, p)
}

// ListModules returns the stored paths in sorted order.
func (r *MemoryResolver) ListModules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.modules))
}

func (r *MemoryResolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.modules)
}

// GetModule returns the module stored under p, or nil.
func (r *MemoryResolver) GetModule(p string) *MemoryModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modules[p]
}

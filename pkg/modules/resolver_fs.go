package modules

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSystemResolver resolves path specifiers, and bare specifiers under
// the configured module roots, against an fs.FS or the OS file system.
type FileSystemResolver struct {
	name     string
	fs       ModuleFS
	priority int

	extensions []string
	indexFiles []string
	roots      []string // searched in order for bare specifiers
	baseDir    string
	absolute   bool // resolved paths are OS paths rather than fs.FS names
}

var (
	defaultExtensions = []string{".js", ".mjs", ".json"}
	defaultIndexFiles = []string{"index.js", "index.mjs"}
)

// NewFileSystemResolver resolves against filesystem. Names inside it are
// slash-separated and rooted at its top directory.
func NewFileSystemResolver(filesystem fs.FS, baseDir string) *FileSystemResolver {
	moduleFS, ok := filesystem.(ModuleFS)
	if !ok {
		moduleFS = readFileFS{filesystem}
	}

	return &FileSystemResolver{
		name:       "FileSystem",
		fs:         moduleFS,
		priority:   100,
		extensions: defaultExtensions,
		indexFiles: defaultIndexFiles,
		baseDir:    baseDir,
	}
}

// NewOSFileSystemResolver creates a resolver that uses the OS file system.
// Its resolved paths are absolute, so they double as stack trace names.
func NewOSFileSystemResolver(baseDir string) *FileSystemResolver {
	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		absBaseDir = baseDir
	}

	return &FileSystemResolver{
		name:       "OSFileSystem",
		fs:         &osFS{baseDir: absBaseDir},
		priority:   100,
		extensions: defaultExtensions,
		indexFiles: defaultIndexFiles,
		baseDir:    absBaseDir,
		absolute:   true,
	}
}

func (r *FileSystemResolver) Name() string {
	return r.name
}

// CanResolve accepts path specifiers, and bare ones when roots are set.
func (r *FileSystemResolver) CanResolve(specifier string) bool {
	if isPathSpecifier(specifier) {
		return true
	}
	// Bare specifiers only when module roots are configured, and never
	// scheme-qualified ones like siskin:process.
	return len(r.roots) > 0 && !strings.Contains(specifier, ":")
}

func isPathSpecifier(specifier string) bool {
	return strings.HasPrefix(specifier, "./") ||
		strings.HasPrefix(specifier, "../") ||
		strings.HasPrefix(specifier, "/") ||
		filepath.IsAbs(specifier)
}

func (r *FileSystemResolver) Priority() int {
	return r.priority
}

func (r *FileSystemResolver) Resolve(specifier string, fromPath string) (*ResolvedModule, error) {
	var candidates []string
	if isPathSpecifier(specifier) {
		targetPath, err := r.calculateTargetPath(specifier, fromPath)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate target path: %w", err)
		}
		candidates = []string{targetPath}
	} else {
		for _, root := range r.roots {
			candidates = append(candidates, r.rootPath(root, specifier))
		}
	}

	var resolvedPath string
	var lastErr error
	for _, candidate := range candidates {
		p, err := r.tryResolve(candidate)
		if err == nil {
			resolvedPath = p
			break
		}
		lastErr = err
	}
	if resolvedPath == "" {
		if lastErr == nil {
			lastErr = fmt.Errorf("no module roots configured")
		}
		return nil, fmt.Errorf("failed to resolve %s: %w", specifier, lastErr)
	}

	source, err := r.fs.Open(resolvedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", resolvedPath, err)
	}

	return &ResolvedModule{
		Specifier:    specifier,
		ResolvedPath: resolvedPath,
		Kind:         KindForPath(resolvedPath),
		Source:       source,
		Resolver:     r.name,
	}, nil
}

// calculateTargetPath places a path specifier relative to fromPath, or to
// the base directory for host imports.
func (r *FileSystemResolver) calculateTargetPath(specifier string, fromPath string) (string, error) {
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") {
		if fromPath == "" {
			if r.absolute {
				return filepath.Join(r.baseDir, specifier), nil
			}
			if strings.HasPrefix(specifier, "./") {
				return strings.TrimPrefix(specifier, "./"), nil
			}
			return "", fmt.Errorf("relative import %s requires fromPath", specifier)
		}

		return filepath.Join(filepath.Dir(fromPath), specifier), nil
	}

	if r.absolute {
		return specifier, nil
	}
	// An fs.FS has no absolute paths; "/" is its root.
	return strings.TrimPrefix(specifier, "/"), nil
}

func (r *FileSystemResolver) rootPath(root, specifier string) string {
	if r.absolute && !filepath.IsAbs(root) {
		root = filepath.Join(r.baseDir, root)
	}
	return filepath.Join(root, specifier)
}

// tryResolve returns the first candidate of targetPath that is a regular
// file. fs.FS resolvers refuse paths that leave the root.
func (r *FileSystemResolver) tryResolve(targetPath string) (string, error) {
	targetPath = filepath.Clean(targetPath)
	if !r.absolute && strings.HasPrefix(targetPath, "..") {
		return "", fmt.Errorf("module not found: %s escapes the module root", targetPath)
	}
	for _, candidate := range r.probe(targetPath) {
		if info, err := fs.Stat(r.fs, candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("module not found: %s", targetPath)
}

// probe lists targetPath, then targetPath with each extension, then the
// index files inside it.
func (r *FileSystemResolver) probe(targetPath string) []string {
	out := append(make([]string, 0, 1+len(r.extensions)+len(r.indexFiles)), targetPath)
	for _, ext := range r.extensions {
		out = append(out, targetPath+ext)
	}
	for _, index := range r.indexFiles {
		out = append(out, filepath.Join(targetPath, index))
	}
	return out
}

// SetExtensions replaces the extensions probed after the exact path.
func (r *FileSystemResolver) SetExtensions(extensions []string) {
	r.extensions = extensions
}

func (r *FileSystemResolver) SetIndexFiles(indexFiles []string) {
	r.indexFiles = indexFiles
}

// SetRoots sets the directories searched for bare specifiers. Relative
// roots of an OS resolver are taken from the base directory.
func (r *FileSystemResolver) SetRoots(roots []string) {
	r.roots = roots
}

func (r *FileSystemResolver) SetPriority(priority int) {
	r.priority = priority
}

// readFileFS adds ReadFile to file systems that only implement Open.
type readFileFS struct {
	fs.FS
}

func (f readFileFS) ReadFile(name string) ([]byte, error) {
	return fs.ReadFile(f.FS, name)
}

// osFS implements ModuleFS using the OS file system. Absolute names are
// used as is, relative ones are taken from baseDir.
type osFS struct {
	baseDir string
}

func (osfs *osFS) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(osfs.baseDir, name)
}

func (osfs *osFS) Open(name string) (fs.File, error) {
	return os.Open(osfs.path(name))
}

func (osfs *osFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(osfs.path(name))
}

func (osfs *osFS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(osfs.path(name))
}

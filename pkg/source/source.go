package source

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// Goal is the grammar a source text is parsed with.
type Goal int

const (
	GoalScript Goal = iota
	GoalModule
	GoalJSON
)

func (g Goal) String() string {
	switch g {
	case GoalScript:
		return "script"
	case GoalModule:
		return "module"
	case GoalJSON:
		return "json"
	default:
		return "unknown"
	}
}

// SourceFile represents a source file with its content and metadata
type SourceFile struct {
	Name    string   // Display name (e.g., "main.js", "<stdin>", "<eval>")
	Path    string   // Full file path (empty for REPL/eval)
	Content string   // The source code content
	Goal    Goal     // Grammar to parse Content with
	lines   []string // Cached split lines (lazy initialization)
	offsets []int    // Byte offset of every line start (lazy initialization)
}

// NewSourceFile creates a new source file
func NewSourceFile(name, path, content string) *SourceFile {
	return &SourceFile{
		Name:    name,
		Path:    path,
		Content: content,
	}
}

// NewEvalSource creates a source file for eval input
func NewEvalSource(content string) *SourceFile {
	return &SourceFile{
		Name:    "<eval>",
		Content: content,
	}
}

// NewReplSource creates a source file for REPL input
func NewReplSource(content string) *SourceFile {
	return &SourceFile{
		Name:    "<repl>",
		Content: content,
	}
}

// NewStdinSource creates a source file for stdin input
func NewStdinSource(content string) *SourceFile {
	return &SourceFile{
		Name:    "<stdin>",
		Content: content,
	}
}

// Lines returns the source split into lines (cached)
func (sf *SourceFile) Lines() []string {
	if sf.lines == nil {
		sf.lines = strings.Split(sf.Content, "\n")
	}
	return sf.lines
}

func (sf *SourceFile) lineOffsets() []int {
	if sf.offsets == nil {
		sf.offsets = []int{0}
		for i := 0; i < len(sf.Content); i++ {
			if sf.Content[i] == '\n' {
				sf.offsets = append(sf.offsets, i+1)
			}
		}
	}
	return sf.offsets
}

// Offset converts a 1-based line and 1-based byte column back into a byte
// offset, clamped to the content.
func (sf *SourceFile) Offset(line, byteColumn int) int {
	offsets := sf.lineOffsets()
	if line < 1 {
		return 0
	}
	if line > len(offsets) {
		return len(sf.Content)
	}
	off := offsets[line-1] + byteColumn - 1
	if off < 0 {
		off = 0
	}
	if off > len(sf.Content) {
		off = len(sf.Content)
	}
	return off
}

// Position converts a 0-based byte offset into a 1-based line and column.
// Columns count runes, not bytes.
func (sf *SourceFile) Position(offset int) (line, column int) {
	sf.lineOffsets()
	if offset < 0 {
		offset = 0
	}
	if offset > len(sf.Content) {
		offset = len(sf.Content)
	}
	idx := sort.Search(len(sf.offsets), func(i int) bool { return sf.offsets[i] > offset }) - 1
	start := sf.offsets[idx]
	return idx + 1, utf8.RuneCountInString(sf.Content[start:offset]) + 1
}

// DisplayPath returns the best path for display (prefers Path, falls back to Name)
func (sf *SourceFile) DisplayPath() string {
	if sf.Path != "" {
		return sf.Path
	}
	return sf.Name
}

// IsFile returns true if this represents an actual file (has a path)
func (sf *SourceFile) IsFile() bool {
	return sf.Path != ""
}

// FromFile creates a SourceFile from a file path and content. Files ending
// in .mjs are modules and .json files are JSON; anything else is a script
// until the caller says otherwise.
func FromFile(filePath, content string) *SourceFile {
	sf := NewSourceFile(filepath.Base(filePath), filePath, content)
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".mjs":
		sf.Goal = GoalModule
	case ".json":
		sf.Goal = GoalJSON
	}
	return sf
}

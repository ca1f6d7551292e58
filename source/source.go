// Package source supplies module binaries to namespaces by qualified name.
package source

import (
	stderrors "errors"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/wippyai/wasm-isolate/module"
)

// ErrNotExist is returned when a source holds no binary for a name.
var ErrNotExist = stderrors.New("module resource does not exist")

// Extension is appended to the internal name to form a resource path.
const Extension = ".wasm"

// Source resolves a qualified module name to its binary.
type Source interface {
	ReadModule(name string) ([]byte, error)
}

// ResourcePath returns the slash-separated resource path for a name:
// "acme.app.Sample" -> "acme/app/Sample.wasm".
func ResourcePath(name string) string {
	return module.InternalName(name) + Extension
}

// Map is an in-memory source. It is safe for concurrent use.
type Map struct {
	m  map[string][]byte
	mu sync.RWMutex
}

// NewMap returns a source holding a copy of entries.
func NewMap(entries map[string][]byte) *Map {
	m := &Map{m: make(map[string][]byte, len(entries))}
	for k, v := range entries {
		m.m[k] = v
	}
	return m
}

// Put adds or replaces a binary.
func (s *Map) Put(name string, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[name] = b
}

// ReadModule implements Source
func (s *Map) ReadModule(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.m[name]
	if !ok {
		return nil, ErrNotExist
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// FS reads binaries from a file system using ResourcePath.
type FS struct {
	fsys fs.FS
}

// NewFS returns a source rooted at fsys.
func NewFS(fsys fs.FS) *FS {
	return &FS{fsys: fsys}
}

// ReadModule implements Source
func (s *FS) ReadModule(name string) ([]byte, error) {
	p := ResourcePath(name)
	if !fs.ValidPath(p) || strings.Contains(name, "/") {
		return nil, ErrNotExist
	}
	b, err := fs.ReadFile(s.fsys, path.Clean(p))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	return b, err
}

// Chain tries each source in order and returns the first binary found.
type Chain []Source

// ReadModule implements Source
func (c Chain) ReadModule(name string) ([]byte, error) {
	for _, s := range c {
		b, err := s.ReadModule(name)
		if err == nil {
			return b, nil
		}
		if !stderrors.Is(err, ErrNotExist) {
			return nil, err
		}
	}
	return nil, ErrNotExist
}

// Package mfstest provides an in-memory mfs.API for tests, mimicking the
// daemon's application-level behavior (missing parents, existing targets,
// recursive removal) without a network.
package mfstest

import (
	"context"
	"fmt"
	gopath "path"
	"sort"
	"strings"
	"sync"

	"github.com/peerdav/peerdav/internal/mfs"
)

// DirSize is the fake cumulative size reported for directories, standing in
// for the DAG accounting figure a real daemon returns.
const DirSize = 4096

type node struct {
	dir  bool
	data []byte
}

// MemFS is an in-memory remote store. All methods are safe for concurrent
// use. A non-nil injected error makes every call fail with it, which is how
// tests simulate an unreachable daemon.
type MemFS struct {
	mu      sync.Mutex
	nodes   map[string]*node
	flushed []string
	err     error
}

var _ mfs.API = (*MemFS)(nil)

// New creates a MemFS containing only the root directory.
func New() *MemFS {
	return &MemFS{
		nodes: map[string]*node{
			"/": {dir: true},
		},
	}
}

// FailWith makes every subsequent call return err; nil restores normal
// operation.
func (m *MemFS) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Content returns the raw bytes stored at path, for assertions.
func (m *MemFS) Content(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[clean(path)]
	if !ok || n.dir {
		return nil, false
	}
	return append([]byte(nil), n.data...), true
}

func (m *MemFS) Stat(ctx context.Context, path string) (mfs.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return mfs.Entry{}, m.err
	}
	path = clean(path)
	n, ok := m.nodes[path]
	if !ok {
		return mfs.Entry{}, notFound(path)
	}
	return m.entry(path, n), nil
}

func (m *MemFS) List(ctx context.Context, path string) ([]mfs.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	path = clean(path)
	n, ok := m.nodes[path]
	if !ok {
		return nil, notFound(path)
	}
	if !n.dir {
		return nil, fmt.Errorf("%w: %s is not a directory", mfs.ErrInvalidPath, path)
	}

	var entries []mfs.Entry
	for p, child := range m.nodes {
		if p != path && gopath.Dir(p) == path {
			entries = append(entries, m.entry(p, child))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (m *MemFS) ReadAll(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	path = clean(path)
	n, ok := m.nodes[path]
	if !ok {
		return nil, notFound(path)
	}
	if n.dir {
		return nil, fmt.Errorf("%w: %s is a directory", mfs.ErrInvalidPath, path)
	}
	return append([]byte(nil), n.data...), nil
}

func (m *MemFS) WriteAll(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	path = clean(path)
	if err := m.requireParent(path); err != nil {
		return err
	}
	if n, ok := m.nodes[path]; ok && n.dir {
		return fmt.Errorf("%w: %s is a directory", mfs.ErrInvalidPath, path)
	}
	m.nodes[path] = &node{data: append([]byte(nil), data...)}
	return nil
}

func (m *MemFS) Mkdir(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	path = clean(path)
	if _, ok := m.nodes[path]; ok {
		return fmt.Errorf("%w: %s", mfs.ErrExists, path)
	}
	if err := m.requireParent(path); err != nil {
		return err
	}
	m.nodes[path] = &node{dir: true}
	return nil
}

func (m *MemFS) Remove(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	path = clean(path)
	if _, ok := m.nodes[path]; !ok {
		return notFound(path)
	}
	for p := range m.nodes {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(m.nodes, p)
		}
	}
	return nil
}

func (m *MemFS) Move(ctx context.Context, src, dest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	src, dest = clean(src), clean(dest)
	if _, ok := m.nodes[src]; !ok {
		return notFound(src)
	}
	if err := m.requireParent(dest); err != nil {
		return err
	}
	moved := make(map[string]*node)
	for p, n := range m.nodes {
		if p == src || strings.HasPrefix(p, src+"/") {
			moved[dest+strings.TrimPrefix(p, src)] = n
			delete(m.nodes, p)
		}
	}
	for p, n := range moved {
		m.nodes[p] = n
	}
	return nil
}

func (m *MemFS) Copy(ctx context.Context, src, dest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	src, dest = clean(src), clean(dest)
	if _, ok := m.nodes[src]; !ok {
		return notFound(src)
	}
	if _, ok := m.nodes[dest]; ok {
		return fmt.Errorf("%w: %s", mfs.ErrExists, dest)
	}
	if err := m.requireParent(dest); err != nil {
		return err
	}
	for p, n := range m.nodes {
		if p == src || strings.HasPrefix(p, src+"/") {
			copied := *n
			copied.data = append([]byte(nil), n.data...)
			m.nodes[dest+strings.TrimPrefix(p, src)] = &copied
		}
	}
	return nil
}

func (m *MemFS) Flush(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.flushed = append(m.flushed, clean(path))
	return nil
}

// Flushed returns the paths flushed so far, in call order.
func (m *MemFS) Flushed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.flushed...)
}

func (m *MemFS) entry(path string, n *node) mfs.Entry {
	size := uint64(len(n.data))
	if n.dir {
		size = DirSize
	}
	name := gopath.Base(path)
	if name == "/" {
		name = "/"
	}
	return mfs.Entry{
		Path: path,
		Name: name,
		Dir:  n.dir,
		Size: size,
	}
}

func (m *MemFS) requireParent(path string) error {
	parent := gopath.Dir(path)
	n, ok := m.nodes[parent]
	if !ok {
		return notFound(parent)
	}
	if !n.dir {
		return fmt.Errorf("%w: %s is not a directory", mfs.ErrInvalidPath, parent)
	}
	return nil
}

func notFound(path string) error {
	return fmt.Errorf("%w: %s", mfs.ErrNotFound, path)
}

func clean(path string) string {
	if path == "" {
		return "/"
	}
	return gopath.Clean(path)
}

package kv

import (
	"bytes"
	"context"
	"iter"
	"sort"
	"sync"

	"github.com/google/btree"
)

const memoryDegree = 32

// Memory is an in-process Backend keeping each bucket in a B-tree.
// It is intended for tests and ephemeral caches; nothing is persisted.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]*btree.BTreeG[Entry]
	closed  bool
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		buckets: make(map[string]*btree.BTreeG[Entry]),
	}
}

func lessEntry(a, b Entry) bool {
	return bytes.Compare(a.Key, b.Key) < 0
}

// Bucket implements Backend.
func (m *Memory) Bucket(_ context.Context, name string) (Bucket, error) {
	if name == "" {
		return nil, ErrInvalidBucket
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return &memoryBucket{backend: m, name: name}, nil
}

// Buckets implements Backend.
func (m *Memory) Buckets(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	names := make([]string, 0, len(m.buckets))
	for name, tree := range m.buckets {
		if tree.Len() > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close implements Backend. Data is discarded.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.buckets = nil
	return nil
}

type memoryBucket struct {
	backend *Memory
	name    string
}

func (b *memoryBucket) Name() string { return b.name }

func (b *memoryBucket) Get(_ context.Context, key []byte) ([]byte, error) {
	m := b.backend
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	tree, ok := m.buckets[b.name]
	if !ok {
		return nil, ErrNotFound
	}
	e, ok := tree.Get(Entry{Key: key})
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(e.Value), nil
}

func (b *memoryBucket) Put(_ context.Context, key, value []byte) error {
	m := b.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	tree, ok := m.buckets[b.name]
	if !ok {
		tree = btree.NewG(memoryDegree, lessEntry)
		m.buckets[b.name] = tree
	}
	// Copies keep callers from mutating stored bytes.
	tree.ReplaceOrInsert(Entry{Key: bytes.Clone(key), Value: bytes.Clone(value)})
	return nil
}

func (b *memoryBucket) Delete(_ context.Context, key []byte) error {
	m := b.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if tree, ok := m.buckets[b.name]; ok {
		tree.Delete(Entry{Key: key})
	}
	return nil
}

func (b *memoryBucket) Count(_ context.Context) (int, error) {
	m := b.backend
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}

	if tree, ok := m.buckets[b.name]; ok {
		return tree.Len(), nil
	}
	return 0, nil
}

func (b *memoryBucket) Scan(_ context.Context, r Range) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		entries, err := b.snapshot(r)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		yieldAll(entries, r.Limit, yield)
	}
}

// snapshot copies the selected entries under the read lock.
func (b *memoryBucket) snapshot(r Range) ([]Entry, error) {
	m := b.backend
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	lo, hi, ok := r.Bounds()
	tree, exists := m.buckets[b.name]
	if !ok || !exists {
		return nil, nil
	}

	var entries []Entry
	collect := func(e Entry) bool {
		if !within(e.Key, lo, hi) {
			// Reverse walks start at hi (inclusive) and end below lo.
			if r.Reverse && hi != nil && bytes.Equal(e.Key, hi) {
				return true
			}
			return false
		}
		entries = append(entries, Entry{Key: bytes.Clone(e.Key), Value: bytes.Clone(e.Value)})
		return r.Limit <= 0 || len(entries) < r.Limit
	}

	switch {
	case !r.Reverse && hi == nil:
		tree.AscendGreaterOrEqual(Entry{Key: lo}, collect)
	case !r.Reverse:
		tree.AscendRange(Entry{Key: lo}, Entry{Key: hi}, collect)
	case hi == nil:
		tree.Descend(collect)
	default:
		tree.DescendLessOrEqual(Entry{Key: hi}, collect)
	}
	return entries, nil
}

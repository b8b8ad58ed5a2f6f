package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jacentio/antler/kv"
)

// Store provides entity storage with relational integrity over a kv.Backend.
type Store struct {
	backend  kv.Backend
	config   Config
	registry *Registry
	logger   *slog.Logger

	// seqMu serializes key allocation (SaveNext, SaveChild).
	seqMu sync.Mutex
}

// New creates a new Store instance with an empty registry.
func New(backend kv.Backend, config Config) *Store {
	return NewWithRegistry(backend, config, NewRegistry())
}

// NewWithRegistry creates a new Store instance with a relation registry.
func NewWithRegistry(backend kv.Backend, config Config, registry *Registry) *Store {
	config.validate()
	if registry == nil {
		registry = NewRegistry()
	}
	return &Store{
		backend:  backend,
		config:   config,
		registry: registry,
		logger:   slog.Default(),
	}
}

// Open opens (or creates) a bbolt database file and returns a Store over it.
func Open(path string, config Config) (*Store, error) {
	backend, err := kv.OpenBolt(path, kv.DefaultBoltOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStorage, path, err)
	}
	return New(backend, config), nil
}

// SetRegistry sets the relation registry consulted on deletion.
func (s *Store) SetRegistry(registry *Registry) {
	s.registry = registry
}

// Registry returns the relation registry.
func (s *Store) Registry() *Registry {
	return s.registry
}

// SetLogger sets the logger. A nil logger uses slog.Default().
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// Backend returns the underlying key-value backend.
func (s *Store) Backend() kv.Backend {
	return s.backend
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.config
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrStorage, err)
	}
	return nil
}

// Stores returns the names of the non-empty entity stores, without the
// auxiliary link and sequence stores.
func (s *Store) Stores(ctx context.Context) ([]string, error) {
	names, err := s.backend.Buckets(ctx)
	if err != nil {
		return nil, storageError("list stores", "", err)
	}
	out := names[:0]
	for _, name := range names {
		if !s.config.IsAuxiliary(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func storageError(op, store string, err error) error {
	if store == "" {
		return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
	}
	return fmt.Errorf("%w: %s %q: %w", ErrStorage, op, store, err)
}

func (s *Store) bucket(ctx context.Context, name string) (kv.Bucket, error) {
	b, err := s.backend.Bucket(ctx, name)
	if err != nil {
		return nil, storageError("open", name, err)
	}
	return b, nil
}

// getRaw reads the encoded value stored under key, or ErrNotFound.
func (s *Store) getRaw(ctx context.Context, store string, key []byte) ([]byte, error) {
	b, err := s.bucket(ctx, store)
	if err != nil {
		return nil, err
	}
	value, err := b.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageError("get", store, err)
	}
	return value, nil
}

func (s *Store) putRaw(ctx context.Context, store string, key, value []byte) error {
	b, err := s.bucket(ctx, store)
	if err != nil {
		return err
	}
	if err := b.Put(ctx, key, value); err != nil {
		return storageError("put", store, err)
	}
	return nil
}

func (s *Store) deleteRaw(ctx context.Context, store string, key []byte) error {
	b, err := s.bucket(ctx, store)
	if err != nil {
		return err
	}
	if err := b.Delete(ctx, key); err != nil {
		return storageError("delete", store, err)
	}
	return nil
}

func (s *Store) existsRaw(ctx context.Context, store string, key []byte) (bool, error) {
	b, err := s.bucket(ctx, store)
	if err != nil {
		return false, err
	}
	ok, err := kv.Exists(ctx, b, key)
	if err != nil {
		return false, storageError("get", store, err)
	}
	return ok, nil
}

// collectRaw reads every entry of store within r.
func (s *Store) collectRaw(ctx context.Context, store string, r kv.Range) ([]kv.Entry, error) {
	b, err := s.bucket(ctx, store)
	if err != nil {
		return nil, err
	}
	var entries []kv.Entry
	for e, err := range b.Scan(ctx, r) {
		if err != nil {
			return nil, storageError("scan", store, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func hexKey(key []byte) string {
	return hex.EncodeToString(key)
}

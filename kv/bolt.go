package kv

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltOptions configures a bbolt-backed store.
type BoltOptions struct {
	// Timeout bounds how long Open waits for the file lock.
	// Default: 1s
	Timeout time.Duration

	// NoSync skips fsync after each commit. Only for tests and bulk loads.
	NoSync bool

	// ReadOnly opens the file without write access.
	ReadOnly bool
}

// DefaultBoltOptions returns the options used by OpenBolt when none are given.
func DefaultBoltOptions() BoltOptions {
	return BoltOptions{Timeout: time.Second}
}

// Bolt is a Backend persisting buckets in a single bbolt file.
// Empty keys are rejected by bbolt.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) the bbolt file at path.
func OpenBolt(path string, opts BoltOptions) (*Bolt, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:  opts.Timeout,
		NoSync:   opts.NoSync,
		ReadOnly: opts.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	return &Bolt{db: db}, nil
}

// Path returns the file backing the store.
func (b *Bolt) Path() string {
	return b.db.Path()
}

// Bucket implements Backend.
func (b *Bolt) Bucket(_ context.Context, name string) (Bucket, error) {
	if name == "" {
		return nil, ErrInvalidBucket
	}
	return &boltBucket{db: b.db, name: []byte(name)}, nil
}

// Buckets implements Backend.
func (b *Bolt) Buckets(_ context.Context) ([]string, error) {
	var names []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, bkt *bolt.Bucket) error {
			if k, _ := bkt.Cursor().First(); k != nil {
				names = append(names, string(name))
			}
			return nil
		})
	})
	if err != nil {
		return nil, mapBoltError(err)
	}
	return names, nil
}

// Close implements Backend.
func (b *Bolt) Close() error {
	return b.db.Close()
}

type boltBucket struct {
	db   *bolt.DB
	name []byte
}

func (b *boltBucket) Name() string { return string(b.name) }

func (b *boltBucket) Get(_ context.Context, key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(b.name)
		if bkt == nil {
			return ErrNotFound
		}
		v := bkt.Get(key)
		if v == nil {
			return ErrNotFound
		}
		// Values are only valid for the life of the transaction.
		value = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return nil, mapBoltError(err)
	}
	return value, nil
}

func (b *boltBucket) Put(_ context.Context, key, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(b.name)
		if err != nil {
			return err
		}
		if value == nil {
			value = []byte{}
		}
		return bkt.Put(key, value)
	})
	return mapBoltError(err)
}

func (b *boltBucket) Delete(_ context.Context, key []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(b.name)
		if bkt == nil {
			return nil
		}
		return bkt.Delete(key)
	})
	return mapBoltError(err)
}

func (b *boltBucket) Count(_ context.Context) (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		if bkt := tx.Bucket(b.name); bkt != nil {
			n = bkt.Stats().KeyN
		}
		return nil
	})
	return n, mapBoltError(err)
}

// Scan implements Bucket. Entries are copied out of a read transaction before
// being yielded, so callers may write to the store while iterating.
func (b *boltBucket) Scan(_ context.Context, r Range) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		entries, err := b.snapshot(r)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		yieldAll(entries, r.Limit, yield)
	}
}

func (b *boltBucket) snapshot(r Range) ([]Entry, error) {
	lo, hi, ok := r.Bounds()
	if !ok {
		return nil, nil
	}

	var entries []Entry
	full := func() bool { return r.Limit > 0 && len(entries) >= r.Limit }
	add := func(k, v []byte) {
		entries = append(entries, Entry{Key: bytes.Clone(k), Value: bytes.Clone(v)})
	}

	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(b.name)
		if bkt == nil {
			return nil
		}
		c := bkt.Cursor()

		if !r.Reverse {
			k, v := c.First()
			if len(lo) > 0 {
				k, v = c.Seek(lo)
			}
			for ; k != nil && within(k, lo, hi) && !full(); k, v = c.Next() {
				add(k, v)
			}
			return nil
		}

		var k, v []byte
		if hi == nil {
			k, v = c.Last()
		} else {
			k, v = c.Seek(hi)
			if k == nil {
				k, v = c.Last()
			} else if bytes.Compare(k, hi) >= 0 {
				k, v = c.Prev()
			}
		}
		for ; k != nil && within(k, lo, hi) && !full(); k, v = c.Prev() {
			add(k, v)
		}
		return nil
	})
	if err != nil {
		return nil, mapBoltError(err)
	}
	return entries, nil
}

func mapBoltError(err error) error {
	if err == bolt.ErrDatabaseNotOpen {
		return ErrClosed
	}
	return err
}

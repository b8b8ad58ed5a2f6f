package kv

import (
	"bytes"
	"context"
	"errors"
	"iter"
)

var (
	// ErrNotFound is returned when a key doesn't exist in a bucket.
	ErrNotFound = errors.New("kv: key not found")

	// ErrClosed is returned when a backend is used after Close.
	ErrClosed = errors.New("kv: backend closed")

	// ErrInvalidBucket is returned for empty bucket names.
	ErrInvalidBucket = errors.New("kv: invalid bucket name")
)

// Backend is an ordered key-value store made of named buckets.
type Backend interface {
	// Bucket returns a handle to the named bucket. Buckets are created lazily
	// on first write; reading a bucket that was never written yields nothing.
	Bucket(ctx context.Context, name string) (Bucket, error)

	// Buckets lists the names of buckets holding at least one key, sorted.
	Buckets(ctx context.Context) ([]string, error)

	// Close releases the backend's resources.
	Close() error
}

// Bucket is one named ordered key-value collection.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Put stores value under key, overwriting any existing value.
	Put(ctx context.Context, key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key []byte) error

	// Scan iterates the entries selected by r in key order
	// (descending when r.Reverse is set).
	Scan(ctx context.Context, r Range) iter.Seq2[Entry, error]

	// Count returns the number of keys in the bucket.
	Count(ctx context.Context) (int, error)
}

// Entry is a key-value pair yielded by Scan.
type Entry struct {
	Key   []byte
	Value []byte
}

// Range selects a contiguous run of keys.
//
// Prefix restricts the scan to keys starting with Prefix. Start (inclusive)
// and End (exclusive) bound it further; nil means unbounded. Limit caps the
// number of yielded entries (0 = no limit).
type Range struct {
	Prefix  []byte
	Start   []byte
	End     []byte
	Reverse bool
	Limit   int
}

// Bounds folds Prefix, Start and End into a single half-open interval
// [lo, hi). A nil hi means no upper bound. ok is false when the interval is
// empty.
func (r Range) Bounds() (lo, hi []byte, ok bool) {
	lo = r.Prefix
	if r.Start != nil && bytes.Compare(r.Start, lo) > 0 {
		lo = r.Start
	}

	hi = PrefixEnd(r.Prefix)
	if r.End != nil && (hi == nil || bytes.Compare(r.End, hi) < 0) {
		hi = r.End
	}

	if hi != nil && bytes.Compare(lo, hi) >= 0 {
		return nil, nil, false
	}
	return lo, hi, true
}

// PrefixEnd returns the smallest key greater than every key starting with
// prefix, or nil when no such key exists (empty or all-0xFF prefix).
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// Prefix is shorthand for a forward scan over keys starting with p.
func Prefix(p []byte) Range {
	return Range{Prefix: p}
}

// Last returns the greatest entry selected by r, or ErrNotFound.
func Last(ctx context.Context, b Bucket, r Range) (Entry, error) {
	r.Reverse = true
	r.Limit = 1
	for e, err := range b.Scan(ctx, r) {
		if err != nil {
			return Entry{}, err
		}
		return e, nil
	}
	return Entry{}, ErrNotFound
}

// Keys collects the keys selected by r.
func Keys(ctx context.Context, b Bucket, r Range) ([][]byte, error) {
	var keys [][]byte
	for e, err := range b.Scan(ctx, r) {
		if err != nil {
			return nil, err
		}
		keys = append(keys, e.Key)
	}
	return keys, nil
}

// Exists reports whether key is present in b.
func Exists(ctx context.Context, b Bucket, key []byte) (bool, error) {
	_, err := b.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// within reports whether key lies in [lo, hi).
func within(key, lo, hi []byte) bool {
	if bytes.Compare(key, lo) < 0 {
		return false
	}
	return hi == nil || bytes.Compare(key, hi) < 0
}

// yieldAll replays a snapshot, honouring the range direction and limit.
func yieldAll(entries []Entry, limit int, yield func(Entry, error) bool) {
	for i, e := range entries {
		if limit > 0 && i >= limit {
			return
		}
		if !yield(e, nil) {
			return
		}
	}
}

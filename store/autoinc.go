package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/jacentio/antler/kv"
)

// NextKey returns the key SaveNext would assign next in c, without using it.
func NextKey[E any, P EntityPtr[E, uint32]](ctx context.Context, c *Collection[E, uint32, P]) (uint32, error) {
	c.store.seqMu.Lock()
	defer c.store.seqMu.Unlock()
	return c.store.nextKey(ctx, c.name)
}

// SaveNext assigns e the next unused key of c and saves it.
//
// The first key of a store is 0. Keys are never reused: the highest key ever
// assigned is recorded, so deleting the last entity does not hand its key out
// again. Returns ErrKeySpaceExhausted once key math.MaxUint32 has been assigned.
func SaveNext[E any, P EntityPtr[E, uint32]](ctx context.Context, c *Collection[E, uint32, P], e P) (uint32, error) {
	s := c.store
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	key, err := s.nextKey(ctx, c.name)
	if err != nil {
		return 0, err
	}
	if err := s.putRaw(ctx, s.config.SequenceStore, []byte(c.name), Uint32Key.Encode(key)); err != nil {
		return 0, err
	}
	e.SetKey(key)
	if err := c.Save(ctx, e); err != nil {
		return 0, err
	}
	return key, nil
}

// nextKey computes max(last key + 1, high-water mark + 1). Callers hold seqMu.
func (s *Store) nextKey(ctx context.Context, store string) (uint32, error) {
	var next uint64

	b, err := s.bucket(ctx, store)
	if err != nil {
		return 0, err
	}
	last, err := kv.Last(ctx, b, kv.Range{})
	switch {
	case err == nil:
		if len(last.Key) != 4 {
			return 0, fmt.Errorf("%w: %q holds a %d byte key, want 4", ErrMalformedKey, store, len(last.Key))
		}
		next = uint64(binary.BigEndian.Uint32(last.Key)) + 1
	case !errors.Is(err, kv.ErrNotFound):
		return 0, storageError("scan", store, err)
	}

	mark, err := s.getRaw(ctx, s.config.SequenceStore, []byte(store))
	switch {
	case err == nil:
		hw, err := Uint32Key.Decode(mark)
		if err != nil {
			return 0, err
		}
		next = max(next, uint64(hw)+1)
	case !errors.Is(err, ErrNotFound):
		return 0, err
	}

	if next > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %q", ErrKeySpaceExhausted, store)
	}
	return uint32(next), nil
}

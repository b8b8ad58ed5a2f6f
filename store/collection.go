package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/jacentio/antler/kv"
)

// Collection binds an entity type to its store.
//
// E is the entity struct, K its key type and P the pointer type implementing
// Entity[K]. The stored key is authoritative: every entity read back has its
// key set from the bytes it was stored under.
type Collection[E any, K any, P EntityPtr[E, K]] struct {
	store *Store
	name  string
	keys  KeyCodec[K]
}

// Bind returns the collection of entity type E in s, with keys encoded by keys.
//
//	users := store.Bind[User](s, store.Uint32Key)
func Bind[E any, K any, P EntityPtr[E, K]](s *Store, keys KeyCodec[K]) *Collection[E, K, P] {
	var zero E
	return &Collection[E, K, P]{
		store: s,
		name:  P(&zero).StoreName(),
		keys:  keys,
	}
}

// Name returns the store name.
func (c *Collection[E, K, P]) Name() string { return c.name }

// Keys returns the key codec.
func (c *Collection[E, K, P]) Keys() KeyCodec[K] { return c.keys }

// Store returns the Store the collection is bound to.
func (c *Collection[E, K, P]) Store() *Store { return c.store }

func (c *Collection[E, K, P]) encodeKey(k K) ([]byte, error) {
	b := c.keys.Encode(k)
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty key in %q", ErrMalformedKey, c.name)
	}
	return b, nil
}

func (c *Collection[E, K, P]) decode(key, value []byte) (P, error) {
	k, err := c.keys.Decode(key)
	if err != nil {
		return nil, err
	}
	var e E
	p := P(&e)
	if err := c.store.config.Codec.Unmarshal(value, p); err != nil {
		return nil, fmt.Errorf("%w: decode %q %s: %w", ErrSerialization, c.name, hexKey(key), err)
	}
	p.SetKey(k)
	return p, nil
}

// Save writes e under its key, overwriting any existing entity.
func (c *Collection[E, K, P]) Save(ctx context.Context, e P) error {
	key, err := c.encodeKey(e.GetKey())
	if err != nil {
		return err
	}
	value, err := c.store.config.Codec.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: encode %q: %w", ErrSerialization, c.name, err)
	}
	return c.store.putRaw(ctx, c.name, key, value)
}

// Get retrieves the entity stored under k.
// Returns ErrNotFound if there is none.
func (c *Collection[E, K, P]) Get(ctx context.Context, k K) (P, error) {
	key, err := c.encodeKey(k)
	if err != nil {
		return nil, err
	}
	value, err := c.store.getRaw(ctx, c.name, key)
	if err != nil {
		return nil, err
	}
	return c.decode(key, value)
}

// Exists reports whether an entity is stored under k, without decoding it.
func (c *Collection[E, K, P]) Exists(ctx context.Context, k K) (bool, error) {
	key, err := c.encodeKey(k)
	if err != nil {
		return false, err
	}
	return c.store.existsRaw(ctx, c.name, key)
}

// Count returns the number of entities in the store.
func (c *Collection[E, K, P]) Count(ctx context.Context) (int, error) {
	b, err := c.store.bucket(ctx, c.name)
	if err != nil {
		return 0, err
	}
	n, err := b.Count(ctx)
	if err != nil {
		return 0, storageError("count", c.name, err)
	}
	return n, nil
}

func (c *Collection[E, K, P]) scan(ctx context.Context, r kv.Range) iter.Seq2[P, error] {
	return func(yield func(P, error) bool) {
		b, err := c.store.bucket(ctx, c.name)
		if err != nil {
			yield(nil, err)
			return
		}
		for entry, err := range b.Scan(ctx, r) {
			if err != nil {
				yield(nil, storageError("scan", c.name, err))
				return
			}
			p, err := c.decode(entry.Key, entry.Value)
			if !yield(p, err) || err != nil {
				return
			}
		}
	}
}

// All iterates over every entity in key order. Each call starts a new pass.
func (c *Collection[E, K, P]) All(ctx context.Context) iter.Seq2[P, error] {
	return c.scan(ctx, kv.Range{})
}

// Filter iterates over the entities satisfying pred, in key order.
func (c *Collection[E, K, P]) Filter(ctx context.Context, pred func(P) bool) iter.Seq2[P, error] {
	return func(yield func(P, error) bool) {
		for p, err := range c.All(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			if pred(p) && !yield(p, nil) {
				return
			}
		}
	}
}

// GetAll returns every entity in key order.
func (c *Collection[E, K, P]) GetAll(ctx context.Context) ([]P, error) {
	return collect(c.All(ctx))
}

// GetWithFilter returns the entities satisfying pred, in key order.
func (c *Collection[E, K, P]) GetWithFilter(ctx context.Context, pred func(P) bool) ([]P, error) {
	return collect(c.Filter(ctx, pred))
}

// GetInRange returns the entities with start <= key < end.
func (c *Collection[E, K, P]) GetInRange(ctx context.Context, start, end K) ([]P, error) {
	return collect(c.scan(ctx, kv.Range{Start: c.keys.Encode(start), End: c.keys.Encode(end)}))
}

// GetFromStart returns up to count entities, skipping the first offset ones.
// A negative offset counts as 0.
func (c *Collection[E, K, P]) GetFromStart(ctx context.Context, offset, count int) ([]P, error) {
	if count <= 0 {
		return nil, nil
	}
	offset = max(offset, 0)
	all, err := collect(c.scan(ctx, kv.Range{Limit: offset + count}))
	if err != nil || len(all) <= offset {
		return nil, err
	}
	return all[offset:], nil
}

// GetFromEnd is GetFromStart counted from the end of the store.
// The result is in ascending key order.
func (c *Collection[E, K, P]) GetFromEnd(ctx context.Context, offset, count int) ([]P, error) {
	if count <= 0 {
		return nil, nil
	}
	offset = max(offset, 0)
	all, err := collect(c.scan(ctx, kv.Range{Reverse: true, Limit: offset + count}))
	if err != nil || len(all) <= offset {
		return nil, err
	}
	page := all[offset:]
	slices.Reverse(page)
	return page, nil
}

// GetEach returns the entities stored under keys, in the order given.
// Keys with no entity are skipped.
func (c *Collection[E, K, P]) GetEach(ctx context.Context, keys ...K) ([]P, error) {
	out := make([]P, 0, len(keys))
	for _, k := range keys {
		p, err := c.Get(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Update applies fn to the entity stored under k and saves the result under
// the same key. Returns ErrNotFound if there is none.
func (c *Collection[E, K, P]) Update(ctx context.Context, k K, fn func(P)) (P, error) {
	p, err := c.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	fn(p)
	p.SetKey(k)
	if err := c.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// FilterUpdate applies fn to every entity satisfying pred and saves them.
// It returns the updated entities.
func (c *Collection[E, K, P]) FilterUpdate(ctx context.Context, pred func(P) bool, fn func(P)) ([]P, error) {
	matches, err := c.GetWithFilter(ctx, pred)
	if err != nil {
		return nil, err
	}
	for _, p := range matches {
		k := p.GetKey()
		fn(p)
		p.SetKey(k)
		if err := c.Save(ctx, p); err != nil {
			return nil, err
		}
	}
	return matches, nil
}

// Remove deletes the entity stored under k, applying the deletion behaviors
// of its relations. See Store.Delete.
func (c *Collection[E, K, P]) Remove(ctx context.Context, k K) error {
	key, err := c.encodeKey(k)
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, c.name, key)
}

// FilterRemove removes every entity satisfying pred and returns the removed
// ones. Entities whose removal is blocked by an Error relation are kept and
// left out of the result.
func (c *Collection[E, K, P]) FilterRemove(ctx context.Context, pred func(P) bool) ([]P, error) {
	matches, err := c.GetWithFilter(ctx, pred)
	if err != nil {
		return nil, err
	}
	removed := matches[:0]
	for _, p := range matches {
		err := c.Remove(ctx, p.GetKey())
		if errors.Is(err, ErrDeletionBlocked) {
			continue
		}
		if err != nil {
			return nil, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}

// Register adds the entity type's declaration to the Store's registry,
// reading its SiblingDeclarer and ChildDeclarer implementations.
// Entity types without relations must still be registered to be removable.
func (c *Collection[E, K, P]) Register() {
	var zero E
	decl := Declaration{Store: c.name}
	if d, ok := any(P(&zero)).(SiblingDeclarer); ok {
		decl.Siblings = d.SiblingStores()
	}
	if d, ok := any(P(&zero)).(ChildDeclarer); ok {
		decl.Children = d.ChildStores()
	}
	c.store.registry.Register(decl)
}

func collect[P any](seq iter.Seq2[P, error]) ([]P, error) {
	var out []P
	for p, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

package store

import (
	"context"
	"errors"
	"iter"
	"math"

	"github.com/jacentio/antler/internal/keyspace"
	"github.com/jacentio/antler/kv"
)

// SaveChild makes c the next child of p: c's key becomes (p's key, n) where n
// follows the highest sequence among p's existing children, or 0 for the
// first child. The new key is returned.
//
// Parent existence is not checked.
func SaveChild[EP any, K any, PP EntityPtr[EP, K], EC any, PC EntityPtr[EC, ChildKey[K]]](
	ctx context.Context,
	ps *Collection[EP, K, PP], p PP,
	cs *Collection[EC, ChildKey[K], PC], c PC,
) (ChildKey[K], error) {
	s := cs.store
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	key, err := nextChildKey(ctx, ps, p, cs)
	if err != nil {
		return ChildKey[K]{}, err
	}
	c.SetKey(key)
	if err := cs.Save(ctx, c); err != nil {
		return ChildKey[K]{}, err
	}
	return key, nil
}

func nextChildKey[EP any, K any, PP EntityPtr[EP, K], EC any, PC EntityPtr[EC, ChildKey[K]]](
	ctx context.Context,
	ps *Collection[EP, K, PP], p PP,
	cs *Collection[EC, ChildKey[K], PC],
) (ChildKey[K], error) {
	parent, err := ps.encodeKey(p.GetKey())
	if err != nil {
		return ChildKey[K]{}, err
	}
	b, err := cs.store.bucket(ctx, cs.name)
	if err != nil {
		return ChildKey[K]{}, err
	}

	key := ChildKey[K]{Parent: p.GetKey()}
	last, err := kv.Last(ctx, b, kv.Prefix(ChildPrefix(parent)))
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return key, nil
	case err != nil:
		return ChildKey[K]{}, storageError("scan", cs.name, err)
	}

	_, seq, err := splitChildKey(last.Key)
	if err != nil {
		return ChildKey[K]{}, err
	}
	if seq == math.MaxUint32 {
		return ChildKey[K]{}, ErrKeySpaceExhausted
	}
	key.Seq = seq + 1
	return key, nil
}

// Children iterates over p's children in cs, in ascending sequence order.
func Children[EP any, K any, PP EntityPtr[EP, K], EC any, PC EntityPtr[EC, ChildKey[K]]](
	ctx context.Context,
	ps *Collection[EP, K, PP], p PP,
	cs *Collection[EC, ChildKey[K], PC],
) iter.Seq2[PC, error] {
	parent, err := ps.encodeKey(p.GetKey())
	if err != nil {
		return func(yield func(PC, error) bool) { yield(nil, err) }
	}
	return cs.scan(ctx, kv.Prefix(ChildPrefix(parent)))
}

// GetChildren returns p's children in cs, in ascending sequence order.
func GetChildren[EP any, K any, PP EntityPtr[EP, K], EC any, PC EntityPtr[EC, ChildKey[K]]](
	ctx context.Context,
	ps *Collection[EP, K, PP], p PP,
	cs *Collection[EC, ChildKey[K], PC],
) ([]PC, error) {
	return collect(Children(ctx, ps, p, cs))
}

// AdoptChild moves c under a new parent p, as p's next child, and returns
// its new key.
//
// Everything stored under c's old key moves with it: its registered sibling
// entities, its declared children (recursively, with their own siblings and
// children) and the free relations of every moved entity. The move is not
// atomic.
func AdoptChild[EP any, K any, PP EntityPtr[EP, K], EC any, PC EntityPtr[EC, ChildKey[K]]](
	ctx context.Context,
	ps *Collection[EP, K, PP], p PP,
	cs *Collection[EC, ChildKey[K], PC], c PC,
) (ChildKey[K], error) {
	s := cs.store
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	oldKey, err := cs.encodeKey(c.GetKey())
	if err != nil {
		return ChildKey[K]{}, err
	}
	if ok, err := s.existsRaw(ctx, cs.name, oldKey); err != nil {
		return ChildKey[K]{}, err
	} else if !ok {
		return ChildKey[K]{}, ErrNotFound
	}

	key, err := nextChildKey(ctx, ps, p, cs)
	if err != nil {
		return ChildKey[K]{}, err
	}
	newKey, err := cs.encodeKey(key)
	if err != nil {
		return ChildKey[K]{}, err
	}

	if err := s.move(ctx, make(map[string]struct{}), node{store: cs.name, key: oldKey}, newKey); err != nil {
		return ChildKey[K]{}, err
	}

	c.SetKey(key)
	if err := cs.Save(ctx, c); err != nil {
		return ChildKey[K]{}, err
	}

	s.logger.Debug("adopted child",
		"store", cs.name,
		"from", hexKey(oldKey),
		"to", hexKey(newKey),
	)
	return key, nil
}

// move re-keys the entity n to newKey together with its siblings, children
// and links.
func (s *Store) move(ctx context.Context, visited map[string]struct{}, n node, newKey []byte) error {
	if _, ok := visited[n.id()]; ok {
		return nil
	}
	visited[n.id()] = struct{}{}

	value, err := s.getRaw(ctx, n.store, n.key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.putRaw(ctx, n.store, newKey, value); err != nil {
		return err
	}

	decl, _ := s.registry.Lookup(n.store)
	for _, edge := range decl.Siblings {
		if err := s.move(ctx, visited, node{store: edge.Store, key: n.key}, newKey); err != nil {
			return err
		}
	}

	oldPrefix, newPrefix := ChildPrefix(n.key), ChildPrefix(newKey)
	for _, edge := range decl.Children {
		b, err := s.bucket(ctx, edge.Store)
		if err != nil {
			return err
		}
		keys, err := kv.Keys(ctx, b, kv.Prefix(oldPrefix))
		if err != nil {
			return storageError("scan", edge.Store, err)
		}
		for _, ck := range keys {
			moved := append(append([]byte(nil), newPrefix...), ck[len(oldPrefix):]...)
			if err := s.move(ctx, visited, node{store: edge.Store, key: ck}, moved); err != nil {
				return err
			}
		}
	}

	if err := s.moveLinks(ctx, n, newKey); err != nil {
		return err
	}
	return s.deleteRaw(ctx, n.store, n.key)
}

// moveLinks re-points both records of every free relation of n to newKey.
func (s *Store) moveLinks(ctx context.Context, n node, newKey []byte) error {
	targets, err := s.linkTargets(ctx, n.store)
	if err != nil {
		return err
	}
	prefix := keyspace.Nest(n.key)
	for _, to := range targets {
		forward := keyspace.LinkStore(s.config.LinkStorePrefix, n.store, to)
		backward := keyspace.LinkStore(s.config.LinkStorePrefix, to, n.store)

		entries, err := s.collectRaw(ctx, forward, kv.Prefix(prefix))
		if err != nil {
			return err
		}
		for _, e := range entries {
			target := e.Key[len(prefix):]
			if err := s.putRaw(ctx, forward, linkKey(newKey, target), e.Value); err != nil {
				return err
			}
			if err := s.deleteRaw(ctx, forward, e.Key); err != nil {
				return err
			}

			value, err := s.getRaw(ctx, backward, linkKey(target, n.key))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := s.putRaw(ctx, backward, linkKey(target, newKey), value); err != nil {
				return err
			}
			if err := s.deleteRaw(ctx, backward, linkKey(target, n.key)); err != nil {
				return err
			}
		}
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/fxamacker/cbor/v2"

	"github.com/jacentio/antler/internal/keyspace"
	"github.com/jacentio/antler/kv"
)

// linkRecord is the value of a free-relation link record. The record stored
// from A to B holds what happens to B when A is deleted (Outgoing) and to A
// when B is deleted (Incoming); the record from B to A holds them swapped.
type linkRecord struct {
	Outgoing DeletionBehavior `cbor:"1,keyasint"`
	Incoming DeletionBehavior `cbor:"2,keyasint"`
	Name     string           `cbor:"3,keyasint,omitempty"`
}

func encodeLink(rec linkRecord) ([]byte, error) {
	b, err := cbor.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: encode link: %w", ErrSerialization, err)
	}
	return b, nil
}

func decodeLink(b []byte) (linkRecord, error) {
	var rec linkRecord
	if err := cbor.Unmarshal(b, &rec); err != nil {
		return linkRecord{}, fmt.Errorf("%w: decode link: %w", ErrSerialization, err)
	}
	return rec, nil
}

func linkKey(from, to []byte) []byte {
	return append(keyspace.Nest(from), to...)
}

// RelationOption configures CreateRelation.
type RelationOption func(*relationOptions)

type relationOptions struct {
	name string
}

// WithName names a free relation, so the same pair of stores can carry
// relations of different meaning.
func WithName(name string) RelationOption {
	return func(o *relationOptions) {
		o.name = name
	}
}

// linkTargets lists the stores that store has link records towards.
func (s *Store) linkTargets(ctx context.Context, store string) ([]string, error) {
	prefix := keyspace.Nest([]byte(store))
	entries, err := s.collectRaw(ctx, s.config.LinkIndexStore, kv.Prefix(prefix))
	if err != nil {
		return nil, err
	}
	targets := make([]string, 0, len(entries))
	for _, e := range entries {
		targets = append(targets, string(e.Key[len(prefix):]))
	}
	return targets, nil
}

// link writes both records of a free relation and indexes both link stores.
func (s *Store) link(ctx context.Context, from node, to node, fwd, bwd DeletionBehavior, name string) error {
	forward, err := encodeLink(linkRecord{Outgoing: fwd, Incoming: bwd, Name: name})
	if err != nil {
		return err
	}
	backward, err := encodeLink(linkRecord{Outgoing: bwd, Incoming: fwd, Name: name})
	if err != nil {
		return err
	}

	prefix := s.config.LinkStorePrefix
	if err := s.putRaw(ctx, s.config.LinkIndexStore, keyspace.LinkIndexKey(from.store, to.store), []byte{}); err != nil {
		return err
	}
	if err := s.putRaw(ctx, s.config.LinkIndexStore, keyspace.LinkIndexKey(to.store, from.store), []byte{}); err != nil {
		return err
	}
	if err := s.putRaw(ctx, keyspace.LinkStore(prefix, from.store, to.store), linkKey(from.key, to.key), forward); err != nil {
		return err
	}
	return s.putRaw(ctx, keyspace.LinkStore(prefix, to.store, from.store), linkKey(to.key, from.key), backward)
}

// unlink deletes both records of a free relation.
func (s *Store) unlink(ctx context.Context, from node, to node) error {
	prefix := s.config.LinkStorePrefix
	if err := s.deleteRaw(ctx, keyspace.LinkStore(prefix, from.store, to.store), linkKey(from.key, to.key)); err != nil {
		return err
	}
	return s.deleteRaw(ctx, keyspace.LinkStore(prefix, to.store, from.store), linkKey(to.key, from.key))
}

// related lists the links from an entity to the entities of the "to" store.
func (s *Store) related(ctx context.Context, from node, to string) ([][]byte, []linkRecord, error) {
	bucket := keyspace.LinkStore(s.config.LinkStorePrefix, from.store, to)
	prefix := keyspace.Nest(from.key)
	entries, err := s.collectRaw(ctx, bucket, kv.Prefix(prefix))
	if err != nil {
		return nil, nil, err
	}
	keys := make([][]byte, 0, len(entries))
	records := make([]linkRecord, 0, len(entries))
	for _, e := range entries {
		rec, err := decodeLink(e.Value)
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, e.Key[len(prefix):])
		records = append(records, rec)
	}
	return keys, records, nil
}

func entityNode[E any, K any, P EntityPtr[E, K]](c *Collection[E, K, P], e P) (node, error) {
	key, err := c.encodeKey(e.GetKey())
	if err != nil {
		return node{}, err
	}
	return node{store: c.name, key: key}, nil
}

// CreateRelation links a and b with a free (many-to-many) relation.
//
// fwd applies to b when a is deleted, bwd applies to a when b is deleted.
// Both link records are written, without atomicity. Creating an existing
// relation again overwrites its behaviors and name.
func CreateRelation[EA any, KA any, PA EntityPtr[EA, KA], EB any, KB any, PB EntityPtr[EB, KB]](
	ctx context.Context,
	as *Collection[EA, KA, PA], a PA,
	bs *Collection[EB, KB, PB], b PB,
	fwd, bwd DeletionBehavior,
	opts ...RelationOption,
) error {
	var o relationOptions
	for _, opt := range opts {
		opt(&o)
	}
	from, err := entityNode(as, a)
	if err != nil {
		return err
	}
	to, err := entityNode(bs, b)
	if err != nil {
		return err
	}
	return as.store.link(ctx, from, to, fwd, bwd, o.name)
}

// RemoveRelation deletes the free relation between a and b, leaving both entities in place.
func RemoveRelation[EA any, KA any, PA EntityPtr[EA, KA], EB any, KB any, PB EntityPtr[EB, KB]](
	ctx context.Context,
	as *Collection[EA, KA, PA], a PA,
	bs *Collection[EB, KB, PB], b PB,
) error {
	return RemoveRelationWithKey(ctx, as, a, bs, b.GetKey())
}

// RemoveRelationWithKey is RemoveRelation for a related entity known only by its key.
func RemoveRelationWithKey[EA any, KA any, PA EntityPtr[EA, KA], EB any, KB any, PB EntityPtr[EB, KB]](
	ctx context.Context,
	as *Collection[EA, KA, PA], a PA,
	bs *Collection[EB, KB, PB], key KB,
) error {
	from, err := entityNode(as, a)
	if err != nil {
		return err
	}
	bkey, err := bs.encodeKey(key)
	if err != nil {
		return err
	}
	return as.store.unlink(ctx, from, node{store: bs.name, key: bkey})
}

// GetRelated returns the entities of bs related to a, in key order.
// Links whose target no longer exists are skipped.
func GetRelated[EA any, KA any, PA EntityPtr[EA, KA], EB any, KB any, PB EntityPtr[EB, KB]](
	ctx context.Context,
	as *Collection[EA, KA, PA], a PA,
	bs *Collection[EB, KB, PB],
) ([]PB, error) {
	return getRelated(ctx, as, a, bs, func(linkRecord) bool { return true })
}

// GetRelatedWithName returns the entities of bs related to a by relations named name.
func GetRelatedWithName[EA any, KA any, PA EntityPtr[EA, KA], EB any, KB any, PB EntityPtr[EB, KB]](
	ctx context.Context,
	as *Collection[EA, KA, PA], a PA,
	bs *Collection[EB, KB, PB],
	name string,
) ([]PB, error) {
	return getRelated(ctx, as, a, bs, func(rec linkRecord) bool { return rec.Name == name })
}

// GetSingleRelated returns the first entity of bs related to a.
// Returns ErrNotFound if there is none.
func GetSingleRelated[EA any, KA any, PA EntityPtr[EA, KA], EB any, KB any, PB EntityPtr[EB, KB]](
	ctx context.Context,
	as *Collection[EA, KA, PA], a PA,
	bs *Collection[EB, KB, PB],
) (PB, error) {
	related, err := GetRelated(ctx, as, a, bs)
	if err != nil {
		return nil, err
	}
	if len(related) == 0 {
		return nil, ErrNotFound
	}
	return related[0], nil
}

// GetSingleRelatedWithName returns the first entity of bs related to a by a
// relation named name. Returns ErrNotFound if there is none.
func GetSingleRelatedWithName[EA any, KA any, PA EntityPtr[EA, KA], EB any, KB any, PB EntityPtr[EB, KB]](
	ctx context.Context,
	as *Collection[EA, KA, PA], a PA,
	bs *Collection[EB, KB, PB],
	name string,
) (PB, error) {
	related, err := GetRelatedWithName(ctx, as, a, bs, name)
	if err != nil {
		return nil, err
	}
	if len(related) == 0 {
		return nil, ErrNotFound
	}
	return related[0], nil
}

func getRelated[EA any, KA any, PA EntityPtr[EA, KA], EB any, KB any, PB EntityPtr[EB, KB]](
	ctx context.Context,
	as *Collection[EA, KA, PA], a PA,
	bs *Collection[EB, KB, PB],
	keep func(linkRecord) bool,
) ([]PB, error) {
	from, err := entityNode(as, a)
	if err != nil {
		return nil, err
	}
	keys, records, err := as.store.related(ctx, from, bs.name)
	if err != nil {
		return nil, err
	}
	out := make([]PB, 0, len(keys))
	for i, key := range keys {
		if !keep(records[i]) {
			continue
		}
		value, err := bs.store.getRaw(ctx, bs.name, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		p, err := bs.decode(key, value)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// IsRelatedTo reports whether a free relation links a to b.
func IsRelatedTo[EA any, KA any, PA EntityPtr[EA, KA], EB any, KB any, PB EntityPtr[EB, KB]](
	ctx context.Context,
	as *Collection[EA, KA, PA], a PA,
	bs *Collection[EB, KB, PB], b PB,
) (bool, error) {
	return isRelatedTo(ctx, as, a, bs, b, func(linkRecord) bool { return true })
}

// IsRelatedToWithName reports whether a relation named name links a to b.
func IsRelatedToWithName[EA any, KA any, PA EntityPtr[EA, KA], EB any, KB any, PB EntityPtr[EB, KB]](
	ctx context.Context,
	as *Collection[EA, KA, PA], a PA,
	bs *Collection[EB, KB, PB], b PB,
	name string,
) (bool, error) {
	return isRelatedTo(ctx, as, a, bs, b, func(rec linkRecord) bool { return rec.Name == name })
}

// IsRelatedToWithAnyName reports whether a relation with one of names links a to b.
func IsRelatedToWithAnyName[EA any, KA any, PA EntityPtr[EA, KA], EB any, KB any, PB EntityPtr[EB, KB]](
	ctx context.Context,
	as *Collection[EA, KA, PA], a PA,
	bs *Collection[EB, KB, PB], b PB,
	names ...string,
) (bool, error) {
	return isRelatedTo(ctx, as, a, bs, b, func(rec linkRecord) bool { return slices.Contains(names, rec.Name) })
}

func isRelatedTo[EA any, KA any, PA EntityPtr[EA, KA], EB any, KB any, PB EntityPtr[EB, KB]](
	ctx context.Context,
	as *Collection[EA, KA, PA], a PA,
	bs *Collection[EB, KB, PB], b PB,
	keep func(linkRecord) bool,
) (bool, error) {
	from, err := entityNode(as, a)
	if err != nil {
		return false, err
	}
	to, err := entityNode(bs, b)
	if err != nil {
		return false, err
	}
	value, err := as.store.getRaw(ctx, keyspace.LinkStore(as.store.config.LinkStorePrefix, from.store, to.store), linkKey(from.key, to.key))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	rec, err := decodeLink(value)
	if err != nil {
		return false, err
	}
	return keep(rec), nil
}

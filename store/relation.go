package store

import (
	"context"
	"fmt"

	"github.com/jacentio/antler/internal/keyspace"
	"github.com/jacentio/antler/kv"
)

// node identifies one entity: its store and encoded key.
type node struct {
	store string
	key   []byte
}

func (n node) id() string {
	return string(keyspace.Nest([]byte(n.store))) + string(n.key)
}

func (n node) String() string {
	return fmt.Sprintf("%s/%s", n.store, hexKey(n.key))
}

// guard is an Error edge met while planning: from cannot be deleted unless
// to is deleted by the same call.
type guard struct {
	from, to node
	kind     string
}

// deletePlan collects everything one Delete call removes.
type deletePlan struct {
	scheduled map[string]struct{}
	entities  []node // post-order: dependents before the entities they depend on
	links     []node
	linkSeen  map[string]struct{}
	guards    []guard
}

func newDeletePlan() *deletePlan {
	return &deletePlan{
		scheduled: make(map[string]struct{}),
		linkSeen:  make(map[string]struct{}),
	}
}

func (p *deletePlan) has(n node) bool {
	_, ok := p.scheduled[n.id()]
	return ok
}

func (p *deletePlan) dropLink(bucket string, key []byte) {
	n := node{store: bucket, key: key}
	if _, ok := p.linkSeen[n.id()]; ok {
		return
	}
	p.linkSeen[n.id()] = struct{}{}
	p.links = append(p.links, n)
}

// blocked returns the first Error edge whose counterpart survives the plan.
func (p *deletePlan) blocked() error {
	for _, g := range p.guards {
		if !p.has(g.to) {
			return fmt.Errorf("%w: %s has a live %s %s", ErrDeletionBlocked, g.from, g.kind, g.to)
		}
	}
	return nil
}

// Delete removes the entity stored under key in store, applying the deletion
// behaviors declared for its siblings, children and free relations.
//
// Delete first plans the whole operation without writing anything:
// Cascade edges are followed recursively, Error edges are checked once the
// plan is complete and block the deletion unless their counterpart is itself
// scheduled for deletion, BreakLink edges are left alone. Free-relation link
// records of deleted entities are dropped. Each entity is planned at most
// once, so cascade cycles terminate.
//
// A failed plan (ErrUnregisteredEntity, ErrDeletionBlocked, storage errors)
// mutates nothing. Applying the plan is not atomic: a storage failure midway
// leaves the deletions already applied in place. Dependents are deleted
// before the entities they depend on, and the requested entity last.
//
// Deleting a key that holds no entity is not an error, its dependents are
// still processed.
func (s *Store) Delete(ctx context.Context, store string, key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key in %q", ErrMalformedKey, store)
	}

	root := node{store: store, key: key}
	plan := newDeletePlan()
	if err := s.plan(ctx, plan, root); err != nil {
		return err
	}
	if err := plan.blocked(); err != nil {
		s.logger.Debug("deletion blocked",
			"store", store,
			"key", hexKey(key),
			"error", err,
		)
		return err
	}

	cascaded := len(plan.entities) - 1
	if cascaded > 0 {
		s.logger.Debug("planned cascade",
			"store", store,
			"key", hexKey(key),
			"cascaded", cascaded,
			"links", len(plan.links),
		)
	}

	if err := s.apply(ctx, plan); err != nil {
		return err
	}

	s.logger.Info("deleted entity",
		"store", store,
		"key", hexKey(key),
		"cascaded", cascaded,
	)
	return nil
}

// Cleanup applies the deletion behaviors of an entity that was removed
// without going through Delete, for example by a DynamoDB TTL expiry.
//
// If key holds an entity again, Cleanup changes nothing and reports false:
// the dependents now belong to the new entity.
func (s *Store) Cleanup(ctx context.Context, store string, key []byte) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("%w: empty key in %q", ErrMalformedKey, store)
	}
	exists, err := s.existsRaw(ctx, store, key)
	if err != nil {
		return false, err
	}
	if exists {
		s.logger.Debug("skipping cleanup of live entity",
			"store", store,
			"key", hexKey(key),
		)
		return false, nil
	}
	return true, s.Delete(ctx, store, key)
}

func (s *Store) plan(ctx context.Context, p *deletePlan, n node) error {
	if p.has(n) {
		return nil
	}
	decl, ok := s.registry.Lookup(n.store)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnregisteredEntity, n.store)
	}
	p.scheduled[n.id()] = struct{}{}

	for _, edge := range decl.Siblings {
		partner := node{store: edge.Store, key: n.key}
		exists, err := s.existsRaw(ctx, partner.store, partner.key)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := s.follow(ctx, p, n, partner, edge.OnDelete, "sibling"); err != nil {
			return err
		}
	}

	for _, edge := range decl.Children {
		if edge.OnDelete == BehaviorBreakLink {
			continue
		}
		b, err := s.bucket(ctx, edge.Store)
		if err != nil {
			return err
		}
		keys, err := kv.Keys(ctx, b, kv.Prefix(ChildPrefix(n.key)))
		if err != nil {
			return storageError("scan", edge.Store, err)
		}
		for _, ck := range keys {
			child := node{store: edge.Store, key: ck}
			if err := s.follow(ctx, p, n, child, edge.OnDelete, "child"); err != nil {
				return err
			}
		}
	}

	if err := s.planLinks(ctx, p, n); err != nil {
		return err
	}

	p.entities = append(p.entities, n)
	return nil
}

// planLinks handles the free relations of n: both link records of every
// relation are dropped, and the record's outgoing behavior is applied to the
// related entity. An Error link blocks whether or not its target was ever
// saved, since relations are not checked at write time.
func (s *Store) planLinks(ctx context.Context, p *deletePlan, n node) error {
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
			rec, err := decodeLink(e.Value)
			if err != nil {
				return fmt.Errorf("link %q %s: %w", forward, hexKey(e.Key), err)
			}
			target := node{store: to, key: e.Key[len(prefix):]}
			p.dropLink(forward, e.Key)
			p.dropLink(backward, linkKey(target.key, n.key))

			if err := s.follow(ctx, p, n, target, rec.Outgoing, "relation"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) follow(ctx context.Context, p *deletePlan, from, to node, behavior DeletionBehavior, kind string) error {
	switch behavior {
	case BehaviorCascade:
		return s.plan(ctx, p, to)
	case BehaviorError:
		p.guards = append(p.guards, guard{from: from, to: to, kind: kind})
	}
	return nil
}

func (s *Store) apply(ctx context.Context, p *deletePlan) error {
	for _, l := range p.links {
		if err := s.deleteRaw(ctx, l.store, l.key); err != nil {
			return err
		}
	}
	for _, n := range p.entities {
		if err := s.deleteRaw(ctx, n.store, n.key); err != nil {
			return err
		}
	}
	return nil
}

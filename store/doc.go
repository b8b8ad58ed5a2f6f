// Package store provides entity storage with relational integrity over an
// ordered key-value backend.
//
// Antler is designed for applications that keep independent record types in
// a plain key-value store (bbolt, memory, DynamoDB) but still need
// relational guarantees between them: one-to-one, one-to-many and
// many-to-many relations, with a declared behavior when one side is deleted.
//
// # Key Features
//
//   - Order-preserving key encoding, including composite child keys
//   - Sibling (one-to-one), child (one-to-many) and free (many-to-many) relations
//   - Cascade, Error and BreakLink deletion behaviors, checked before any write
//   - Auto-increment keys that are never reused
//   - JSON export and import per store
//
// # Entities
//
// An entity is a struct whose pointer implements [Entity]:
//
//	type Entity[K any] interface {
//	    StoreName() string
//	    GetKey() K
//	    SetKey(K)
//	}
//
// Entities owning relations implement [SiblingDeclarer] and/or [ChildDeclarer]:
//
//	func (*User) SiblingStores() []store.Edge {
//	    return []store.Edge{{Store: "profiles", OnDelete: store.BehaviorCascade}}
//	}
//
//	func (*User) ChildStores() []store.Edge {
//	    return []store.Edge{{Store: "sessions", OnDelete: store.BehaviorCascade}}
//	}
//
// # Collections
//
// [Bind] ties an entity type to a [Store] and a [KeyCodec]:
//
//	s := store.New(kv.NewMemory(), store.DefaultConfig())
//	users := store.Bind[User](s, store.Uint32Key)
//	sessions := store.Bind[Session](s, store.Composite(store.Uint32Key))
//	users.Register()
//	sessions.Register()
//
//	id, err := store.SaveNext(ctx, users, &User{Name: "ada"})
//	key, err := store.SaveChild(ctx, users, u, sessions, &Session{})
//	err = users.Remove(ctx, id) // cascades to the user's sessions
//
// Every store that can be deleted from, including stores reached by a
// cascade, must be registered.
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - entity doesn't exist
//   - [ErrStorage] - the backend failed
//   - [ErrSerialization] - a value could not be encoded or decoded
//   - [ErrMalformedKey] - key bytes do not match the key type
//   - [ErrUnregisteredEntity] - deletion from an unregistered store
//   - [ErrDeletionBlocked] - an Error relation still has a live counterpart
//   - [ErrKeySpaceExhausted] - no auto-increment key left
package store

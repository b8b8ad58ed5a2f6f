package store

// Entity is the base interface for all storable types.
// It is implemented by a pointer to the entity struct.
type Entity[K any] interface {
	// StoreName returns the name of the store holding this entity type.
	// It must not depend on the receiver's fields.
	StoreName() string

	// GetKey returns the entity's key.
	GetKey() K

	// SetKey overwrites the entity's key.
	SetKey(key K)
}

// EntityPtr constrains P to be *E implementing Entity[K].
type EntityPtr[E any, K any] interface {
	*E
	Entity[K]
}

// SiblingDeclarer is implemented by entities that share their key with
// entities of other stores (one-to-one relations).
type SiblingDeclarer interface {
	// SiblingStores returns the partner stores and what happens to a partner
	// when this entity is deleted.
	SiblingStores() []Edge
}

// ChildDeclarer is implemented by entities that own children in other stores
// (one-to-many relations).
type ChildDeclarer interface {
	// ChildStores returns the child stores and what happens to the children
	// when this entity is deleted.
	ChildStores() []Edge
}

package store

import "errors"

var (
	// ErrStorage is returned when the underlying key-value store fails.
	ErrStorage = errors.New("antler: storage error")

	// ErrSerialization is returned when an entity cannot be encoded, or when stored
	// bytes cannot be decoded into the requested type.
	ErrSerialization = errors.New("antler: serialization error")

	// ErrMalformedKey is returned when key bytes are inconsistent with the key type.
	ErrMalformedKey = errors.New("antler: malformed key")

	// ErrUnregisteredEntity is returned when deleting from a store that was never registered.
	ErrUnregisteredEntity = errors.New("antler: unregistered entity")

	// ErrDeletionBlocked is returned when an Error edge still has a live counterpart.
	ErrDeletionBlocked = errors.New("antler: deletion blocked")

	// ErrNotFound is returned when an entity doesn't exist.
	ErrNotFound = errors.New("antler: entity not found")

	// ErrKeySpaceExhausted is returned when no auto-increment key is left.
	ErrKeySpaceExhausted = errors.New("antler: key space exhausted")
)

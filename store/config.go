package store

import "github.com/jacentio/antler/internal/keyspace"

// Config holds configuration for the Store.
type Config struct {
	// LinkStorePrefix prefixes the auxiliary stores holding free-relation link
	// records. A link store is named "<prefix>:<from>><to>".
	// Default: "__rel"
	LinkStorePrefix string

	// LinkIndexStore records which link stores exist for each entity store, so
	// deletion can find outgoing free relations after a restart.
	// Default: "__rel_index"
	LinkIndexStore string

	// SequenceStore holds the auto-increment high-water mark per store.
	// Default: "__seq"
	SequenceStore string

	// Codec encodes entity values. Link records always use CBOR.
	// Default: CBOR
	Codec Codec
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		LinkStorePrefix: "__rel",
		LinkIndexStore:  "__rel_index",
		SequenceStore:   "__seq",
		Codec:           CBOR,
	}
}

// validate fills in defaults for unset values.
func (c *Config) validate() {
	if c.LinkStorePrefix == "" {
		c.LinkStorePrefix = "__rel"
	}
	if c.LinkIndexStore == "" {
		c.LinkIndexStore = "__rel_index"
	}
	if c.SequenceStore == "" {
		c.SequenceStore = "__seq"
	}
	if c.Codec.Marshal == nil || c.Codec.Unmarshal == nil {
		c.Codec = CBOR
	}
}

// IsAuxiliary reports whether name is one of the stores holding link records,
// the link index or auto-increment marks, rather than entities.
func (c Config) IsAuxiliary(name string) bool {
	return name == c.LinkIndexStore || name == c.SequenceStore ||
		keyspace.IsLinkStore(c.LinkStorePrefix, name)
}

package store

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jacentio/antler/internal/keyspace"
)

// KeyCodec converts keys of type K to order-preserving bytes and back.
//
// For any two keys a < b in the natural order of K, Encode(a) sorts before
// Encode(b) bytewise. Decode is the exact inverse of Encode and fails with
// ErrMalformedKey on inconsistent input.
type KeyCodec[K any] interface {
	Encode(key K) []byte
	Decode(b []byte) (K, error)
}

// Scalar key codecs.
var (
	Uint32Key KeyCodec[uint32]    = uint32Codec{}
	Uint64Key KeyCodec[uint64]    = uint64Codec{}
	Int32Key  KeyCodec[int32]     = int32Codec{}
	Int64Key  KeyCodec[int64]     = int64Codec{}
	StringKey KeyCodec[string]    = stringCodec{}
	BytesKey  KeyCodec[[]byte]    = bytesCodec{}
	UUIDKey   KeyCodec[uuid.UUID] = uuidCodec{}
)

func malformed(b []byte, want string) error {
	return fmt.Errorf("%w: %d bytes, want %s", ErrMalformedKey, len(b), want)
}

type uint32Codec struct{}

func (uint32Codec) Encode(k uint32) []byte { return binary.BigEndian.AppendUint32(nil, k) }

func (uint32Codec) Decode(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, malformed(b, "4")
	}
	return binary.BigEndian.Uint32(b), nil
}

type uint64Codec struct{}

func (uint64Codec) Encode(k uint64) []byte { return binary.BigEndian.AppendUint64(nil, k) }

func (uint64Codec) Decode(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, malformed(b, "8")
	}
	return binary.BigEndian.Uint64(b), nil
}

// Signed integers flip the sign bit so negative values sort first.

type int32Codec struct{}

func (int32Codec) Encode(k int32) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(k)^(1<<31))
}

func (int32Codec) Decode(b []byte) (int32, error) {
	if len(b) != 4 {
		return 0, malformed(b, "4")
	}
	return int32(binary.BigEndian.Uint32(b) ^ (1 << 31)), nil
}

type int64Codec struct{}

func (int64Codec) Encode(k int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(k)^(1<<63))
}

func (int64Codec) Decode(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, malformed(b, "8")
	}
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63)), nil
}

type stringCodec struct{}

func (stringCodec) Encode(k string) []byte { return []byte(k) }

func (stringCodec) Decode(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrMalformedKey)
	}
	return string(b), nil
}

type bytesCodec struct{}

func (bytesCodec) Encode(k []byte) []byte { return append([]byte(nil), k...) }

func (bytesCodec) Decode(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

type uuidCodec struct{}

func (uuidCodec) Encode(k uuid.UUID) []byte { return append([]byte(nil), k[:]...) }

func (uuidCodec) Decode(b []byte) (uuid.UUID, error) {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return uuid.Nil, malformed(b, "16")
	}
	return id, nil
}

// ChildKey is the key of a child entity: its parent's key followed by a
// sequence number local to that parent.
type ChildKey[K any] struct {
	Parent K
	Seq    uint32
}

// Composite returns the codec for child keys whose parent part is encoded by parent.
//
// The parent bytes are nested (see ChildPrefix) so every child of one parent
// lives in one contiguous range, ordered by Seq.
func Composite[K any](parent KeyCodec[K]) KeyCodec[ChildKey[K]] {
	return compositeCodec[K]{parent: parent}
}

type compositeCodec[K any] struct {
	parent KeyCodec[K]
}

func (c compositeCodec[K]) Encode(k ChildKey[K]) []byte {
	return binary.BigEndian.AppendUint32(ChildPrefix(c.parent.Encode(k.Parent)), k.Seq)
}

func (c compositeCodec[K]) Decode(b []byte) (ChildKey[K], error) {
	head, rest, err := keyspace.Unnest(b)
	if err != nil {
		return ChildKey[K]{}, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	if len(rest) != 4 {
		return ChildKey[K]{}, malformed(rest, "4 sequence")
	}
	parent, err := c.parent.Decode(head)
	if err != nil {
		return ChildKey[K]{}, err
	}
	return ChildKey[K]{Parent: parent, Seq: binary.BigEndian.Uint32(rest)}, nil
}

// ChildPrefix returns the key prefix shared by every child of the parent
// whose encoded key is parentKey.
func ChildPrefix(parentKey []byte) []byte {
	return keyspace.Nest(parentKey)
}

// splitChildKey separates an encoded child key into its parent bytes and sequence.
func splitChildKey(b []byte) (parent []byte, seq uint32, err error) {
	parent, rest, err := keyspace.Unnest(b)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	if len(rest) != 4 {
		return nil, 0, malformed(rest, "4 sequence")
	}
	return parent, binary.BigEndian.Uint32(rest), nil
}

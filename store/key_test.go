package store_test

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/antler/store"
)

// assertOrdered checks that encoding keys, given in ascending order, yields
// ascending bytes, and that every key decodes back to itself.
func assertOrdered[K any](t *testing.T, codec store.KeyCodec[K], keys []K) {
	t.Helper()
	encoded := make([][]byte, len(keys))
	for i, k := range keys {
		encoded[i] = codec.Encode(k)
		decoded, err := codec.Decode(encoded[i])
		require.NoError(t, err)
		assert.Equal(t, k, decoded)
	}
	assert.True(t, sort.SliceIsSorted(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	}), "encoding does not preserve order")
	for i := 1; i < len(encoded); i++ {
		assert.Negative(t, bytes.Compare(encoded[i-1], encoded[i]), "keys %v and %v", keys[i-1], keys[i])
	}
}

func TestKeyCodec_Order(t *testing.T) {
	t.Run("uint32", func(t *testing.T) {
		assertOrdered(t, store.Uint32Key, []uint32{0, 1, 255, 256, 65535, math.MaxUint32})
	})
	t.Run("uint64", func(t *testing.T) {
		assertOrdered(t, store.Uint64Key, []uint64{0, 1, 1 << 32, math.MaxUint64})
	})
	t.Run("int32", func(t *testing.T) {
		assertOrdered(t, store.Int32Key, []int32{math.MinInt32, -256, -1, 0, 1, 256, math.MaxInt32})
	})
	t.Run("int64", func(t *testing.T) {
		assertOrdered(t, store.Int64Key, []int64{math.MinInt64, -1, 0, 1, math.MaxInt64})
	})
	t.Run("string", func(t *testing.T) {
		assertOrdered(t, store.StringKey, []string{"", "a", "ab", "b", "é"})
	})
	t.Run("bytes", func(t *testing.T) {
		assertOrdered(t, store.BytesKey, [][]byte{{}, {0}, {0, 0}, {1}, {0xff}})
	})
	t.Run("uuid", func(t *testing.T) {
		assertOrdered(t, store.UUIDKey, []uuid.UUID{
			uuid.MustParse("00000000-0000-0000-0000-000000000001"),
			uuid.MustParse("7f000000-0000-0000-0000-000000000000"),
			uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff"),
		})
	})
	t.Run("composite", func(t *testing.T) {
		assertOrdered(t, store.Composite(store.StringKey), []store.ChildKey[string]{
			{Parent: "", Seq: 7},
			{Parent: "a", Seq: 0},
			{Parent: "a", Seq: 1},
			{Parent: "a", Seq: math.MaxUint32},
			{Parent: "a\x00", Seq: 0},
			{Parent: "ab", Seq: 0},
			{Parent: "b", Seq: 0},
		})
	})
	t.Run("nested composite", func(t *testing.T) {
		codec := store.Composite(store.Composite(store.Int32Key))
		assertOrdered(t, codec, []store.ChildKey[store.ChildKey[int32]]{
			{Parent: store.ChildKey[int32]{Parent: -1, Seq: 3}, Seq: 0},
			{Parent: store.ChildKey[int32]{Parent: 0, Seq: 0}, Seq: 9},
			{Parent: store.ChildKey[int32]{Parent: 0, Seq: 1}, Seq: 0},
		})
	})
}

func TestChildPrefix_BoundsExactlyOneParent(t *testing.T) {
	codec := store.Composite(store.StringKey)
	prefix := store.ChildPrefix(store.StringKey.Encode("id1"))

	assert.True(t, bytes.HasPrefix(codec.Encode(store.ChildKey[string]{Parent: "id1", Seq: 4}), prefix))
	assert.False(t, bytes.HasPrefix(codec.Encode(store.ChildKey[string]{Parent: "id10", Seq: 4}), prefix))
	assert.False(t, bytes.HasPrefix(codec.Encode(store.ChildKey[string]{Parent: "id", Seq: 4}), prefix))
}

func TestKeyCodec_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		decode func([]byte) error
		input  []byte
	}{
		{"uint32 short", func(b []byte) error { _, err := store.Uint32Key.Decode(b); return err }, []byte{1, 2, 3}},
		{"uint32 long", func(b []byte) error { _, err := store.Uint32Key.Decode(b); return err }, []byte{1, 2, 3, 4, 5}},
		{"uint64 short", func(b []byte) error { _, err := store.Uint64Key.Decode(b); return err }, []byte{1}},
		{"int32 empty", func(b []byte) error { _, err := store.Int32Key.Decode(b); return err }, nil},
		{"int64 short", func(b []byte) error { _, err := store.Int64Key.Decode(b); return err }, make([]byte, 7)},
		{"string invalid utf8", func(b []byte) error { _, err := store.StringKey.Decode(b); return err }, []byte{0xff, 0xfe}},
		{"uuid short", func(b []byte) error { _, err := store.UUIDKey.Decode(b); return err }, make([]byte, 15)},
		{"composite truncated", func(b []byte) error {
			_, err := store.Composite(store.Uint32Key).Decode(b)
			return err
		}, []byte{0, 0, 0, 1}},
		{"composite bad sequence", func(b []byte) error {
			_, err := store.Composite(store.StringKey).Decode(b)
			return err
		}, []byte{'a', 0, 1, 0, 0}},
		{"composite bad parent", func(b []byte) error {
			_, err := store.Composite(store.Uint32Key).Decode(b)
			return err
		}, []byte{1, 0, 1, 0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.decode(tt.input), store.ErrMalformedKey)
		})
	}
}

// Package keyspace provides byte-level key layout helpers shared by the
// relation engine and the storage backends.
package keyspace

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	escapeByte     = 0x00
	escapedZero    = 0xFF
	terminatorByte = 0x01
)

// ErrMalformed is returned when a nested key segment cannot be decoded.
var ErrMalformed = errors.New("keyspace: malformed nested segment")

// Nest encodes b as a self-delimiting segment: every 0x00 becomes 0x00 0xFF and
// the segment ends with 0x00 0x01.
//
// The encoding preserves byte order and no nested segment is a prefix of
// another one, so Nest(parent) bounds exactly the keys built on parent.
func Nest(b []byte) []byte {
	out := make([]byte, 0, len(b)+2+bytes.Count(b, []byte{escapeByte}))
	for _, c := range b {
		if c == escapeByte {
			out = append(out, escapeByte, escapedZero)
			continue
		}
		out = append(out, c)
	}
	return append(out, escapeByte, terminatorByte)
}

// Unnest splits a key produced by Nest(head) ++ rest.
func Unnest(b []byte) (head, rest []byte, err error) {
	head = make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c != escapeByte {
			head = append(head, c)
			continue
		}
		if i+1 >= len(b) {
			return nil, nil, fmt.Errorf("%w: truncated escape at offset %d", ErrMalformed, i)
		}
		switch b[i+1] {
		case escapedZero:
			head = append(head, escapeByte)
			i++
		case terminatorByte:
			return head, b[i+2:], nil
		default:
			return nil, nil, fmt.Errorf("%w: invalid escape 0x%02x at offset %d", ErrMalformed, b[i+1], i)
		}
	}
	return nil, nil, fmt.Errorf("%w: missing terminator", ErrMalformed)
}

// storeNameEscaper escapes the separator of link store names.
var storeNameEscaper = strings.NewReplacer(`\`, `\\`, ">", `\>`)

// LinkStore returns the auxiliary bucket holding free-relation link records
// from one store to another. Store names containing '>' or '\' are escaped
// with a backslash.
func LinkStore(prefix, from, to string) string {
	return fmt.Sprintf("%s:%s>%s", prefix, storeNameEscaper.Replace(from), storeNameEscaper.Replace(to))
}

// IsLinkStore reports whether name was produced by LinkStore with prefix.
func IsLinkStore(prefix, name string) bool {
	return strings.HasPrefix(name, prefix+":") && strings.Contains(name, ">")
}

// LinkIndexKey computes the link index entry recording that link records
// exist from store "from" to store "to".
// Scanning the index with prefix Nest([]byte(from)) lists every target store.
func LinkIndexKey(from, to string) []byte {
	return append(Nest([]byte(from)), to...)
}

// PartitionKey computes the DynamoDB partition key holding one bucket.
// The namespace must not contain '#'.
func PartitionKey(namespace, bucket string) string {
	return fmt.Sprintf("%s#%s", namespace, bucket)
}

// SplitPartitionKey reverses PartitionKey.
func SplitPartitionKey(pk string) (namespace, bucket string, ok bool) {
	namespace, bucket, ok = strings.Cut(pk, "#")
	if !ok || bucket == "" {
		return "", "", false
	}
	return namespace, bucket, true
}

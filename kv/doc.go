// Package kv defines the ordered, byte-keyed storage contract antler builds on,
// and provides three backends for it.
//
// A [Backend] hands out named [Bucket]s. Each bucket is an ordered mapping of
// byte keys to byte values supporting point reads and writes and ordered range
// scans (see [Range]). Keys compare as unsigned bytes.
//
// # Backends
//
//   - [OpenBolt] stores buckets in a single bbolt file (go.etcd.io/bbolt).
//   - [NewMemory] keeps buckets in in-process B-trees (github.com/google/btree).
//   - [NewDynamo] maps buckets to partitions of one DynamoDB table whose sort
//     key is binary, so DynamoDB's bytewise ordering drives scans.
//
// All backends are safe for concurrent use. Single-key operations are atomic.
// The bbolt and memory backends serve each scan from a snapshot taken when
// iteration starts; the DynamoDB backend pages lazily and only guarantees
// per-item consistency.
package kv

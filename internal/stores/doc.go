// Package stores provides the Redis-backed pending-challenge store used to
// bridge a completed first factor to its second-factor verification.
//
// # Design
//
// Each challenge is a versioned, binary-encoded record written with SET and a
// native TTL equal to the challenge window. Reads never delete: expiry is
// re-checked against the record's creation time on every read, and the TTL
// only reclaims space. Removal runs as a WATCH/MULTI optimistic transaction
// with automatic retry on contention. Retrieval secrets are stored as SHA-256
// digests and compared in constant time.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// challenge records. It does NOT generate tokens, verify codes or make
// login decisions; those belong to the Engine.
//
// # What this package must NOT do
//
//   - Import goMFA or any sibling internal sub-package.
//   - Log or expose plaintext secrets.
//   - Use non-constant-time comparisons for secret matching.
package stores

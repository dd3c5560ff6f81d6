// Package internal contains helpers private to goMFA: challenge token
// generation and derivation, and retrieval-secret digests.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - logging: slog handler setup with trace correlation
//   - stores: Redis pending-challenge store
//   - sweep: periodic expired-challenge reclamation
//
// # What this package must NOT do
//
//   - Export types that appear in the public goMFA API.
//   - Be imported by any package outside the goMFA module.
package internal

// Package goMFA implements the two-factor login protocol that sits between a
// completed first factor (password or OAuth) and an authenticated session.
//
// A successful first factor for a user with an enrolled OTP secret does not
// complete the login. Instead the [Engine] stores a short-lived pending
// challenge and returns an opaque token. The client presents that token with a
// 6-digit time-based code to [Engine.AttemptSecondFactor]. A wrong code leaves
// the challenge in place, so the user may retry until the challenge window
// (600 seconds by default) closes. A correct code consumes the challenge.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goMFA is the public surface. It exposes [Engine], [Builder], [Config], the
// [ChallengeStore] contract and value types. The Redis store encoding, audit
// dispatch and the expiry sweeper live under internal/ and are never
// exported. The postgres sub-package provides a durable [ChallengeStore] and
// [UserProvider]; the jwt sub-package provides a [SessionIssuer].
//
// # Errors
//
// Every error returned by an Engine operation carries an [ErrorKind]. Callers
// use errors.Is with the Err* sentinels or [KindOf]; messages are never part
// of the contract. Fatal first-factor resolver errors are the one exception:
// they are returned unchanged.
//
// # What this package must NOT do
//
//   - Render UI, hash passwords, or speak an OAuth redirect flow.
//   - Reveal whether a challenge was unknown, consumed or expired.
//   - Put challenge tokens, retrieval secrets, OTP seeds or codes into audit
//     events, spans or logs.
package goMFA

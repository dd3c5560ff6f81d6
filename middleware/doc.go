// Package middleware guards HTTP routes with the access tokens minted by the
// jwt package after a goMFA login.
//
//   - [RequireAccess] accepts any valid access token.
//   - [RequireSecondFactor] additionally requires "otp" in the token's amr
//     claim, i.e. a login that passed the second factor.
//
// Validated claims are available to handlers through [ClaimsFromContext].
//
// # What this package must NOT do
//
//   - Mint tokens or touch the challenge store.
//   - Manage cookies or server-side sessions.
package middleware

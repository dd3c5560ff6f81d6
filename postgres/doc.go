// Package postgres stores pending two-factor challenges and enrolled secrets
// in PostgreSQL through pgx/v5.
//
// [ChallengeStore] implements goMFA.ChallengeStore, goMFA.ChallengeClaimer and
// goMFA.ExpiredChallengeSweeper. Postgres has no native row expiry, so expiry
// is enforced in every read predicate and the engine's sweeper reclaims rows.
// [UserRepository] implements goMFA.UserProvider. [Migrator] applies the
// embedded schema with golang-migrate.
//
// Infrastructure failures are returned as samber/oops errors carrying a code
// and the operation; the engine classifies them as backend errors.
package postgres

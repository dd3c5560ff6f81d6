package goMFA

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goMFA/internal/stores"
	"github.com/redis/go-redis/v9"
)

// ChallengeStore persists pending challenges keyed by an opaque token.
//
// Implementations must treat a record as absent once Config.Challenge.Window
// has elapsed since its last Store, whether or not it was physically removed.
// Retrieve never deletes. Remove is a no-op when nothing matches.
//
// A nil secret is a distinct value: a record stored without a secret is only
// retrievable without one, and vice versa.
type ChallengeStore interface {
	Store(ctx context.Context, token string, payload []byte, secret *string) error
	Retrieve(ctx context.Context, token string, secret *string) ([]byte, error)
	Remove(ctx context.Context, token string, secret *string) error
}

// ExpiredChallengeSweeper is implemented by stores that need active space
// reclamation. Stores with native expiry (Redis) do not implement it.
type ExpiredChallengeSweeper interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// ChallengeClaimer is implemented by stores that can remove a record and
// report whether the caller was the one that removed it. The Engine uses it so
// that two concurrent correct codes complete one login, not two.
type ChallengeClaimer interface {
	Claim(ctx context.Context, token string, secret *string) (bool, error)
}

// RedisChallengeStore is the Redis-backed [ChallengeStore].
type RedisChallengeStore struct {
	store *stores.PendingChallengeStore
}

// NewRedisChallengeStore returns a store writing <prefix>:<token> keys with a
// native TTL of window. A non-positive window means [DefaultChallengeWindow];
// now defaults to time.Now.
func NewRedisChallengeStore(client redis.UniversalClient, prefix string, window time.Duration, now func() time.Time) *RedisChallengeStore {
	if window <= 0 {
		window = DefaultChallengeWindow
	}
	return &RedisChallengeStore{store: stores.NewPendingChallengeStore(client, prefix, window, now)}
}

// Store upserts payload under token and restarts the expiry window.
func (s *RedisChallengeStore) Store(ctx context.Context, token string, payload []byte, secret *string) error {
	if token == "" {
		return validationError("challenge_store.store", "token is required")
	}
	if err := s.store.Put(ctx, token, payload, secret); err != nil {
		return newError(KindBackend, "challenge_store.store", err)
	}
	return nil
}

// Retrieve returns the payload for a live record matching token and secret.
func (s *RedisChallengeStore) Retrieve(ctx context.Context, token string, secret *string) ([]byte, error) {
	if token == "" {
		return nil, ErrChallengeNotFound
	}
	payload, err := s.store.Get(ctx, token, secret)
	if err != nil {
		return nil, mapRedisChallengeError("challenge_store.retrieve", err)
	}
	return payload, nil
}

// Remove deletes the record matching token and secret.
func (s *RedisChallengeStore) Remove(ctx context.Context, token string, secret *string) error {
	if token == "" {
		return nil
	}
	if _, err := s.store.Delete(ctx, token, secret); err != nil {
		return mapRedisChallengeError("challenge_store.remove", err)
	}
	return nil
}

// Claim removes the matching record and reports whether it was still live.
// An expired record is removed but not claimed.
func (s *RedisChallengeStore) Claim(ctx context.Context, token string, secret *string) (bool, error) {
	if token == "" {
		return false, nil
	}
	deleted, err := s.store.Delete(ctx, token, secret)
	if err != nil {
		return false, mapRedisChallengeError("challenge_store.claim", err)
	}
	return deleted, nil
}

func mapRedisChallengeError(op string, err error) error {
	switch {
	case errors.Is(err, stores.ErrPendingChallengeNotFound):
		return ErrChallengeNotFound
	default:
		return newError(KindBackend, op, err)
	}
}

package goMFA

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(unix int64) *fakeClock {
	return &fakeClock{now: time.Unix(unix, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memoryUserProvider struct {
	mu    sync.Mutex
	users map[string]*UserRecord
	err   error
}

func newMemoryUserProvider(users ...UserRecord) *memoryUserProvider {
	up := &memoryUserProvider{users: map[string]*UserRecord{}}
	for i := range users {
		u := users[i]
		up.users[u.UserID] = &u
	}
	return up
}

func (p *memoryUserProvider) GetUser(_ context.Context, userID string) (*UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	u, ok := p.users[userID]
	if !ok {
		return nil, ErrUserMissing
	}
	cp := *u
	return &cp, nil
}

func (p *memoryUserProvider) SetTwoFactorSecret(_ context.Context, userID, secretBase32 string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return ErrUserMissing
	}
	u.TwoFactorSecret = secretBase32
	return nil
}

func (p *memoryUserProvider) ClearTwoFactorSecret(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return ErrUserMissing
	}
	u.TwoFactorSecret = ""
	return nil
}

func (p *memoryUserProvider) delete(userID string) {
	p.mu.Lock()
	delete(p.users, userID)
	p.mu.Unlock()
}

func (p *memoryUserProvider) secretOf(userID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.users[userID]; ok {
		return u.TwoFactorSecret
	}
	return ""
}

var errResolverMisconfigured = errors.New("oauth provider misconfigured")

// identifierResolver resolves attempts by Identifier. "fatal" simulates a
// misconfigured collaborator and "denied" a recognized rejection.
func identifierResolver(results map[string]FirstFactorResult) FirstFactorResolverFunc {
	return func(_ context.Context, attempt FirstFactorAttempt) (*FirstFactorResult, error) {
		switch attempt.Identifier {
		case "fatal":
			return nil, errResolverMisconfigured
		case "denied":
			return nil, ErrFirstFactorRejected
		}
		res, ok := results[attempt.Identifier]
		if !ok {
			return nil, ErrFirstFactorRejected
		}
		cp := res
		return &cp, nil
	}
}

type staticIssuer struct{}

func (staticIssuer) IssueSession(_ context.Context, userID, method string) (string, error) {
	return "session:" + userID + ":" + method, nil
}

var errIssuerDown = errors.New("issuer down")

// flakyIssuer fails the first failures calls, then behaves like staticIssuer.
type flakyIssuer struct {
	failures atomic.Int64
}

func (f *flakyIssuer) IssueSession(ctx context.Context, userID, method string) (string, error) {
	if f.failures.Add(-1) >= 0 {
		return "", errIssuerDown
	}
	return staticIssuer{}.IssueSession(ctx, userID, method)
}

// expiringClaimStore moves the clock past the challenge window right before
// delegating Claim.
type expiringClaimStore struct {
	ChallengeStore
	clock *fakeClock
}

func (s *expiringClaimStore) Claim(ctx context.Context, token string, secret *string) (bool, error) {
	s.clock.Advance(DefaultChallengeWindow + time.Second)
	return s.ChallengeStore.(ChallengeClaimer).Claim(ctx, token, secret)
}

// countingStore records every call that reaches the wrapped store.
type countingStore struct {
	inner    ChallengeStore
	calls    atomic.Int64
	mu       sync.Mutex
	payloads map[string][]byte
}

func (s *countingStore) Store(ctx context.Context, token string, payload []byte, secret *string) error {
	s.calls.Add(1)
	s.mu.Lock()
	if s.payloads == nil {
		s.payloads = map[string][]byte{}
	}
	s.payloads[token] = append([]byte(nil), payload...)
	s.mu.Unlock()
	return s.inner.Store(ctx, token, payload, secret)
}

func (s *countingStore) Retrieve(ctx context.Context, token string, secret *string) ([]byte, error) {
	s.calls.Add(1)
	return s.inner.Retrieve(ctx, token, secret)
}

func (s *countingStore) Remove(ctx context.Context, token string, secret *string) error {
	s.calls.Add(1)
	return s.inner.Remove(ctx, token, secret)
}

func (s *countingStore) payload(token string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads[token]
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *fakeClock
	users  *memoryUserProvider
}

// RFC 6238 time 59: counter 1, current code 287082.
const testEpoch = 59

func newTestEnv(t *testing.T, cfg Config, configure func(*Builder)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := newFakeClock(testEpoch)
	users := newMemoryUserProvider(
		UserRecord{UserID: "u1", Identifier: "alice", TwoFactorSecret: rfcSecretSHA1},
		UserRecord{UserID: "u2", Identifier: "bob"},
	)
	resolver := identifierResolver(map[string]FirstFactorResult{
		"alice": {UserID: "u1", ServiceName: "password"},
		"bob":   {UserID: "u2", ServiceName: "password"},
	})

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithFirstFactorResolver(resolver).
		WithClock(clock.Now)
	if configure != nil {
		configure(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, mr: mr, rdb: rdb, clock: clock, users: users}
}

func (env *testEnv) currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := env.engine.verifier.CodeAt(secret, env.clock.Now())
	if err != nil {
		t.Fatalf("CodeAt failed: %v", err)
	}
	return code
}

func (env *testEnv) issueChallenge(t *testing.T, identifier string) *LoginResult {
	t.Helper()
	res, err := env.engine.AttemptFirstFactor(context.Background(), FirstFactorAttempt{Method: "password", Identifier: identifier})
	if err != nil {
		t.Fatalf("AttemptFirstFactor failed: %v", err)
	}
	if !res.TwoFactorRequired || res.ChallengeToken == "" {
		t.Fatalf("expected challenge, got %+v", res)
	}
	return res
}

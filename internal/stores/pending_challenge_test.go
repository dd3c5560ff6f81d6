package stores

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*PendingChallengeStore, *miniredis.Miniredis, *testClock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	return NewPendingChallengeStore(rdb, "mfac", 600*time.Second, clock.Now), mr, clock
}

func strPtr(s string) *string { return &s }

func TestPendingChallengePutGetRoundTrip(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()

	payload := []byte(`{"userId":"u1"}`)
	if err := store.Put(ctx, "tok1", payload, nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "tok1", nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %s want %s", got, payload)
	}

	// reads never consume
	if _, err := store.Get(ctx, "tok1", nil); err != nil {
		t.Fatalf("second Get failed: %v", err)
	}

	if ttl := mr.TTL("mfac:tok1"); ttl != 600*time.Second {
		t.Fatalf("expected native ttl of 600s, got %v", ttl)
	}
}

func TestPendingChallengeGetMissing(t *testing.T) {
	store, _, _ := newTestStore(t)
	if _, err := store.Get(context.Background(), "nope", nil); !errors.Is(err, ErrPendingChallengeNotFound) {
		t.Fatalf("expected ErrPendingChallengeNotFound, got %v", err)
	}
}

func TestPendingChallengeSecretMatching(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "with-secret", []byte("a"), strPtr("s3cret")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, "no-secret", []byte("b"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	cases := []struct {
		name   string
		token  string
		secret *string
		found  bool
	}{
		{"exact secret", "with-secret", strPtr("s3cret"), true},
		{"wrong secret", "with-secret", strPtr("other"), false},
		{"missing secret", "with-secret", nil, false},
		{"empty secret vs stored", "with-secret", strPtr(""), false},
		{"null matches null", "no-secret", nil, true},
		{"secret vs null", "no-secret", strPtr("s3cret"), false},
		{"empty string vs null", "no-secret", strPtr(""), false},
	}

	for _, tc := range cases {
		_, err := store.Get(ctx, tc.token, tc.secret)
		if tc.found && err != nil {
			t.Fatalf("%s: expected hit, got %v", tc.name, err)
		}
		if !tc.found && !errors.Is(err, ErrPendingChallengeNotFound) {
			t.Fatalf("%s: expected not found, got %v", tc.name, err)
		}
	}
}

func TestPendingChallengeExpiresOnReadBeforeTTL(t *testing.T) {
	store, mr, clock := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "tok1", []byte("p"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	clock.Advance(599 * time.Second)
	if _, err := store.Get(ctx, "tok1", nil); err != nil {
		t.Fatalf("expected live record at 599s, got %v", err)
	}

	clock.Advance(time.Second)
	if !mr.Exists("mfac:tok1") {
		t.Fatal("expected redis to still hold the key")
	}
	if _, err := store.Get(ctx, "tok1", nil); !errors.Is(err, ErrPendingChallengeNotFound) {
		t.Fatalf("expected expired record to read as not found, got %v", err)
	}
}

func TestPendingChallengeNativeTTLReclaims(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "tok1", []byte("p"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	mr.FastForward(601 * time.Second)

	if mr.Exists("mfac:tok1") {
		t.Fatal("expected key reclaimed by ttl")
	}
	if _, err := store.Get(ctx, "tok1", nil); !errors.Is(err, ErrPendingChallengeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPendingChallengeUpsertRefreshesWindow(t *testing.T) {
	store, _, clock := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "tok1", []byte("first"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	clock.Advance(500 * time.Second)
	if err := store.Put(ctx, "tok1", []byte("second"), nil); err != nil {
		t.Fatalf("re-Put failed: %v", err)
	}
	clock.Advance(500 * time.Second)

	got, err := store.Get(ctx, "tok1", nil)
	if err != nil {
		t.Fatalf("expected refreshed record, got %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("expected last write to win, got %q", got)
	}
}

func TestPendingChallengeDelete(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "tok1", []byte("p"), strPtr("s")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	deleted, err := store.Delete(ctx, "tok1", strPtr("wrong"))
	if err != nil || deleted {
		t.Fatalf("expected no delete on secret mismatch, deleted=%v err=%v", deleted, err)
	}
	if !mr.Exists("mfac:tok1") {
		t.Fatal("record removed despite secret mismatch")
	}

	deleted, err = store.Delete(ctx, "tok1", strPtr("s"))
	if err != nil || !deleted {
		t.Fatalf("expected delete, deleted=%v err=%v", deleted, err)
	}
	if _, err := store.Get(ctx, "tok1", strPtr("s")); !errors.Is(err, ErrPendingChallengeNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	deleted, err = store.Delete(ctx, "tok1", strPtr("s"))
	if err != nil || deleted {
		t.Fatalf("expected idempotent delete, deleted=%v err=%v", deleted, err)
	}
}

func TestPendingChallengeDeleteExpiredReportsDead(t *testing.T) {
	store, mr, clock := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "tok1", []byte("p"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	clock.Advance(601 * time.Second)

	deleted, err := store.Delete(ctx, "tok1", nil)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted {
		t.Fatal("expired record must not be reported as deleted")
	}
	if mr.Exists("mfac:tok1") {
		t.Fatal("expired record should still be removed")
	}
}

func TestPendingChallengeNonPositiveWindowDefaults(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	for _, window := range []time.Duration{0, -time.Second} {
		store := NewPendingChallengeStore(rdb, "mfac", window, clock.Now)
		ctx := context.Background()

		if err := store.Put(ctx, "tok1", []byte("p"), nil); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if _, err := store.Get(ctx, "tok1", nil); err != nil {
			t.Fatalf("window %v: expected live record, got %v", window, err)
		}
		if ttl := mr.TTL("mfac:tok1"); ttl != DefaultWindow {
			t.Fatalf("window %v: expected ttl %v, got %v", window, DefaultWindow, ttl)
		}
	}
}

func TestPendingChallengeCorruptRecord(t *testing.T) {
	store, mr, _ := newTestStore(t)
	if err := mr.Set("mfac:bad", "\x09garbage"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if _, err := store.Get(context.Background(), "bad", nil); !errors.Is(err, ErrPendingChallengeCorrupt) {
		t.Fatalf("expected ErrPendingChallengeCorrupt, got %v", err)
	}
}

func TestPendingChallengeBackendFailure(t *testing.T) {
	store, mr, _ := newTestStore(t)
	mr.Close()

	if err := store.Put(context.Background(), "tok1", []byte("p"), nil); !errors.Is(err, ErrPendingChallengeBackend) {
		t.Fatalf("expected ErrPendingChallengeBackend, got %v", err)
	}
}

func TestPendingChallengeCodecRejectsTrailingBytes(t *testing.T) {
	encoded, err := encodePendingChallenge(&PendingChallenge{CreatedAt: 42, HasSecret: true, Payload: []byte("x")})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := decodePendingChallenge(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.CreatedAt != 42 || !decoded.HasSecret || string(decoded.Payload) != "x" {
		t.Fatalf("unexpected decode: %+v", decoded)
	}

	if _, err := decodePendingChallenge(append(encoded, 0)); !errors.Is(err, ErrPendingChallengeCorrupt) {
		t.Fatalf("expected trailing bytes rejected, got %v", err)
	}
}

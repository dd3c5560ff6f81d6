package goMFA

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindStrings(t *testing.T) {
	cases := map[ErrorKind]string{
		KindValidation:       "validation_error",
		KindInvalidChallenge: "invalid_challenge",
		KindInvalidCode:      "invalid_code",
		KindUserNotFound:     "user_not_found",
		KindFirstFactor:      "first_factor_error",
		KindBackend:          "backend_unavailable",
		KindConfig:           "config_error",
		KindUnknown:          "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("kind %d: got %q want %q", kind, got, want)
		}
	}
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := newError(KindInvalidCode, "attempt_second_factor", nil)

	if !errors.Is(err, ErrInvalidCode) {
		t.Fatal("expected kind sentinel to match")
	}
	if errors.Is(err, ErrInvalidChallenge) {
		t.Fatal("different kinds must not match")
	}
	if !errors.Is(fmt.Errorf("wrapped: %w", err), ErrInvalidCode) {
		t.Fatal("expected match through wrapping")
	}
	if !errors.Is(err, &Error{Kind: KindInvalidCode, Op: "attempt_second_factor"}) {
		t.Fatal("expected op-qualified match")
	}
	if errors.Is(err, &Error{Kind: KindInvalidCode, Op: "activate_enrollment"}) {
		t.Fatal("expected op mismatch to fail")
	}
}

func TestErrorUnwrapAndMessage(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := newError(KindBackend, "challenge_store.store", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected cause reachable through Unwrap")
	}
	if got := err.Error(); got != "challenge_store.store: backend_unavailable: dial tcp: refused" {
		t.Fatalf("unexpected message %q", got)
	}
	if KindOf(fmt.Errorf("outer: %w", err)) != KindBackend {
		t.Fatal("KindOf must see through wrapping")
	}
	if KindOf(cause) != KindUnknown {
		t.Fatal("foreign errors have no kind")
	}
}

package goMFA

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every error returned across the two-factor boundary.
//
// The set is closed: callers switch on Kind (or use errors.Is with the Err*
// sentinels below) instead of matching message text.
type ErrorKind uint8

const (
	// KindUnknown is reported by KindOf for errors not produced by this package.
	KindUnknown ErrorKind = iota
	// KindValidation marks malformed input rejected before any state change.
	KindValidation
	// KindInvalidChallenge marks an unknown, consumed or expired challenge token.
	KindInvalidChallenge
	// KindInvalidCode marks an OTP mismatch. The challenge stays valid for retry.
	KindInvalidCode
	// KindUserNotFound marks a user or enrolled secret that vanished after issuance.
	KindUserNotFound
	// KindFirstFactor marks a first-factor rejection passed through from the resolver.
	KindFirstFactor
	// KindBackend marks an unavailable challenge store or user repository.
	KindBackend
	// KindConfig marks an engine used without a required collaborator.
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindInvalidChallenge:
		return "invalid_challenge"
	case KindInvalidCode:
		return "invalid_code"
	case KindUserNotFound:
		return "user_not_found"
	case KindFirstFactor:
		return "first_factor_error"
	case KindBackend:
		return "backend_unavailable"
	case KindConfig:
		return "config_error"
	default:
		return "unknown"
	}
}

var (
	// ErrValidation matches any *Error of KindValidation.
	ErrValidation = &Error{Kind: KindValidation}
	// ErrInvalidChallenge matches any *Error of KindInvalidChallenge.
	ErrInvalidChallenge = &Error{Kind: KindInvalidChallenge}
	// ErrInvalidCode matches any *Error of KindInvalidCode.
	ErrInvalidCode = &Error{Kind: KindInvalidCode}
	// ErrUserNotFound matches any *Error of KindUserNotFound.
	ErrUserNotFound = &Error{Kind: KindUserNotFound}
	// ErrFirstFactor matches any *Error of KindFirstFactor.
	ErrFirstFactor = &Error{Kind: KindFirstFactor}
	// ErrBackend matches any *Error of KindBackend.
	ErrBackend = &Error{Kind: KindBackend}
	// ErrEngineNotReady is returned when an Engine is missing a collaborator.
	ErrEngineNotReady = &Error{Kind: KindConfig, Err: errors.New("engine not initialized")}
)

var (
	// ErrChallengeNotFound is returned by ChallengeStore.Retrieve when no live
	// record matches the token and secret pair.
	ErrChallengeNotFound = errors.New("pending challenge not found")
	// ErrUserMissing is returned by UserProvider implementations for unknown users.
	ErrUserMissing = errors.New("user not found")
	// ErrFirstFactorRejected is wrapped by FirstFactorResolver implementations to
	// report a recognized rejection (unknown user, denied or cancelled login,
	// provider mismatch). Any other resolver error is treated as fatal.
	ErrFirstFactorRejected = errors.New("first factor rejected")
)

// Error is the typed error returned by Engine operations.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports kind equality so the Err* sentinels match any error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Op != "" && t.Op != e.Op {
		return false
	}
	if t.Err != nil && !errors.Is(e.Err, t.Err) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the ErrorKind carried by err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed.Kind
	}
	return KindUnknown
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func validationError(op, format string, args ...any) *Error {
	return newError(KindValidation, op, fmt.Errorf(format, args...))
}

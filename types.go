package goMFA

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goMFA/internal/audit"
)

// FirstFactorAttempt is the opaque credential material handed to a
// [FirstFactorResolver]. The Engine never inspects Credential or Params.
type FirstFactorAttempt struct {
	// Method names the first-factor flow ("password", "oauth", ...).
	Method     string
	Identifier string
	Credential string
	Params     map[string]string
}

// FirstFactorResult is the identity resolved by a successful first factor.
type FirstFactorResult struct {
	UserID string
	// ServiceName is the origin login method reported back on completion
	// ("password", "github", ...).
	ServiceName string
	// AttemptKey is a deterministic identifier of this first-factor attempt
	// (for example an OAuth credential token). With Challenge.TokenKey set,
	// retries of the same attempt re-upsert one challenge.
	AttemptKey string
	// ChallengeSecret, when non-nil, is stored with the challenge and must be
	// presented again to use or cancel it.
	ChallengeSecret *string
}

// FirstFactorResolver performs the external password or OAuth exchange.
//
// Recognized rejections must wrap [ErrFirstFactorRejected]. Any other error is
// treated as fatal and returned to the caller unchanged.
type FirstFactorResolver interface {
	ResolveFirstFactor(ctx context.Context, attempt FirstFactorAttempt) (*FirstFactorResult, error)
}

// FirstFactorResolverFunc adapts a function to [FirstFactorResolver].
type FirstFactorResolverFunc func(ctx context.Context, attempt FirstFactorAttempt) (*FirstFactorResult, error)

// ResolveFirstFactor calls f.
func (f FirstFactorResolverFunc) ResolveFirstFactor(ctx context.Context, attempt FirstFactorAttempt) (*FirstFactorResult, error) {
	return f(ctx, attempt)
}

// UserProvider is the user repository the Engine reads enrolled secrets from
// and the enrollment lifecycle writes them to.
//
// GetUser returns [ErrUserMissing] for unknown users.
type UserProvider interface {
	GetUser(ctx context.Context, userID string) (*UserRecord, error)
	SetTwoFactorSecret(ctx context.Context, userID, secretBase32 string) error
	ClearTwoFactorSecret(ctx context.Context, userID string) error
}

// UserRecord is the part of a user account this package depends on.
type UserRecord struct {
	UserID     string
	Identifier string
	// TwoFactorSecret is the enrolled base32 OTP seed; empty when not enrolled.
	TwoFactorSecret string
}

// HasTwoFactorSecret reports whether the user completed enrollment.
func (u *UserRecord) HasTwoFactorSecret() bool {
	return u != nil && u.TwoFactorSecret != ""
}

// SessionIssuer mints the caller-facing session artifact for a completed
// login. It is optional; without one, LoginResult carries identity only.
type SessionIssuer interface {
	IssueSession(ctx context.Context, userID, method string) (string, error)
}

// LoginResult is returned by [Engine.AttemptFirstFactor] and
// [Engine.AttemptSecondFactor].
//
// Exactly one of two shapes is returned: a completed login (Method and
// UserID set, TwoFactorRequired false) or an issued challenge
// (TwoFactorRequired true, ChallengeToken set).
type LoginResult struct {
	Method string
	UserID string

	AccessToken string

	TwoFactorRequired  bool
	ChallengeToken     string
	ChallengeExpiresAt time.Time
}

// EnrollmentSetup is returned by [Engine.BeginEnrollment]. Nothing is
// persisted until [Engine.ActivateEnrollment] succeeds.
type EnrollmentSetup struct {
	Secret string
	// ProvisioningURI is the otpauth:// URI rendered as a QR code by clients.
	ProvisioningURI string
}

// ChallengeOption customizes challenge lookups.
type ChallengeOption func(*challengeOptions)

type challengeOptions struct {
	secret *string
}

// WithChallengeSecret supplies the retrieval secret issued with the challenge.
func WithChallengeSecret(secret string) ChallengeOption {
	return func(o *challengeOptions) {
		s := secret
		o.secret = &s
	}
}

func resolveChallengeOptions(opts []ChallengeOption) challengeOptions {
	var o challengeOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

package goMFA

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/goMFA/internal"
	"go.opentelemetry.io/otel/attribute"
)

const maxChallengeTokenLength = 512

// challengePayload is what a pending challenge carries across the second
// factor. The store treats it as opaque bytes.
type challengePayload struct {
	UserID       string `json:"userId"`
	ServiceName  string `json:"serviceName"`
	ConnectionID string `json:"connectionId,omitempty"`
	IP           string `json:"ip,omitempty"`
}

// AttemptFirstFactor resolves attempt through the configured
// [FirstFactorResolver] and applies the two-factor gate.
//
// Users without an enrolled secret get a completed login. Enrolled users get
// a result with TwoFactorRequired set and a challenge token to present to
// [Engine.AttemptSecondFactor] before ChallengeExpiresAt.
//
// Recognized resolver rejections return a KindFirstFactor error; any other
// resolver error is returned unchanged.
func (e *Engine) AttemptFirstFactor(ctx context.Context, attempt FirstFactorAttempt) (result *LoginResult, err error) {
	const op = "attempt_first_factor"
	if e == nil || e.resolver == nil || e.users == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	ctx, span := e.startSpan(ctx, "goMFA.AttemptFirstFactor", attribute.String("login.method", attempt.Method))
	defer func() { endSpan(span, err) }()

	resolved, err := e.resolver.ResolveFirstFactor(ctx, attempt)
	if err != nil {
		if errors.Is(err, ErrFirstFactorRejected) {
			return nil, e.rejectFirstFactor(ctx, op, attempt.Method, "", err)
		}
		e.metricInc(MetricFirstFactorFatal)
		e.emitAudit(ctx, auditEventFirstFactorFailure, false, "", attempt.Method, err, nil)
		return nil, err
	}
	if resolved == nil || resolved.UserID == "" {
		return nil, e.rejectFirstFactor(ctx, op, attempt.Method, "", fmt.Errorf("%w: login cancelled", ErrFirstFactorRejected))
	}

	service := resolved.ServiceName
	if service == "" {
		service = attempt.Method
	}
	if !e.serviceRegistered(service) {
		return nil, e.rejectFirstFactor(ctx, op, service, resolved.UserID, fmt.Errorf("%w: no registered service found", ErrFirstFactorRejected))
	}

	e.metricInc(MetricFirstFactorSuccess)
	e.emitAudit(ctx, auditEventFirstFactorSuccess, true, resolved.UserID, service, nil, nil)

	user, err := e.users.GetUser(ctx, resolved.UserID)
	if err != nil {
		if errors.Is(err, ErrUserMissing) {
			return nil, newError(KindUserNotFound, op, nil)
		}
		return nil, e.backendError(ctx, op, err)
	}
	if user == nil {
		return nil, newError(KindUserNotFound, op, nil)
	}

	if !user.HasTwoFactorSecret() {
		access, err := e.issueSession(ctx, op, resolved.UserID, service)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginCompleted)
		return &LoginResult{
			Method:      service,
			UserID:      resolved.UserID,
			AccessToken: access,
		}, nil
	}

	return e.issueChallenge(ctx, op, resolved, service)
}

func (e *Engine) rejectFirstFactor(ctx context.Context, op, method, userID string, cause error) error {
	mapped := newError(KindFirstFactor, op, cause)
	e.metricInc(MetricFirstFactorRejected)
	e.emitAudit(ctx, auditEventFirstFactorFailure, false, userID, method, mapped, nil)
	return mapped
}

func (e *Engine) issueChallenge(ctx context.Context, op string, resolved *FirstFactorResult, service string) (*LoginResult, error) {
	token, err := e.challengeToken(service, resolved.AttemptKey)
	if err != nil {
		return nil, e.backendError(ctx, op, err)
	}

	payload, err := json.Marshal(challengePayload{
		UserID:       resolved.UserID,
		ServiceName:  service,
		ConnectionID: connectionIDFromContext(ctx),
		IP:           clientIPFromContext(ctx),
	})
	if err != nil {
		return nil, e.backendError(ctx, op, err)
	}

	issuedAt := e.now()
	if err := e.store.Store(ctx, token, payload, resolved.ChallengeSecret); err != nil {
		return nil, e.backendError(ctx, op, err)
	}

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, auditEventChallengeIssued, true, resolved.UserID, service, nil, func() map[string]string {
		return map[string]string{
			"deterministic": strconv.FormatBool(e.deterministicTokens() && resolved.AttemptKey != ""),
		}
	})

	return &LoginResult{
		Method:             service,
		TwoFactorRequired:  true,
		ChallengeToken:     token,
		ChallengeExpiresAt: issuedAt.Add(e.config.Challenge.Window),
	}, nil
}

func (e *Engine) deterministicTokens() bool {
	return len(e.config.Challenge.TokenKey) > 0
}

// challengeToken derives the token from the attempt when a key is configured
// so a retried first factor upserts the same record.
func (e *Engine) challengeToken(service, attemptKey string) (string, error) {
	if e.deterministicTokens() && attemptKey != "" {
		return internal.DeriveChallengeToken(e.config.Challenge.TokenKey, service, attemptKey)
	}
	return internal.NewChallengeToken()
}

// AttemptSecondFactor completes the login bound to token when code is the
// current OTP for the challenged user.
//
// A wrong code returns a KindInvalidCode error and keeps the challenge for
// retry. Unknown, consumed and expired tokens all return KindInvalidChallenge.
// If the user or their enrolled secret disappeared since issuance the
// challenge is removed and KindUserNotFound is returned.
func (e *Engine) AttemptSecondFactor(ctx context.Context, token, code string, opts ...ChallengeOption) (result *LoginResult, err error) {
	const op = "attempt_second_factor"
	if e == nil || e.store == nil || e.users == nil || e.verifier == nil {
		return nil, ErrEngineNotReady
	}

	ctx, span := e.startSpan(ctx, "goMFA.AttemptSecondFactor")
	defer func() { endSpan(span, err) }()
	start := e.now()
	defer e.metricObserve(MetricSecondFactorLatency, start)

	if token == "" || len(token) > maxChallengeTokenLength {
		e.metricInc(MetricSecondFactorMalformed)
		return nil, validationError(op, "challenge token is malformed")
	}
	if len(code) != CodeDigits || !isNumericString(code) {
		e.metricInc(MetricSecondFactorMalformed)
		return nil, validationError(op, "code must be exactly %d digits", CodeDigits)
	}

	options := resolveChallengeOptions(opts)

	raw, err := e.store.Retrieve(ctx, token, options.secret)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			return nil, e.invalidChallenge(ctx, op, "")
		}
		return nil, e.backendError(ctx, op, err)
	}

	var payload challengePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.UserID == "" {
		e.discardChallenge(ctx, token, options.secret)
		return nil, e.invalidChallenge(ctx, op, "")
	}
	span.SetAttributes(attribute.String("login.method", payload.ServiceName))

	user, err := e.users.GetUser(ctx, payload.UserID)
	if err != nil && !errors.Is(err, ErrUserMissing) {
		return nil, e.backendError(ctx, op, err)
	}
	if err != nil || !user.HasTwoFactorSecret() {
		e.discardChallenge(ctx, token, options.secret)
		mapped := newError(KindUserNotFound, op, nil)
		e.metricInc(MetricSecondFactorUserNotFound)
		e.emitAudit(ctx, auditEventSecondFactorFailure, false, payload.UserID, payload.ServiceName, mapped, nil)
		return nil, mapped
	}

	ok, err := e.verifier.Verify(user.TwoFactorSecret, code, e.now())
	if err != nil {
		return nil, e.backendError(ctx, op, errors.New("enrolled secret is unreadable"))
	}
	if !ok {
		mapped := newError(KindInvalidCode, op, nil)
		e.metricInc(MetricSecondFactorInvalidCode)
		e.emitAudit(ctx, auditEventSecondFactorFailure, false, payload.UserID, payload.ServiceName, mapped, nil)
		return nil, mapped
	}

	// the session is minted before the claim so an issuer failure leaves the
	// challenge in place; a minted session is dropped if the claim is lost
	access, err := e.issueSession(withSecondFactorVerified(ctx), op, payload.UserID, payload.ServiceName)
	if err != nil {
		return nil, err
	}

	claimed, err := e.claimChallenge(ctx, token, options.secret)
	if err != nil {
		return nil, e.backendError(ctx, op, err)
	}
	if !claimed {
		// a concurrent attempt consumed it first, or the window closed
		return nil, e.invalidChallenge(ctx, op, payload.UserID)
	}

	e.metricInc(MetricSecondFactorSuccess)
	e.emitAudit(ctx, auditEventSecondFactorSuccess, true, payload.UserID, payload.ServiceName, nil, nil)
	return &LoginResult{
		Method:      payload.ServiceName,
		UserID:      payload.UserID,
		AccessToken: access,
	}, nil
}

// CancelChallenge removes the challenge bound to token without completing
// the login. Cancelling an unknown or expired token succeeds.
func (e *Engine) CancelChallenge(ctx context.Context, token string, opts ...ChallengeOption) (err error) {
	const op = "cancel_challenge"
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return nil
	}

	ctx, span := e.startSpan(ctx, "goMFA.CancelChallenge")
	defer func() { endSpan(span, err) }()

	options := resolveChallengeOptions(opts)
	if err := e.store.Remove(ctx, token, options.secret); err != nil {
		return e.backendError(ctx, op, err)
	}

	e.metricInc(MetricChallengeCancelled)
	e.emitAudit(ctx, auditEventChallengeCancelled, true, "", "", nil, nil)
	return nil
}

func (e *Engine) invalidChallenge(ctx context.Context, op, userID string) error {
	mapped := newError(KindInvalidChallenge, op, nil)
	e.metricInc(MetricSecondFactorInvalidChallenge)
	e.emitAudit(ctx, auditEventSecondFactorFailure, false, userID, "", mapped, nil)
	return mapped
}

// claimChallenge removes the challenge and reports whether this call was the
// one that removed it. Stores without [ChallengeClaimer] always report true.
func (e *Engine) claimChallenge(ctx context.Context, token string, secret *string) (bool, error) {
	if claimer, ok := e.store.(ChallengeClaimer); ok {
		return claimer.Claim(ctx, token, secret)
	}
	if err := e.store.Remove(ctx, token, secret); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) discardChallenge(ctx context.Context, token string, secret *string) {
	if err := e.store.Remove(ctx, token, secret); err != nil {
		e.metricInc(MetricBackendError)
		e.logger.WarnContext(ctx, "stale challenge removal failed", "error", err)
	}
}

func (e *Engine) issueSession(ctx context.Context, op, userID, method string) (string, error) {
	if e.issuer == nil {
		return "", nil
	}
	access, err := e.issuer.IssueSession(ctx, userID, method)
	if err != nil {
		return "", e.backendError(ctx, op, err)
	}
	return access, nil
}

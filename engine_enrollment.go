package goMFA

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

const enrollmentMethod = "totp"

// BeginEnrollment generates a fresh OTP seed and its provisioning URI for
// label. Nothing is persisted; the seed only becomes the user's secret once
// [Engine.ActivateEnrollment] succeeds.
func (e *Engine) BeginEnrollment(ctx context.Context, label string) (setup *EnrollmentSetup, err error) {
	const op = "begin_enrollment"
	if e == nil || e.verifier == nil {
		return nil, ErrEngineNotReady
	}

	ctx, span := e.startSpan(ctx, "goMFA.BeginEnrollment")
	defer func() { endSpan(span, err) }()

	label = strings.TrimSpace(label)
	if err := e.validateLabel(op, label); err != nil {
		return nil, err
	}

	secret, err := e.verifier.GenerateSecret()
	if err != nil {
		return nil, e.backendError(ctx, op, err)
	}

	e.metricInc(MetricEnrollmentStarted)
	e.emitAudit(ctx, auditEventEnrollmentStarted, true, "", enrollmentMethod, nil, nil)

	return &EnrollmentSetup{
		Secret:          secret,
		ProvisioningURI: e.verifier.ProvisionURI(secret, label),
	}, nil
}

func (e *Engine) validateLabel(op, label string) error {
	if label == "" {
		return validationError(op, "label is required")
	}
	if len(label) > e.config.Enrollment.MaxLabelLength {
		return validationError(op, "label exceeds %d bytes", e.config.Enrollment.MaxLabelLength)
	}
	if strings.Contains(label, ":") {
		return validationError(op, "label must not contain ':'")
	}
	for _, r := range label {
		if unicode.IsControl(r) {
			return validationError(op, "label must not contain control characters")
		}
	}
	return nil
}

// ActivateEnrollment persists pendingSecret as the user's two-factor secret
// after code proves possession of it. A wrong code returns a KindInvalidCode
// error and persists nothing.
func (e *Engine) ActivateEnrollment(ctx context.Context, userID, pendingSecret, code string) (err error) {
	const op = "activate_enrollment"
	if e == nil || e.verifier == nil || e.users == nil {
		return ErrEngineNotReady
	}

	ctx, span := e.startSpan(ctx, "goMFA.ActivateEnrollment")
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return validationError(op, "user id is required")
	}
	if len(code) != CodeDigits || !isNumericString(code) {
		return validationError(op, "code must be exactly %d digits", CodeDigits)
	}
	if _, err := decodeSecret(pendingSecret); err != nil {
		return validationError(op, "pending secret is not valid base32")
	}

	ok, err := e.verifier.Verify(pendingSecret, code, e.now())
	if err != nil {
		return validationError(op, "pending secret is not valid base32")
	}
	if !ok {
		mapped := newError(KindInvalidCode, op, nil)
		e.metricInc(MetricEnrollmentFailure)
		e.emitAudit(ctx, auditEventEnrollmentFailure, false, userID, enrollmentMethod, mapped, nil)
		return mapped
	}

	if err := e.users.SetTwoFactorSecret(ctx, userID, pendingSecret); err != nil {
		if errors.Is(err, ErrUserMissing) {
			return newError(KindUserNotFound, op, nil)
		}
		return e.backendError(ctx, op, err)
	}

	e.metricInc(MetricEnrollmentActivated)
	e.emitAudit(ctx, auditEventEnrollmentActivated, true, userID, enrollmentMethod, nil, nil)
	return nil
}

// DisableTwoFactor removes the user's enrolled secret.
//
// With Config.Enrollment.RequireCodeToDisable (the default) code must be a
// valid current OTP for the enrolled secret; otherwise code is ignored.
// Disabling a user who is not enrolled succeeds.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, code string) (err error) {
	const op = "disable_two_factor"
	if e == nil || e.users == nil || e.verifier == nil {
		return ErrEngineNotReady
	}

	ctx, span := e.startSpan(ctx, "goMFA.DisableTwoFactor")
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return validationError(op, "user id is required")
	}

	if e.config.Enrollment.RequireCodeToDisable {
		if len(code) != CodeDigits || !isNumericString(code) {
			return validationError(op, "code must be exactly %d digits", CodeDigits)
		}

		user, err := e.users.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrUserMissing) {
				return newError(KindUserNotFound, op, nil)
			}
			return e.backendError(ctx, op, err)
		}
		if !user.HasTwoFactorSecret() {
			return nil
		}

		ok, err := e.verifier.Verify(user.TwoFactorSecret, code, e.now())
		if err != nil {
			return e.backendError(ctx, op, errors.New("enrolled secret is unreadable"))
		}
		if !ok {
			mapped := newError(KindInvalidCode, op, nil)
			e.emitAudit(ctx, auditEventTwoFactorDisabled, false, userID, enrollmentMethod, mapped, nil)
			return mapped
		}
	}

	if err := e.users.ClearTwoFactorSecret(ctx, userID); err != nil {
		if errors.Is(err, ErrUserMissing) {
			return newError(KindUserNotFound, op, nil)
		}
		return e.backendError(ctx, op, err)
	}

	e.metricInc(MetricTwoFactorDisabled)
	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, userID, enrollmentMethod, nil, nil)
	return nil
}

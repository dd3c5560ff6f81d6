package goMFA

import (
	"context"
	"time"
)

const (
	auditEventFirstFactorSuccess  = "first_factor_success"
	auditEventFirstFactorFailure  = "first_factor_failure"
	auditEventChallengeIssued     = "challenge_issued"
	auditEventChallengeCancelled  = "challenge_cancelled"
	auditEventSecondFactorSuccess = "second_factor_success"
	auditEventSecondFactorFailure = "second_factor_failure"
	auditEventEnrollmentStarted   = "enrollment_started"
	auditEventEnrollmentActivated = "enrollment_activated"
	auditEventEnrollmentFailure   = "enrollment_failure"
	auditEventTwoFactorDisabled   = "two_factor_disabled"
	auditErrInternal              = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	method string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:    e.now().UTC(),
		EventType:    eventType,
		UserID:       userID,
		Method:       method,
		ConnectionID: connectionIDFromContext(ctx),
		IP:           clientIPFromContext(ctx),
		Success:      success,
		Metadata:     metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = code
	}

	e.audit.Emit(ctx, event)
}

// auditErrorCode never returns err.Error(): resolver and backend messages may
// embed credentials.
func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if kind := KindOf(err); kind != KindUnknown {
		return kind.String()
	}
	return auditErrInternal
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

package internaldefs

import (
	"github.com/MrEthical07/goMFA"
)

// CounterDef names one goMFA counter for exporters.
type CounterDef struct {
	ID   goMFA.MetricID
	Name string
	Help string
}

// HistogramDef names one goMFA histogram for exporters.
type HistogramDef struct {
	ID   goMFA.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goMFA.MetricFirstFactorSuccess, Name: "gomfa_first_factor_success_total", Help: "First factors that resolved a user."},
	{ID: goMFA.MetricFirstFactorRejected, Name: "gomfa_first_factor_rejected_total", Help: "First factors rejected by the resolver or service registry."},
	{ID: goMFA.MetricFirstFactorFatal, Name: "gomfa_first_factor_fatal_total", Help: "Resolver errors passed through unchanged."},
	{ID: goMFA.MetricLoginCompleted, Name: "gomfa_login_completed_total", Help: "Logins completed without a second factor."},
	{ID: goMFA.MetricChallengeIssued, Name: "gomfa_challenge_issued_total", Help: "Pending challenges written."},
	{ID: goMFA.MetricChallengeCancelled, Name: "gomfa_challenge_cancelled_total", Help: "Pending challenges cancelled."},
	{ID: goMFA.MetricSecondFactorSuccess, Name: "gomfa_second_factor_success_total", Help: "Challenges completed with a valid code."},
	{ID: goMFA.MetricSecondFactorInvalidCode, Name: "gomfa_second_factor_invalid_code_total", Help: "Second-factor attempts with a wrong code."},
	{ID: goMFA.MetricSecondFactorInvalidChallenge, Name: "gomfa_second_factor_invalid_challenge_total", Help: "Second-factor attempts on unknown, consumed or expired challenges."},
	{ID: goMFA.MetricSecondFactorUserNotFound, Name: "gomfa_second_factor_user_not_found_total", Help: "Challenges dropped because the user or secret vanished."},
	{ID: goMFA.MetricSecondFactorMalformed, Name: "gomfa_second_factor_malformed_total", Help: "Second-factor attempts rejected for input shape."},
	{ID: goMFA.MetricEnrollmentStarted, Name: "gomfa_enrollment_started_total", Help: "Enrollment secrets generated."},
	{ID: goMFA.MetricEnrollmentActivated, Name: "gomfa_enrollment_activated_total", Help: "Enrollments persisted after proof of possession."},
	{ID: goMFA.MetricEnrollmentFailure, Name: "gomfa_enrollment_failure_total", Help: "Enrollment activations with a wrong code."},
	{ID: goMFA.MetricTwoFactorDisabled, Name: "gomfa_two_factor_disabled_total", Help: "Enrolled secrets removed."},
	{ID: goMFA.MetricChallengesReclaimed, Name: "gomfa_challenges_reclaimed_total", Help: "Expired challenges deleted by the sweeper."},
	{ID: goMFA.MetricBackendError, Name: "gomfa_backend_error_total", Help: "Challenge store or user repository failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: goMFA.MetricSecondFactorLatency, Name: "gomfa_second_factor_latency_seconds", Help: "AttemptSecondFactor latency histogram."},
}

// AuditDroppedName is the counter exported for dropped audit events.
const AuditDroppedName = "gomfa_audit_dropped_total"

// HistogramUpperBounds are the bucket bounds in seconds, +Inf excluded.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets copies a snapshot histogram into a fixed array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into le-style running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

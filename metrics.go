package goMFA

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram in the in-process metrics system.
type MetricID uint16

const (
	// MetricFirstFactorSuccess counts first factors that resolved a user.
	MetricFirstFactorSuccess MetricID = iota
	// MetricFirstFactorRejected counts first factors rejected by the resolver or service registry.
	MetricFirstFactorRejected
	// MetricFirstFactorFatal counts resolver errors passed through unchanged.
	MetricFirstFactorFatal
	// MetricLoginCompleted counts logins completed without a second factor.
	MetricLoginCompleted
	// MetricChallengeIssued counts pending challenges written.
	MetricChallengeIssued
	// MetricChallengeCancelled counts explicit cancellations.
	MetricChallengeCancelled
	// MetricSecondFactorSuccess counts challenges completed with a valid code.
	MetricSecondFactorSuccess
	// MetricSecondFactorInvalidCode counts OTP mismatches.
	MetricSecondFactorInvalidCode
	// MetricSecondFactorInvalidChallenge counts unknown, consumed or expired tokens.
	MetricSecondFactorInvalidChallenge
	// MetricSecondFactorUserNotFound counts challenges dropped because the user or secret vanished.
	MetricSecondFactorUserNotFound
	// MetricSecondFactorMalformed counts codes rejected for shape.
	MetricSecondFactorMalformed
	// MetricEnrollmentStarted counts BeginEnrollment calls.
	MetricEnrollmentStarted
	// MetricEnrollmentActivated counts persisted enrollments.
	MetricEnrollmentActivated
	// MetricEnrollmentFailure counts activation attempts with a wrong code.
	MetricEnrollmentFailure
	// MetricTwoFactorDisabled counts removed enrollments.
	MetricTwoFactorDisabled
	// MetricChallengesReclaimed counts expired challenges deleted by the sweeper.
	MetricChallengesReclaimed
	// MetricBackendError counts store or repository failures.
	MetricBackendError
	// MetricSecondFactorLatency is the AttemptSecondFactor latency histogram.
	MetricSecondFactorLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and an optional latency histogram.
// A nil or disabled Metrics ignores every write.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a Metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to counter id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram for id. Only latency metrics accept
// observations.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricSecondFactorLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the latency histogram when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricSecondFactorLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricSecondFactorLatency].buckets[i])
		}
		s.Histograms[MetricSecondFactorLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}

package goMFA

import (
	"context"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goMFA/internal/audit"
	"github.com/MrEthical07/goMFA/internal/sweep"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/MrEthical07/goMFA")

// Engine runs the two-factor login protocol: it turns a resolved first factor
// into either a completed login or a pending challenge, verifies codes against
// pending challenges, and manages OTP enrollment.
//
// Engine instances are built with [Builder] and are safe for concurrent use.
type Engine struct {
	config   Config
	store    ChallengeStore
	verifier *Verifier
	users    UserProvider
	resolver FirstFactorResolver
	issuer   SessionIssuer
	services map[string]struct{}
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	logger   *slog.Logger
	clock    func() time.Time
	sweeper  *sweep.Worker
}

// Close stops the background sweeper and flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.sweeper.Stop()
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Verifier returns the OTP verifier configured for this engine.
func (e *Engine) Verifier() *Verifier {
	if e == nil {
		return nil
	}
	return e.verifier
}

// ChallengeWindow returns the lifetime of a pending challenge.
func (e *Engine) ChallengeWindow() time.Duration {
	if e == nil {
		return 0
	}
	return e.config.Challenge.Window
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, e.now().Sub(start))
}

// backendError classifies an infrastructure failure. Errors already carrying
// a kind pass through.
func (e *Engine) backendError(ctx context.Context, op string, err error) error {
	kind := KindOf(err)
	if kind != KindUnknown && kind != KindBackend {
		return err
	}
	e.metricInc(MetricBackendError)
	e.logger.WarnContext(ctx, "backend failure", "op", op, "error", err)
	if kind == KindBackend {
		return err
	}
	return newError(KindBackend, op, err)
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err by kind only; messages from collaborators may carry
// credentials.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("gomfa.error_kind", auditErrorCode(err)))
		span.SetStatus(codes.Error, auditErrorCode(err))
	}
	span.End()
}

func (e *Engine) serviceRegistered(service string) bool {
	if len(e.services) == 0 {
		return true
	}
	_, ok := e.services[service]
	return ok
}

package goMFA

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/goMFA/internal/audit"
	"github.com/MrEthical07/goMFA/internal/sweep"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder may be used for exactly one Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  ChallengeStore

	users    UserProvider
	resolver FirstFactorResolver
	issuer   SessionIssuer

	auditSink AuditSink
	logger    *slog.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the engine configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis selects the Redis challenge store. It is ignored when
// WithChallengeStore is also set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithChallengeStore sets a custom [ChallengeStore], such as the postgres
// package store. Stores implementing [ExpiredChallengeSweeper] are swept
// every Config.Challenge.SweepInterval.
func (b *Builder) WithChallengeStore(store ChallengeStore) *Builder {
	b.store = store
	return b
}

// WithUserProvider sets the user repository. Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.users = up
	return b
}

// WithFirstFactorResolver sets the password/OAuth collaborator used by
// AttemptFirstFactor.
func (b *Builder) WithFirstFactorResolver(r FirstFactorResolver) *Builder {
	b.resolver = r
	return b
}

// WithSessionIssuer sets the issuer of access tokens for completed logins.
func (b *Builder) WithSessionIssuer(issuer SessionIssuer) *Builder {
	b.issuer = issuer
	return b
}

// WithAuditSink sets the audit sink and enables the audit dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source used for code verification and
// challenge expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the second-factor latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine. The caller
// must Close the engine to stop background work.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, configError("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, newError(KindConfig, "build", err)
	}

	if b.users == nil {
		return nil, configError("user provider required")
	}
	if b.store == nil && b.redis == nil {
		return nil, configError("challenge store or redis client required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	store := b.store
	if store == nil {
		store = NewRedisChallengeStore(b.redis, cfg.Challenge.RedisPrefix, cfg.Challenge.Window, clock)
	}

	engine := &Engine{
		config:   cfg,
		store:    store,
		verifier: NewVerifier(cfg.TOTP),
		users:    b.users,
		resolver: b.resolver,
		issuer:   b.issuer,
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger,
		clock:    clock,
	}

	if len(cfg.FirstFactor.Services) > 0 {
		engine.services = make(map[string]struct{}, len(cfg.FirstFactor.Services))
		for _, svc := range cfg.FirstFactor.Services {
			engine.services[strings.TrimSpace(svc)] = struct{}{}
		}
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(ev internalaudit.Event) {
			logger.Debug("audit event dropped", "event_type", ev.EventType)
		},
	}, b.auditSink)

	if sweeper, ok := store.(ExpiredChallengeSweeper); ok {
		engine.sweeper = sweep.Start(sweeper, sweep.Config{
			Interval: cfg.Challenge.SweepInterval,
			Window:   cfg.Challenge.Window,
			Now:      clock,
			Logger:   logger,
			OnSwept: func(removed int64) {
				if removed > 0 && engine.metrics != nil {
					engine.metrics.Add(MetricChallengesReclaimed, uint64(removed))
				}
			},
			OnError: func(error) {
				engine.metricInc(MetricBackendError)
			},
		})
	}

	b.built = true
	return engine, nil
}

func configError(msg string) error {
	return newError(KindConfig, "build", errors.New(msg))
}

package goMagicLink

import (
	"context"
	"database/sql"
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/goMagicLink/internal/audit"
	"github.com/MrEthical07/goMagicLink/internal/ledger"
	"github.com/MrEthical07/goMagicLink/internal/limiters"
	"github.com/MrEthical07/goMagicLink/internal/rate"
	"github.com/MrEthical07/goMagicLink/internal/stores"
	"github.com/MrEthical07/goMagicLink/internal/stores/redisstore"
	"github.com/MrEthical07/goMagicLink/internal/stores/sqlstore"
	"github.com/MrEthical07/goMagicLink/internal/sweep"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const auditWriteTimeout = 5 * time.Second

// Builder defines a public type used by goMagicLink APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sqlDB      *sql.DB
	sqlDialect string

	logger       *zap.Logger
	auditSink    AuditSink
	auditOnError AuditErrorHandler
	clock        func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder seeded with [DefaultConfig].
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration; validation happens in Build.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis selects the Redis backend. It is mutually exclusive with WithSQL. Cluster clients
// are supported: every key carries the "{RedisPrefix}" hash tag and lands in one slot.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSQL describes the withsql operation and its observable behavior.
//
// WithSQL selects the SQL backend over an already-migrated db. dialect is "sqlite" or "postgres".
// WithSQL does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSQL(db *sql.DB, dialect string) *Builder {
	b.sqlDB = db
	b.sqlDialect = dialect
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// WithLogger sets the structured logger; the default discards everything.
// WithLogger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink adds a sink that receives every event next to the persistent store.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithAuditErrorHandler describes the withauditerrorhandler operation and its observable behavior.
//
// WithAuditErrorHandler receives audit persistence failures after they are logged.
// WithAuditErrorHandler does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditErrorHandler(h AuditErrorHandler) *Builder {
	b.auditOnError = h
	return b
}

// WithClock describes the withclock operation and its observable behavior.
//
// WithClock overrides time.Now for every engine decision.
// WithClock does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := b.buildStore(cfg)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	e := &Engine{
		config:  cfg,
		store:   store,
		logger:  logger,
		clock:   clock,
		metrics: NewMetrics(cfg.Metrics),
	}

	e.limiter = rate.New(store, rate.Config{
		Limit:       cfg.RateLimit.Limit,
		Window:      cfg.RateLimit.Window,
		RequestKind: cfg.RateLimit.RequestKind,
	})

	if cfg.IPThrottle.Enabled {
		e.ipThrottle = limiters.NewIPThrottle(limiters.IPConfig{
			Limit:   cfg.IPThrottle.Limit,
			Window:  cfg.IPThrottle.Window,
			IdleTTL: cfg.IPThrottle.IdleTTL,
		})
		janitorCtx, cancel := context.WithCancel(context.Background())
		e.stopJanitor = cancel
		e.ipThrottle.StartJanitor(janitorCtx, cfg.IPThrottle.Window, clock)
	}

	e.ledger = ledger.New(store, ledger.Config{
		MaxAttempts:        cfg.Token.MaxAttempts,
		Expiry:             cfg.Token.Expiry,
		ExpiringActions:    cloneStrings(cfg.Token.ExpiringActions),
		BlacklistRetention: cfg.Blacklist.Retention,
		MinTokenLength:     cfg.Token.MinLength,
	})

	e.auditLog = internalaudit.NewLog(store, internalaudit.LogConfig{
		DefaultQueryLimit: cfg.Audit.DefaultQueryLimit,
		MaxQueryLimit:     cfg.Audit.MaxQueryLimit,
	})

	var sink internalaudit.Sink = internalaudit.NewStoreSink(store, auditWriteTimeout, e.onAuditError(b.auditOnError))
	if b.auditSink != nil {
		sink = internalaudit.MultiSink{sink, b.auditSink}
	}
	e.audit = internalaudit.NewTrail(internalaudit.TrailConfig{
		Enabled:   cfg.Audit.Enabled,
		QueueSize: cfg.Audit.BufferSize,
		OnDrop: func(ev internalaudit.Event) {
			e.logger.Debug("audit event dropped", zap.String("action", ev.Action))
		},
	}, sink)

	e.sweeper = sweep.New(store, sweep.Config{
		RateLimitWindow:      cfg.RateLimit.Window,
		TokenRecordRetention: cfg.Retention.TokenRecordRetention,
		AuditRetention:       cfg.Retention.AuditRetention(),
		BatchSize:            cfg.Retention.BatchSize,
	})

	b.built = true
	return e, nil
}

func (b *Builder) buildStore(cfg Config) (stores.Store, error) {
	switch {
	case b.redis != nil && b.sqlDB != nil:
		return nil, errors.New("configure either redis or sql, not both")
	case b.redis != nil:
		return redisstore.New(b.redis, cfg.Store.RedisPrefix), nil
	case b.sqlDB != nil:
		dialect, err := sqlstore.ParseDialect(b.sqlDialect)
		if err != nil {
			return nil, err
		}
		return sqlstore.New(b.sqlDB, dialect), nil
	default:
		return nil, errors.New("redis client or sql database required")
	}
}

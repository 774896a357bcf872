package quizgate

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/twnoc/quizgate/envelope"
	"github.com/twnoc/quizgate/internal/audit"
	"github.com/twnoc/quizgate/internal/dbx"
	"github.com/twnoc/quizgate/internal/limiters"
	"github.com/twnoc/quizgate/internal/localstore"
	"github.com/twnoc/quizgate/internal/remotestore"
	"github.com/twnoc/quizgate/internal/tokens"
	"github.com/twnoc/quizgate/session"
)

// Builder assembles an Engine. A Builder is single use; Build returns an
// error when called twice.
type Builder struct {
	config Config

	local       localstore.Store
	remote      remotestore.Store
	redisClient redis.UniversalClient
	auditDB     dbx.DBTX
	auditSink   AuditSink
	clock       func() time.Time

	built bool
}

// New starts a Builder with the default configuration (including
// environment fallbacks for secrets).
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithLocalStore supplies the persistent local key-value store. Without one
// the engine runs on an in-memory store and loses state on restart.
func (b *Builder) WithLocalStore(store localstore.Store) *Builder {
	b.local = store
	return b
}

// WithRemoteStore supplies the remote token document store. Without one the
// engine runs local-only: token sync and cross-device usage merging are off.
func (b *Builder) WithRemoteStore(store remotestore.Store) *Builder {
	b.remote = store
	return b
}

// WithRedis wires the default Redis-backed remote store over client.
// WithRemoteStore takes precedence when both are set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redisClient = client
	return b
}

// WithAuditDB supplies the database backing the persistent audit trail.
// Without one, audit events reach only the configured sink.
func (b *Builder) WithAuditDB(db dbx.DBTX) *Builder {
	b.auditDB = db
	return b
}

// WithAuditSink supplies an additional consumer for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock injects the engine clock. Tests use it to control expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles metric collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component, and returns a
// ready Engine. The audit trail schema is migrated here when an audit DB
// was supplied.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}

	local := b.local
	if local == nil {
		local = localstore.NewMemory()
	}

	remote := b.remote
	if remote == nil && b.redisClient != nil {
		remote = remotestore.NewRedis(b.redisClient, "qg", now)
	}

	metrics := NewMetrics(cfg.Metrics)

	sealer := envelope.NewSealer(envelope.Config{
		Secret: cfg.Crypto.Secret,
		Now:    now,
		OnLegacy: func() {
			metrics.Inc(MetricLegacyEnvelopeOpened)
		},
	})

	var trail *audit.Trail
	if b.auditDB != nil {
		trail = audit.NewTrail(b.auditDB, sealer, audit.TrailConfig{
			MaxEntries:  cfg.Audit.MaxEntries,
			PruneMargin: cfg.Audit.PruneMargin,
			Now:         now,
		})
		if err := trail.Migrate(context.Background()); err != nil {
			return nil, err
		}
	}

	var sinks audit.MultiSink
	if trail != nil {
		sinks = append(sinks, trail)
	}
	if b.auditSink != nil {
		sinks = append(sinks, b.auditSink)
	}

	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Now:        now,
	}, sinks)

	engine := &Engine{
		config:     cfg,
		sealer:     sealer,
		local:      local,
		remote:     remote,
		trail:      trail,
		dispatcher: dispatcher,
		metrics:    metrics,
		totp:       newTOTPManager(cfg.TOTP),
		receipts:   newReceiptSigner(cfg.receiptSecret(), cfg.Receipt.Lifetime, now),
		now:        now,
		pending:    make(map[string]pendingLogin),
	}

	engine.authority = tokens.NewAuthority(local, sealer, remote, dispatcher, tokens.Config{
		StorageKey: cfg.Token.StorageKey,
		TTLDays:    cfg.Token.TTLDays,
		Now:        now,
	})
	engine.sessions = session.NewStore(local, sealer, session.Config{
		TTL:        cfg.Session.TTL,
		IdleTTL:    cfg.Session.IdleTTL,
		SoonWindow: cfg.Session.SoonWindow,
		StorageKey: cfg.Session.StorageKey,
		Now:        now,
		OnUnreadable: func() {
			metrics.Inc(MetricIntegrityFailure)
		},
	})
	engine.guard = limiters.NewGuard(local, limiters.GuardConfig{
		MaxAttempts:      cfg.Login.MaxAttempts,
		CaptchaThreshold: cfg.Login.CaptchaThreshold,
		LockoutDuration:  cfg.Login.LockoutDuration,
		AttemptWindow:    cfg.Login.AttemptWindow,
		BackoffCap:       cfg.Login.BackoffCap,
		StorageKey:       cfg.Login.StorageKey,
	}, now)

	b.built = true

	return engine, nil
}

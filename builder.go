package authcore

import (
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/jobs"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/notification"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/revocation"
	"github.com/MrEthical07/authcore/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder collects the collaborators of an Engine. A Builder builds at most
// one Engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  store.Store

	sender     notification.Sender
	registry   *notification.Registry
	authorizer Authorizer
	logger     *zap.Logger
	now        func() time.Time

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the revocation cache and job status.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the durable store.
func (b *Builder) WithStore(st store.Store) *Builder {
	b.store = st
	return b
}

// WithSender sets the email transport. Without one, emails are only logged.
func (b *Builder) WithSender(sender notification.Sender) *Builder {
	b.sender = sender
	return b
}

// WithTemplates replaces the built-in email templates.
func (b *Builder) WithTemplates(registry *notification.Registry) *Builder {
	b.registry = registry
	return b
}

// WithAuthorizer sets the policy used by Engine.Authorize.
func (b *Builder) WithAuthorizer(a Authorizer) *Builder {
	b.authorizer = a
	return b
}

// WithLogger sets the logger. Nil keeps the no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for every component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the bearer verification histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:     cfg,
		store:      b.store,
		authorizer: b.authorizer,
		logger:     logger,
		now:        now,
		metrics:    NewMetrics(cfg.Metrics),
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	codec, err := jwt.NewCodec(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		MaxFutureIAT:  cfg.JWT.MaxFutureIAT,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.codec = codec

	revoker, err := revocation.New(b.redis, revocation.Config{
		Prefix: cfg.Revocation.CachePrefix,
		TTL: map[jwt.Kind]time.Duration{
			jwt.KindAccess:        cfg.JWT.AccessTTL,
			jwt.KindRefresh:       cfg.JWT.RefreshTTL,
			jwt.KindResetPassword: cfg.JWT.ResetPasswordTTL,
		},
		OnCacheWriteFailure: func() { engine.metricInc(MetricRevocationCacheWriteFailure) },
		Now:                 now,
	}, logger.Named("revocation"))
	if err != nil {
		return nil, err
	}
	engine.revoker = revoker

	preloader, err := revocation.NewPreloader(revoker, b.store, logger.Named("revocation"))
	if err != nil {
		return nil, err
	}
	engine.preloader = preloader

	sender := b.sender
	if sender == nil {
		sender = notification.NewLogSender(logger.Named("notification"))
	}
	dispatcher := notification.NewDispatcher(notification.DispatcherConfig{
		BufferSize:  cfg.Notification.BufferSize,
		DropIfFull:  cfg.Notification.DropIfFull,
		SendTimeout: cfg.Notification.SendTimeout,
	}, sender, logger.Named("notification"))
	notifier, err := notification.NewNotifier(b.registry, dispatcher)
	if err != nil {
		dispatcher.Close()
		return nil, err
	}
	engine.notifier = notifier

	challenges, err := mfa.New(mfa.Config{
		CodeLength:           cfg.MFA.CodeLength,
		CodeTTL:              cfg.MFA.CodeTTL,
		MaxIncorrectAttempts: cfg.MFA.MaxIncorrectAttempts,
		LockoutDuration:      cfg.MFA.LockoutDuration,
		MaxResends:           cfg.MFA.MaxResends,
		Now:                  now,
	}, mfa.NotifierFunc(engine.notifyMFACode), logger.Named("mfa"))
	if err != nil {
		notifier.Close()
		return nil, err
	}
	engine.mfa = challenges

	engine.jobs = jobs.NewRunner(b.redis, jobs.Config{}, logger.Named("jobs"))
	engine.flows = engine.buildFlows()

	b.built = true

	return engine, nil
}

package auth

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerly/auth/internal/rate"
	"github.com/ledgerly/auth/internal/stores"
	"github.com/ledgerly/auth/password"
	"github.com/ledgerly/auth/token"
)

// Builder assembles an [Engine]. A Builder is single-use: Build returns
// an error on the second call.
type Builder struct {
	config Config
	redis  *redis.Client

	store     CredentialStore
	sender    CodeSender
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with production defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration. The config is cloned;
// later mutation of cfg does not affect the builder.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing code records and throttle
// counters. Required.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithSender sets the out-of-band code sender. Without one, issued
// codes are counted as dropped and never delivered; useful in tests.
func (b *Builder) WithSender(sender CodeSender) *Builder {
	b.sender = sender
	return b
}

// WithAuditSink sets the audit sink and enables the audit dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, constructs every subsystem and
// returns a ready Engine. The caller owns the Engine and must Close it
// on shutdown.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}

	cfg := cloneConfig(b.config)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		codes:     stores.NewCodeStore(b.redis, cfg.Codes.RedisPrefix),
		hashSlots: make(chan struct{}, cfg.Hashing.MaxConcurrent),
	}

	engine.limiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle:  cfg.Throttle.EnableIPThrottle,
		MaxSignInAttempts: cfg.Throttle.MaxSignInAttempts,
		SignInWindow:      cfg.Throttle.Cooldown,
		MaxSignUpAttempts: cfg.Throttle.MaxSignUpPerIP,
		SignUpWindow:      cfg.Throttle.Cooldown,
		MaxResetRequests:  cfg.Throttle.MaxResetRequests,
		ResetWindow:       cfg.Throttle.Cooldown,
	})

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.mail = newMailDispatcher(cfg.Mail, b.sender, func(job mailJob, err error) {
		engine.emitAudit(nil, "code_delivery_failure", false, "", job.Email, ErrServiceUnavailable,
			func() map[string]string {
				return map[string]string{"purpose": job.Purpose.String()}
			})
	})

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MaxBytes:    cfg.Password.MaxBytes,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = ph

	tm, err := token.NewManager(token.Config{
		TTL:           cfg.Token.TTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		Secret:        cloneBytes(cfg.Token.Secret),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = tm

	b.built = true

	return engine, nil
}

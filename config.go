package auth

import (
	"errors"
	"time"
)

// Config carries every tunable of the engine. Start from [DefaultConfig]
// and adjust; invalid or zero values fail the build rather than being
// silently corrected.
type Config struct {
	Password  PasswordConfig
	Token     TokenConfig
	Codes     CodeConfig
	Throttle  ThrottleConfig
	Hashing   HashingConfig
	Mail      MailConfig
	TwoFactor TwoFactorConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig tunes the Argon2id work factor and the strength policy.
// Memory is in KB.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MinLength is the minimum accepted password length in bytes.
	MinLength int
	// MaxBytes caps plaintext size before hashing; longer inputs are
	// rejected as invalid rather than truncated.
	MaxBytes int
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig tunes session token issuance. Secret is required for
// "hs256"; PrivateKey/PublicKey for "ed25519".
type TokenConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	Secret        []byte
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
CODE CONFIG
====================================
*/

// CodeConfig tunes one-time verification codes.
type CodeConfig struct {
	TTL         time.Duration
	Digits      int
	MaxAttempts int
	// RetentionGrace keeps an expired record around past its logical TTL
	// so a late consumption attempt can be answered with "expired" rather
	// than being indistinguishable from "never issued".
	RetentionGrace time.Duration
	RedisPrefix    string
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig tunes the fixed-window signin/signup/reset limiter.
type ThrottleConfig struct {
	MaxSignInAttempts int
	MaxSignUpPerIP    int
	MaxResetRequests  int
	Cooldown          time.Duration
	EnableIPThrottle  bool
}

// HashingConfig bounds concurrent Argon2 computations. MaxConcurrent
// slow hashes run at once; further callers queue on the semaphore.
type HashingConfig struct {
	MaxConcurrent int
}

// MailConfig tunes the outbound code delivery queue.
type MailConfig struct {
	QueueSize  int
	DropIfFull bool
}

// TwoFactorConfig names the issuer shown in authenticator apps.
type TwoFactorConfig struct {
	Issuer string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and the verify latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults. Callers that need to
// override a handful of fields start from here and pass the result to
// [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
			MaxBytes:    512,
		},
		Token: TokenConfig{
			TTL:           24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "ledgerly",
		},
		Codes: CodeConfig{
			TTL:            15 * time.Minute,
			Digits:         6,
			MaxAttempts:    5,
			RetentionGrace: 15 * time.Minute,
			RedisPrefix:    "lvc",
		},
		Throttle: ThrottleConfig{
			MaxSignInAttempts: 10,
			MaxSignUpPerIP:    20,
			MaxResetRequests:  5,
			Cooldown:          15 * time.Minute,
			EnableIPThrottle:  true,
		},
		Hashing: HashingConfig{
			MaxConcurrent: 8,
		},
		Mail: MailConfig{
			QueueSize:  256,
			DropIfFull: true,
		},
		TwoFactor: TwoFactorConfig{
			Issuer: "Ledgerly",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

// cloneConfig copies the config including its key material, so callers
// mutating their Config after Build cannot affect a running Engine.
func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func validateConfig(cfg Config) error {
	if cfg.Token.TTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	switch cfg.Token.SigningMethod {
	case "hs256":
		if len(cfg.Token.Secret) < 32 {
			return errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case "ed25519":
		if len(cfg.Token.PrivateKey) == 0 && len(cfg.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires key material")
		}
	default:
		return errors.New("unsupported token signing method")
	}
	if cfg.Codes.TTL <= 0 {
		return errors.New("code TTL must be positive")
	}
	if cfg.Codes.Digits < 4 || cfg.Codes.Digits > 10 {
		return errors.New("code digits must be between 4 and 10")
	}
	if cfg.Codes.MaxAttempts < 1 {
		return errors.New("code max attempts must be >= 1")
	}
	if cfg.Throttle.MaxSignInAttempts < 1 || cfg.Throttle.Cooldown <= 0 {
		return errors.New("invalid signin throttle configuration")
	}
	if cfg.Throttle.MaxSignUpPerIP < 1 {
		return errors.New("signup throttle budget must be >= 1")
	}
	if cfg.Throttle.MaxResetRequests < 1 {
		return errors.New("reset request throttle budget must be >= 1")
	}
	if cfg.Hashing.MaxConcurrent < 1 {
		return errors.New("hashing concurrency must be >= 1")
	}
	if cfg.Password.MinLength < 8 {
		return errors.New("password minimum length must be >= 8")
	}
	if cfg.Password.MaxBytes < cfg.Password.MinLength {
		return errors.New("password max bytes must be >= min length")
	}
	return nil
}

package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/ledgerly/auth/internal"
	"github.com/ledgerly/auth/internal/rate"
	"github.com/ledgerly/auth/internal/stores"
	"github.com/ledgerly/auth/password"
	"github.com/ledgerly/auth/token"
)

// Engine is the credential and session lifecycle engine. Build one with
// [Builder] at startup and share it; all methods are safe for
// concurrent use.
type Engine struct {
	config    Config
	store     CredentialStore
	codes     *stores.CodeStore
	limiter   *rate.Limiter
	hasher    *password.Argon2
	tokens    *token.Manager
	mail      *mailDispatcher
	audit     *auditDispatcher
	metrics   *Metrics
	hashSlots chan struct{}
}

// Close stops the engine's background dispatchers, draining any
// buffered audit events and queued mail.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.mail != nil {
		e.mail.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// VerifyToken validates a session token and returns the user ID it was
// issued for. This is the request hot path: it performs no I/O and no
// allocation-heavy work beyond JWT parsing.
func (e *Engine) VerifyToken(ctx context.Context, tokenStr string) (string, error) {
	if e == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}

	start := time.Now()
	userID, err := e.tokens.Verify(tokenStr)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}

	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			return "", ErrTokenExpired
		default:
			return "", ErrTokenInvalid
		}
	}
	return userID, nil
}

// acquireHashSlot bounds the number of Argon2 computations in flight.
// Hashing is deliberately expensive; without the bound a burst of
// sign-ins could pin every core and starve token verification.
func (e *Engine) acquireHashSlot(ctx context.Context) (release func(), err error) {
	select {
	case e.hashSlots <- struct{}{}:
		return func() { <-e.hashSlots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Emails match a pragmatic pattern: one local part, one @, one domain
// with a dot. Full RFC 5322 is out of scope; the verification code is
// the real proof of ownership.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// normalizeEmail lowercases and trims an address. All store lookups and
// throttle keys use the normalized form.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (e *Engine) validateEmail(email string) error {
	if email == "" || len(email) > 254 || !emailPattern.MatchString(email) {
		return ErrValidation
	}
	return nil
}

// validatePassword enforces the strength policy: configured minimum
// length, byte-size cap, and at least three of the four character
// classes (lower, upper, digit, symbol).
func (e *Engine) validatePassword(pw string) error {
	if len(pw) < e.config.Password.MinLength || len(pw) > e.config.Password.MaxBytes {
		return ErrPasswordPolicy
	}

	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	classes := 0
	for _, ok := range []bool{lower, upper, digit, symbol} {
		if ok {
			classes++
		}
	}
	if classes < 3 {
		return ErrPasswordPolicy
	}
	return nil
}

// sanitizeUser strips secret material before a User crosses the API
// boundary.
func sanitizeUser(u User) User {
	u.PasswordHash = ""
	u.TwoFactorSecret = ""
	return u
}

// storeErr maps a CredentialStore failure to the engine's public error
// surface. ErrNotFound and ErrDuplicateEmail pass through for flows
// that handle them; everything else collapses to ErrServiceUnavailable.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateEmail) {
		return err
	}
	return ErrServiceUnavailable
}

// codeConsumeErr maps a code-store consume failure to the public error
// surface. Attempt exhaustion burns the code, so it reports as expired.
func codeConsumeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrCodeExpired),
		errors.Is(err, stores.ErrCodeAttemptsExceeded):
		return ErrCodeExpired
	case errors.Is(err, stores.ErrCodeNotFound),
		errors.Is(err, stores.ErrCodeMismatch):
		return ErrCodeInvalid
	default:
		return ErrServiceUnavailable
	}
}

// issueCode generates, stores and queues delivery of a one-time code
// for (purpose, user). Any previously active code for the pair is
// replaced. payload survives in the record until consumption.
func (e *Engine) issueCode(ctx context.Context, purpose CodePurpose, user User, payload string) error {
	code, err := internal.NewNumericCode(e.config.Codes.Digits)
	if err != nil {
		return ErrServiceUnavailable
	}

	record := &stores.CodeRecord{
		CodeHash:  internal.HashCode(code),
		ExpiresAt: time.Now().Add(e.config.Codes.TTL).Unix(),
		Payload:   payload,
	}
	if err := e.codes.Save(ctx, purpose.String(), user.ID, record,
		e.config.Codes.TTL, e.config.Codes.RetentionGrace); err != nil {
		return ErrServiceUnavailable
	}

	if e.mail.Enqueue(mailJob{Email: user.Email, Purpose: purpose, Code: code}) {
		e.metricInc(MetricMailQueued)
	} else {
		e.metricInc(MetricMailDropped)
	}

	return nil
}

// consumeCode burns the active code for (purpose, user) and returns the
// record payload stored at issue time.
func (e *Engine) consumeCode(ctx context.Context, purpose CodePurpose, userID, code string) (string, error) {
	record, err := e.codes.Consume(ctx, purpose.String(), userID,
		internal.HashCode(code), e.config.Codes.MaxAttempts)
	if err != nil {
		return "", codeConsumeErr(err)
	}
	return record.Payload, nil
}

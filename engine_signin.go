package auth

import (
	"context"
	"errors"

	"github.com/ledgerly/auth/internal/rate"
)

// SignIn authenticates an email/password pair and returns a fresh
// session token. Unknown email and wrong password are indistinguishable
// to the caller: both return ErrInvalidCredentials, and the unknown
// path burns a full hash verification so response timing does not leak
// account existence either.
func (e *Engine) SignIn(ctx context.Context, email, pw string) (*SignInResult, error) {
	if e == nil || e.store == nil || e.hasher == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || pw == "" {
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventSignInFailure, false, "", email, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "empty_input"}
		})
		return nil, ErrInvalidCredentials
	}

	ip := clientIPFromContext(ctx)
	if err := e.limiter.CheckSignIn(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricSignInRateLimited)
			e.emitAudit(ctx, auditEventSignInRateLimited, false, "", email, ErrRateLimited, nil)
			e.emitRateLimit(ctx, "sign_in", email)
			return nil, ErrRateLimited
		}
		return nil, ErrServiceUnavailable
	}

	user, lookupErr := e.store.FindByEmail(ctx, email)

	release, err := e.acquireHashSlot(ctx)
	if err != nil {
		return nil, ErrServiceUnavailable
	}

	if lookupErr != nil {
		if errors.Is(lookupErr, ErrNotFound) {
			// Burn a verification against the reference hash so this
			// path costs the same as a real mismatch.
			e.hasher.DummyVerify(pw)
			release()
			_ = e.limiter.IncrementSignIn(ctx, email, ip)
			e.metricInc(MetricSignInFailure)
			e.emitAudit(ctx, auditEventSignInFailure, false, "", email, ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"reason": "unknown_email"}
			})
			return nil, ErrInvalidCredentials
		}
		release()
		return nil, ErrServiceUnavailable
	}

	ok, err := e.hasher.Verify(pw, user.PasswordHash)
	release()
	if err != nil || !ok {
		_ = e.limiter.IncrementSignIn(ctx, email, ip)
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventSignInFailure, false, user.ID, email, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "password_mismatch"}
		})
		return nil, ErrInvalidCredentials
	}

	_ = e.limiter.ResetSignIn(ctx, email, ip)

	// Transparent work-factor upgrade: rehash under current parameters
	// when the stored hash was produced with weaker ones. Failure here
	// is non-fatal; the old hash stays valid.
	if up, upErr := e.hasher.NeedsUpgrade(user.PasswordHash); upErr == nil && up {
		if release, err := e.acquireHashSlot(ctx); err == nil {
			if newHash, hashErr := e.hasher.Hash(pw); hashErr == nil {
				_ = e.store.ReplacePasswordHash(ctx, user.ID, newHash)
			}
			release()
		}
	}

	tokenStr, err := e.tokens.Issue(user.ID)
	if err != nil {
		return nil, ErrServiceUnavailable
	}

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditEventSignInSuccess, true, user.ID, email, nil, nil)

	return &SignInResult{
		User:  sanitizeUser(user),
		Token: tokenStr,
	}, nil
}

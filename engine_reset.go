package auth

import (
	"context"
	"errors"

	"github.com/ledgerly/auth/internal/rate"
)

// RequestPasswordReset issues a reset code for the account registered
// under email. The outcome is identical whether or not the account
// exists: the caller always observes success, and only the audit trail
// records the difference. Repeated requests replace the previous code.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if err := e.validateEmail(email); err != nil {
		return ErrValidation
	}

	if err := e.limiter.CheckResetRequest(ctx, email); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emitRateLimit(ctx, "password_reset_request", email)
			return ErrRateLimited
		}
		return ErrServiceUnavailable
	}

	e.metricInc(MetricResetRequest)

	user, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Report success to the caller; the audit trail is the only
			// place the miss is visible.
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", email, nil, func() map[string]string {
				return map[string]string{"reason": "unknown_email"}
			})
			return nil
		}
		return ErrServiceUnavailable
	}

	if err := e.issueCode(ctx, PurposePasswordReset, user, ""); err != nil {
		return ErrServiceUnavailable
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, email, nil, nil)

	return nil
}

// ResetPassword consumes a reset code and installs a new password.
// The code is single-use: concurrent submissions of the same code race
// on an atomic consume and exactly one wins. A new password that fails
// the strength policy is rejected before the code is consumed, so the
// user can retry with the same code.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPw string) error {
	if e == nil || e.store == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || code == "" {
		return ErrCodeInvalid
	}
	if err := e.validatePassword(newPw); err != nil {
		return ErrPasswordPolicy
	}

	user, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Indistinguishable from a wrong code for a real account.
			e.metricInc(MetricResetConfirmFailure)
			return ErrCodeInvalid
		}
		return ErrServiceUnavailable
	}

	if _, err := e.consumeCode(ctx, PurposePasswordReset, user.ID, code); err != nil {
		switch {
		case errors.Is(err, ErrCodeExpired):
			e.metricInc(MetricResetAttemptsExceeded)
		default:
			e.metricInc(MetricResetConfirmFailure)
		}
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, user.ID, email, err, nil)
		return err
	}

	release, slotErr := e.acquireHashSlot(ctx)
	if slotErr != nil {
		return ErrServiceUnavailable
	}
	newHash, err := e.hasher.Hash(newPw)
	release()
	if err != nil {
		return ErrServiceUnavailable
	}

	if err := e.store.ReplacePasswordHash(ctx, user.ID, newHash); err != nil {
		// The code is already burned; the user must request a new one.
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, user.ID, email, ErrServiceUnavailable, func() map[string]string {
			return map[string]string{"reason": "store_write_failed"}
		})
		return ErrServiceUnavailable
	}

	_ = e.limiter.ResetSignIn(ctx, email, clientIPFromContext(ctx))

	e.metricInc(MetricResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, email, nil, nil)

	return nil
}

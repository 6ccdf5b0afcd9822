package auth

import (
	"context"
	"errors"
)

// DeleteAccount permanently removes an account. A fresh password check
// is required even on an authenticated session, so a stolen token alone
// cannot destroy an account. Any live verification codes for the user
// are purged; outstanding session tokens die at their natural expiry.
func (e *Engine) DeleteAccount(ctx context.Context, userID, pw string) error {
	if e == nil || e.store == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrUnauthorized
	}

	user, err := e.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthorized
		}
		return ErrServiceUnavailable
	}

	release, err := e.acquireHashSlot(ctx)
	if err != nil {
		return ErrServiceUnavailable
	}
	ok, err := e.hasher.Verify(pw, user.PasswordHash)
	release()
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventAccountDeleted, false, user.ID, user.Email, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.store.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Lost a race with another delete; the account is gone
			// either way.
			return nil
		}
		return ErrServiceUnavailable
	}

	_ = e.codes.PurgeUser(ctx, user.ID, []string{
		PurposeEmailVerify.String(),
		PurposePasswordReset.String(),
		PurposeTwoFactorEnable.String(),
	})

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, user.ID, user.Email, nil, nil)

	return nil
}

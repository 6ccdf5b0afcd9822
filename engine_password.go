package auth

import (
	"context"
	"errors"
)

// ChangePassword replaces the password for an authenticated user after
// re-verifying the current one. The new password must satisfy the
// strength policy and differ from the current password. Existing
// session tokens stay valid; token revocation is a deliberate non-goal
// of the stateless session model.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPw, newPw string) error {
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
	ok, err := e.hasher.Verify(oldPw, user.PasswordHash)
	if err != nil || !ok {
		release()
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeInvalid, false, user.ID, user.Email, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if policyErr := e.validatePassword(newPw); policyErr != nil {
		release()
		e.emitAudit(ctx, auditEventPasswordChangeInvalid, false, user.ID, user.Email, ErrPasswordPolicy, func() map[string]string {
			return map[string]string{"reason": "password_policy"}
		})
		return ErrPasswordPolicy
	}

	if newPw == oldPw {
		release()
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeReuse, false, user.ID, user.Email, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.hasher.Hash(newPw)
	release()
	if err != nil {
		return ErrServiceUnavailable
	}

	if err := e.store.ReplacePasswordHash(ctx, user.ID, newHash); err != nil {
		return ErrServiceUnavailable
	}

	_ = e.limiter.ResetSignIn(ctx, user.Email, clientIPFromContext(ctx))

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, user.ID, user.Email, nil, nil)

	return nil
}

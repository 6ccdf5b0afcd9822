package auth

import (
	"context"
	"errors"
)

// RequestEmailVerification queues a fresh verification code for an
// authenticated user, replacing any code still active. Already-verified
// accounts get nothing and no error.
func (e *Engine) RequestEmailVerification(ctx context.Context, userID string) error {
	if e == nil || e.store == nil {
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
	if user.EmailVerified {
		return nil
	}

	if err := e.issueCode(ctx, PurposeEmailVerify, user, ""); err != nil {
		return ErrServiceUnavailable
	}

	e.metricInc(MetricEmailVerifyRequest)
	e.emitAudit(ctx, auditEventEmailVerifyRequest, true, user.ID, user.Email, nil, nil)

	return nil
}

// ConfirmEmail consumes a verification code and marks the account's
// email as verified. The transition is one-way; confirming an
// already-verified account with a stale code reports the code error, a
// fresh code reports success and changes nothing.
func (e *Engine) ConfirmEmail(ctx context.Context, userID, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrUnauthorized
	}
	if code == "" {
		return ErrCodeInvalid
	}

	user, err := e.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthorized
		}
		return ErrServiceUnavailable
	}

	if _, err := e.consumeCode(ctx, PurposeEmailVerify, user.ID, code); err != nil {
		switch {
		case errors.Is(err, ErrCodeExpired):
			e.metricInc(MetricEmailVerifyAttemptsExceeded)
		default:
			e.metricInc(MetricEmailVerifyFailure)
		}
		e.emitAudit(ctx, auditEventEmailVerifyConfirm, false, user.ID, user.Email, err, nil)
		return err
	}

	if !user.EmailVerified {
		if err := e.store.SetEmailVerified(ctx, user.ID); err != nil {
			return ErrServiceUnavailable
		}
	}

	e.metricInc(MetricEmailVerifySuccess)
	e.emitAudit(ctx, auditEventEmailVerifyConfirm, true, user.ID, user.Email, nil, nil)

	return nil
}

package auth

import (
	"context"
	"errors"

	"github.com/ledgerly/auth/internal/rate"
)

const maxDisplayNameLen = 100

// SignUp registers a new account and signs it in. The account starts
// with EmailVerified false; a verification code is queued for delivery
// and the account becomes verified only through [Engine.ConfirmEmail].
//
// Returns ErrDuplicateEmail when the address is already registered,
// ErrPasswordPolicy when the password fails the strength policy, and
// ErrRateLimited when the per-IP signup budget is exhausted.
func (e *Engine) SignUp(ctx context.Context, email, displayName, pw string) (*SignUpResult, error) {
	if e == nil || e.store == nil || e.hasher == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if err := e.validateEmail(email); err != nil {
		e.emitAudit(ctx, auditEventSignUpFailure, false, "", email, ErrValidation, func() map[string]string {
			return map[string]string{"reason": "invalid_email"}
		})
		return nil, ErrValidation
	}
	if displayName == "" || len(displayName) > maxDisplayNameLen {
		e.emitAudit(ctx, auditEventSignUpFailure, false, "", email, ErrValidation, func() map[string]string {
			return map[string]string{"reason": "invalid_display_name"}
		})
		return nil, ErrValidation
	}
	if err := e.validatePassword(pw); err != nil {
		e.emitAudit(ctx, auditEventSignUpFailure, false, "", email, ErrPasswordPolicy, func() map[string]string {
			return map[string]string{"reason": "password_policy"}
		})
		return nil, ErrPasswordPolicy
	}

	ip := clientIPFromContext(ctx)
	if err := e.limiter.CheckSignUp(ctx, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricSignUpRateLimited)
			e.emitAudit(ctx, auditEventSignUpRateLimited, false, "", email, ErrRateLimited, nil)
			e.emitRateLimit(ctx, "sign_up", email)
			return nil, ErrRateLimited
		}
		return nil, ErrServiceUnavailable
	}

	release, err := e.acquireHashSlot(ctx)
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	hash, err := e.hasher.Hash(pw)
	release()
	if err != nil {
		return nil, ErrServiceUnavailable
	}

	created, err := e.store.Create(ctx, CreateUserInput{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.metricInc(MetricSignUpDuplicate)
			e.emitAudit(ctx, auditEventSignUpDuplicate, false, "", email, ErrDuplicateEmail, nil)
			return nil, ErrDuplicateEmail
		}
		e.emitAudit(ctx, auditEventSignUpFailure, false, "", email, ErrServiceUnavailable, func() map[string]string {
			return map[string]string{"reason": "store_create_failed"}
		})
		return nil, ErrServiceUnavailable
	}

	tokenStr, err := e.tokens.Issue(created.ID)
	if err != nil {
		e.emitAudit(ctx, auditEventSignUpFailure, false, created.ID, email, ErrServiceUnavailable, func() map[string]string {
			return map[string]string{"reason": "token_issue_failed"}
		})
		return nil, ErrServiceUnavailable
	}

	// Verification code delivery is best-effort: a failed issue leaves
	// the account usable and RequestEmailVerification can retry.
	if err := e.issueCode(ctx, PurposeEmailVerify, created, ""); err == nil {
		e.metricInc(MetricEmailVerifyRequest)
		e.emitAudit(ctx, auditEventEmailVerifyRequest, true, created.ID, email, nil, nil)
	}

	e.metricInc(MetricSignUpSuccess)
	e.emitAudit(ctx, auditEventSignUpSuccess, true, created.ID, email, nil, nil)

	return &SignUpResult{
		User:  sanitizeUser(created),
		Token: tokenStr,
	}, nil
}

package auth

import (
	"context"
	"errors"

	"github.com/xlzd/gotp"
)

const totpSecretLength = 32

// EnableTwoFactor starts TOTP enrollment for an authenticated user.
// A provisional secret is generated and held inside the confirmation
// code record; nothing touches the account until [Engine.ConfirmTwoFactor]
// proves the user can produce codes from it. Calling again before
// confirming replaces both the secret and the code.
func (e *Engine) EnableTwoFactor(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrUnauthorized
	}

	user, err := e.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, ErrServiceUnavailable
	}
	if user.TwoFactorEnabled {
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, user.ID, user.Email, ErrTwoFactorEnabled, nil)
		return nil, ErrTwoFactorEnabled
	}

	secret := gotp.RandomSecret(totpSecretLength)
	uri := gotp.NewDefaultTOTP(secret).ProvisioningUri(user.Email, e.config.TwoFactor.Issuer)

	if err := e.issueCode(ctx, PurposeTwoFactorEnable, user, secret); err != nil {
		return nil, ErrServiceUnavailable
	}

	e.metricInc(MetricTwoFactorSetupRequested)
	e.emitAudit(ctx, auditEventTwoFactorSetupRequested, true, user.ID, user.Email, nil, nil)

	return &TwoFactorSetup{
		SecretBase32:    secret,
		ProvisioningURI: uri,
	}, nil
}

// ConfirmTwoFactor consumes the enrollment confirmation code and turns
// two-factor authentication on, persisting the secret that was staged
// at [Engine.EnableTwoFactor] time.
func (e *Engine) ConfirmTwoFactor(ctx context.Context, userID, code string) error {
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
	if user.TwoFactorEnabled {
		return ErrTwoFactorEnabled
	}

	secret, err := e.consumeCode(ctx, PurposeTwoFactorEnable, user.ID, code)
	if err != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, user.ID, user.Email, err, nil)
		return err
	}
	if secret == "" {
		// Record predates enrollment or was issued without a secret.
		return ErrCodeInvalid
	}

	if err := e.store.EnableTwoFactor(ctx, user.ID, secret); err != nil {
		return ErrServiceUnavailable
	}

	e.metricInc(MetricTwoFactorEnabled)
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, user.ID, user.Email, nil, nil)

	return nil
}

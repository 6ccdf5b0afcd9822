package auth

import "errors"

var (
	// ErrValidation reports a malformed or missing input field.
	ErrValidation = errors.New("invalid input")
	// ErrDuplicateEmail reports a signup against an already-registered email.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials is the single generic failure for signin and
	// re-authentication. It deliberately collapses "no such user" and
	// "wrong password" so responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenExpired reports a well-formed, correctly signed token whose
	// expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid reports any other token defect: bad signature,
	// malformed payload, wrong algorithm. A token either fully verifies or
	// is rejected; partial trust is never granted.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrCodeInvalid reports a verification code that does not match the
	// active code for its purpose, or a purpose with no active code.
	ErrCodeInvalid = errors.New("invalid verification code")
	// ErrCodeExpired reports a verification code past its TTL or burned by
	// the attempt cap.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrRateLimited reports a throttled signin or signup attempt.
	ErrRateLimited = errors.New("rate limited")
	// ErrPasswordPolicy reports a password that fails the strength policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse reports a password change where the new password
	// equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrTwoFactorEnabled reports a two-factor enablement request for an
	// account that already has two-factor auth active.
	ErrTwoFactorEnabled = errors.New("two-factor authentication already enabled")
	// ErrNotFound is returned by CredentialStore lookups for missing users.
	// It never crosses the trust boundary: flows convert it to
	// ErrInvalidCredentials (or swallow it) before returning.
	ErrNotFound = errors.New("user not found")
	// ErrUnauthorized reports a request that failed session authentication.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrServiceUnavailable is the opaque external form of any store or
	// backend failure. Details are logged and audited internally only.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrEngineNotReady reports use of an Engine that was not built with
	// its required dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)

package auth

import (
	"context"
	"time"
)

// CodePurpose identifies what a one-time verification code proves when
// consumed. Each purpose has at most one active code per user at a time.
type CodePurpose uint8

const (
	// PurposeEmailVerify marks codes that flip User.EmailVerified.
	PurposeEmailVerify CodePurpose = iota
	// PurposePasswordReset marks codes that authorize a password replace.
	PurposePasswordReset
	// PurposeTwoFactorEnable marks codes that flip User.TwoFactorEnabled.
	PurposeTwoFactorEnable
)

func (p CodePurpose) String() string {
	switch p {
	case PurposeEmailVerify:
		return "email_verify"
	case PurposePasswordReset:
		return "password_reset"
	case PurposeTwoFactorEnable:
		return "two_factor_enable"
	default:
		return "unknown"
	}
}

// User is the account record persisted by a [CredentialStore]. ID and
// Email are immutable after creation; PasswordHash is replaced only by
// ChangePassword/ResetPassword; EmailVerified and TwoFactorEnabled flip
// only through a successful code consumption.
type User struct {
	ID               string
	Email            string
	DisplayName      string
	PasswordHash     string
	EmailVerified    bool
	TwoFactorEnabled bool
	TwoFactorSecret  string
	CreatedAt        time.Time
}

// CreateUserInput is the input for [CredentialStore.Create].
type CreateUserInput struct {
	Email        string
	DisplayName  string
	PasswordHash string
}

// CredentialStore persists user records. Implementations must make Create
// an atomic check-and-insert on the (case-insensitive) email so two
// concurrent signups with the same email cannot both succeed, and must
// apply ReplacePasswordHash as a single write so no reader ever observes
// a half-written hash.
//
// Lookups return [ErrNotFound] for missing users and [ErrDuplicateEmail]
// for unique-email violations; any other failure is an infrastructure
// error and is surfaced by the Engine as [ErrServiceUnavailable].
type CredentialStore interface {
	Create(ctx context.Context, input CreateUserInput) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, userID string) (User, error)
	ReplacePasswordHash(ctx context.Context, userID, newHash string) error
	SetEmailVerified(ctx context.Context, userID string) error
	EnableTwoFactor(ctx context.Context, userID, secret string) error
	Delete(ctx context.Context, userID string) error
}

// CodeSender delivers a one-time code to a user out of band (email or
// SMS). The Engine never awaits delivery on a request path: sends are
// queued through an internal dispatcher and failures are logged, not
// surfaced.
type CodeSender interface {
	SendCode(ctx context.Context, email string, purpose CodePurpose, code string) error
}

// SignUpResult is returned by [Engine.SignUp]. The embedded User has an
// empty PasswordHash.
type SignUpResult struct {
	User  User
	Token string
}

// SignInResult is returned by [Engine.SignIn]. The embedded User has an
// empty PasswordHash.
type SignInResult struct {
	User  User
	Token string
}

// TwoFactorSetup is returned by [Engine.EnableTwoFactor]. SecretBase32 is
// the provisional TOTP secret; ProvisioningURI is the otpauth:// URI for
// authenticator apps. The secret is persisted on the account only after
// [Engine.ConfirmTwoFactor] consumes the confirmation code.
type TwoFactorSetup struct {
	SecretBase32    string
	ProvisioningURI string
}

package auth

import (
	"context"
	"errors"
	"testing"
)

func TestChangePasswordSuccess(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	te := newTestEngine(t, rdb, nil)
	ctx := context.Background()

	created := te.signUpUser(t, "ann@example.com", "Str0ng-pass")

	if err := te.engine.ChangePassword(ctx, created.User.ID, "Str0ng-pass", "N3w-secret!"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, err := te.engine.SignIn(ctx, "ann@example.com", "Str0ng-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := te.engine.SignIn(ctx, "ann@example.com", "N3w-secret!"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	// Stateless tokens issued before the change stay valid until expiry.
	if _, err := te.engine.VerifyToken(ctx, created.Token); err != nil {
		t.Fatalf("pre-change token invalidated: %v", err)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	te := newTestEngine(t, rdb, nil)
	ctx := context.Background()

	created := te.signUpUser(t, "ann@example.com", "Str0ng-pass")

	err := te.engine.ChangePassword(ctx, created.User.ID, "not-the-password", "N3w-secret!")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePasswordPolicyAndReuse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	te := newTestEngine(t, rdb, nil)
	ctx := context.Background()

	created := te.signUpUser(t, "ann@example.com", "Str0ng-pass")

	if err := te.engine.ChangePassword(ctx, created.User.ID, "Str0ng-pass", "weak"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("weak password: got %v", err)
	}
	if err := te.engine.ChangePassword(ctx, created.User.ID, "Str0ng-pass", "Str0ng-pass"); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("reuse: got %v", err)
	}

	// Neither rejection changed anything.
	if _, err := te.engine.SignIn(ctx, "ann@example.com", "Str0ng-pass"); err != nil {
		t.Fatalf("original password no longer works: %v", err)
	}
}

func TestChangePasswordUnknownUser(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	te := newTestEngine(t, rdb, nil)

	err := te.engine.ChangePassword(context.Background(), "ghost", "a", "N3w-secret!")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

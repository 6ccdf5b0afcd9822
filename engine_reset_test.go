package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

// Lost-password recovery end to end: request a code, confirm with it,
// sign in with the new password, and verify the code cannot be reused.
func TestPasswordResetFlow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	te := newTestEngine(t, rdb, nil)
	ctx := context.Background()

	te.signUpUser(t, "ann@example.com", "Old-pass-1")

	if err := te.engine.RequestPasswordReset(ctx, "ann@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	code := te.sender.lastCode(t, PurposePasswordReset, "ann@example.com")

	if err := te.engine.ResetPassword(ctx, "ann@example.com", code, "N3w-pass-9!"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := te.engine.SignIn(ctx, "ann@example.com", "Old-pass-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := te.engine.SignIn(ctx, "ann@example.com", "N3w-pass-9!"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	// Codes are single-use.
	err := te.engine.ResetPassword(ctx, "ann@example.com", code, "An0ther-pass!")
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("reused code: got %v", err)
	}
}

func TestRequestPasswordResetUnknownEmailReportsSuccess(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	te := newTestEngine(t, rdb, nil)

	if err := te.engine.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
}

func TestRequestPasswordResetThrottle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	te := newTestEngine(t, rdb, func(cfg *Config) {
		cfg.Throttle.MaxResetRequests = 2
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := te.engine.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	err := te.engine.RequestPasswordReset(ctx, "nobody@example.com")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestResetPasswordNewRequestReplacesOldCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	te := newTestEngine(t, rdb, nil)
	ctx := context.Background()

	te.signUpUser(t, "ann@example.com", "Old-pass-1")

	if err := te.engine.RequestPasswordReset(ctx, "ann@example.com"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	first := te.sender.lastCode(t, PurposePasswordReset, "ann@example.com")
	te.sender.clear(PurposePasswordReset, "ann@example.com")

	if err := te.engine.RequestPasswordReset(ctx, "ann@example.com"); err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	second := te.sender.lastCode(t, PurposePasswordReset, "ann@example.com")

	if first == second {
		t.Skip("codes collided; cannot distinguish replacement")
	}

	if err := te.engine.ResetPassword(ctx, "ann@example.com", first, "N3w-pass-9!"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("replaced code: got %v", err)
	}
	if err := te.engine.ResetPassword(ctx, "ann@example.com", second, "N3w-pass-9!"); err != nil {
		t.Fatalf("active code rejected: %v", err)
	}
}

func TestResetPasswordWeakNewPasswordKeepsCodeAlive(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	te := newTestEngine(t, rdb, nil)
	ctx := context.Background()

	te.signUpUser(t, "ann@example.com", "Old-pass-1")

	if err := te.engine.RequestPasswordReset(ctx, "ann@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	code := te.sender.lastCode(t, PurposePasswordReset, "ann@example.com")

	if err := te.engine.ResetPassword(ctx, "ann@example.com", code, "weak"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("weak password: got %v", err)
	}

	// Policy rejection happens before the consume, so the code survives.
	if err := te.engine.ResetPassword(ctx, "ann@example.com", code, "N3w-pass-9!"); err != nil {
		t.Fatalf("code was burned by policy rejection: %v", err)
	}
}

func TestResetPasswordAttemptCapBurnsCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	te := newTestEngine(t, rdb, func(cfg *Config) {
		cfg.Codes.MaxAttempts = 3
	})
	ctx := context.Background()

	te.signUpUser(t, "ann@example.com", "Old-pass-1")

	if err := te.engine.RequestPasswordReset(ctx, "ann@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	code := te.sender.lastCode(t, PurposePasswordReset, "ann@example.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 2; i++ {
		if err := te.engine.ResetPassword(ctx, "ann@example.com", wrong, "N3w-pass-9!"); !errors.Is(err, ErrCodeInvalid) {
			t.Fatalf("attempt %d: got %v", i, err)
		}
	}

	// Third wrong attempt hits the cap and deletes the record.
	if err := te.engine.ResetPassword(ctx, "ann@example.com", wrong, "N3w-pass-9!"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("cap attempt: got %v", err)
	}

	// Even the correct code is dead now.
	if err := te.engine.ResetPassword(ctx, "ann@example.com", code, "N3w-pass-9!"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("post-cap correct code: got %v", err)
	}
}

func TestResetPasswordExpiredCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	// Logical TTL already in the past; retention grace keeps the
	// record in Redis so the failure is reported as expiry.
	te := newTestEngine(t, rdb, func(cfg *Config) {
		cfg.Codes.TTL = time.Nanosecond
		cfg.Codes.RetentionGrace = time.Hour
	})
	ctx := context.Background()

	te.signUpUser(t, "ann@example.com", "Old-pass-1")

	if err := te.engine.RequestPasswordReset(ctx, "ann@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	code := te.sender.lastCode(t, PurposePasswordReset, "ann@example.com")

	// The logical expiry check is in whole seconds.
	time.Sleep(1100 * time.Millisecond)

	if err := te.engine.ResetPassword(ctx, "ann@example.com", code, "N3w-pass-9!"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestResetPasswordUnknownEmail(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	te := newTestEngine(t, rdb, nil)

	err := te.engine.ResetPassword(context.Background(), "nobody@example.com", "123456", "N3w-pass-9!")
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
}

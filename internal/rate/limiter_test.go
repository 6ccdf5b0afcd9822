package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, New(client, cfg)
}

func TestSignInBudgetAndReset(t *testing.T) {
	_, l := newTestLimiter(t, Config{
		MaxSignInAttempts: 3,
		SignInWindow:      time.Minute,
	})
	ctx := context.Background()

	// Fresh email passes.
	if err := l.CheckSignIn(ctx, "ann@example.com", ""); err != nil {
		t.Fatalf("fresh check: %v", err)
	}

	// Spend the budget.
	for i := 0; i < 3; i++ {
		if err := l.IncrementSignIn(ctx, "ann@example.com", ""); err != nil {
			t.Fatalf("increment %d: %v", i+1, err)
		}
	}
	if err := l.CheckSignIn(ctx, "ann@example.com", ""); err != nil {
		t.Fatalf("check at budget: %v", err)
	}
	if err := l.IncrementSignIn(ctx, "ann@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("increment over budget: got %v", err)
	}
	if err := l.CheckSignIn(ctx, "ann@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("check over budget: got %v", err)
	}

	attempts, err := l.GetSignInAttempts(ctx, "ann@example.com")
	if err != nil {
		t.Fatalf("GetSignInAttempts failed: %v", err)
	}
	if attempts != 4 {
		t.Fatalf("attempts = %d, want 4", attempts)
	}

	// Reset clears the counter.
	if err := l.ResetSignIn(ctx, "ann@example.com", ""); err != nil {
		t.Fatalf("ResetSignIn failed: %v", err)
	}
	if err := l.CheckSignIn(ctx, "ann@example.com", ""); err != nil {
		t.Fatalf("check after reset: %v", err)
	}
	attempts, _ = l.GetSignInAttempts(ctx, "ann@example.com")
	if attempts != 0 {
		t.Fatalf("attempts after reset = %d, want 0", attempts)
	}
}

func TestSignInWindowExpiry(t *testing.T) {
	mr, l := newTestLimiter(t, Config{
		MaxSignInAttempts: 1,
		SignInWindow:      time.Minute,
	})
	ctx := context.Background()

	_ = l.IncrementSignIn(ctx, "ann@example.com", "")
	if err := l.IncrementSignIn(ctx, "ann@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("over budget: got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)

	if err := l.CheckSignIn(ctx, "ann@example.com", ""); err != nil {
		t.Fatalf("check after window: %v", err)
	}
	if err := l.IncrementSignIn(ctx, "ann@example.com", ""); err != nil {
		t.Fatalf("increment after window: %v", err)
	}
}

func TestSignInIPThrottle(t *testing.T) {
	_, l := newTestLimiter(t, Config{
		EnableIPThrottle:  true,
		MaxSignInAttempts: 2,
		SignInWindow:      time.Minute,
	})
	ctx := context.Background()

	// Different emails from the same IP share the IP budget.
	_ = l.IncrementSignIn(ctx, "a@example.com", "10.0.0.1")
	_ = l.IncrementSignIn(ctx, "b@example.com", "10.0.0.1")
	if err := l.IncrementSignIn(ctx, "c@example.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("IP over budget: got %v", err)
	}
	if err := l.CheckSignIn(ctx, "d@example.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("check from throttled IP: got %v", err)
	}

	// A different IP is unaffected.
	if err := l.CheckSignIn(ctx, "d@example.com", "10.0.0.2"); err != nil {
		t.Fatalf("check from clean IP: %v", err)
	}
}

func TestSignUpBudget(t *testing.T) {
	_, l := newTestLimiter(t, Config{
		EnableIPThrottle:  true,
		MaxSignUpAttempts: 2,
		SignUpWindow:      time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckSignUp(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("sign-up %d: %v", i+1, err)
		}
	}
	if err := l.CheckSignUp(ctx, "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("sign-up over budget: got %v", err)
	}

	// Missing IP or disabled throttle never limits.
	if err := l.CheckSignUp(ctx, ""); err != nil {
		t.Fatalf("empty IP: %v", err)
	}
}

func TestSignUpDisabledThrottle(t *testing.T) {
	_, l := newTestLimiter(t, Config{
		MaxSignUpAttempts: 1,
		SignUpWindow:      time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.CheckSignUp(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("sign-up %d with throttle off: %v", i+1, err)
		}
	}
}

func TestResetRequestBudget(t *testing.T) {
	mr, l := newTestLimiter(t, Config{
		MaxResetRequests: 2,
		ResetWindow:      time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckResetRequest(ctx, "ann@example.com"); err != nil {
			t.Fatalf("reset request %d: %v", i+1, err)
		}
	}
	if err := l.CheckResetRequest(ctx, "ann@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("reset over budget: got %v", err)
	}

	// Budgets are per email.
	if err := l.CheckResetRequest(ctx, "bob@example.com"); err != nil {
		t.Fatalf("other email: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.CheckResetRequest(ctx, "ann@example.com"); err != nil {
		t.Fatalf("reset after window: %v", err)
	}
}

func TestRedisOutageSurfacesAsUnavailable(t *testing.T) {
	mr, l := newTestLimiter(t, Config{
		MaxSignInAttempts: 3,
		SignInWindow:      time.Minute,
	})
	mr.Close()

	err := l.CheckSignIn(context.Background(), "ann@example.com", "")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("outage: got %v", err)
	}
}

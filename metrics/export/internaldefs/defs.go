package internaldefs

import (
	"github.com/ledgerly/auth"
)

// CounterDef binds an engine counter to its exported metric name.
type CounterDef struct {
	ID   auth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported metric name.
type HistogramDef struct {
	ID   auth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: auth.MetricSignInSuccess, Name: "ledgerly_auth_sign_in_success_total", Help: "Successful sign-in attempts."},
	{ID: auth.MetricSignInFailure, Name: "ledgerly_auth_sign_in_failure_total", Help: "Failed sign-in attempts."},
	{ID: auth.MetricSignInRateLimited, Name: "ledgerly_auth_sign_in_rate_limited_total", Help: "Rate-limited sign-in attempts."},
	{ID: auth.MetricSignUpSuccess, Name: "ledgerly_auth_sign_up_success_total", Help: "Successful account creations."},
	{ID: auth.MetricSignUpDuplicate, Name: "ledgerly_auth_sign_up_duplicate_total", Help: "Sign-up attempts rejected as duplicate."},
	{ID: auth.MetricSignUpRateLimited, Name: "ledgerly_auth_sign_up_rate_limited_total", Help: "Rate-limited sign-up attempts."},
	{ID: auth.MetricPasswordChangeSuccess, Name: "ledgerly_auth_password_change_success_total", Help: "Successful password changes."},
	{ID: auth.MetricPasswordChangeInvalidOld, Name: "ledgerly_auth_password_change_invalid_old_total", Help: "Password change attempts with invalid current password."},
	{ID: auth.MetricPasswordChangeReuseRejected, Name: "ledgerly_auth_password_change_reuse_rejected_total", Help: "Password change attempts rejected for reuse."},
	{ID: auth.MetricResetRequest, Name: "ledgerly_auth_password_reset_request_total", Help: "Password reset requests."},
	{ID: auth.MetricResetConfirmSuccess, Name: "ledgerly_auth_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: auth.MetricResetConfirmFailure, Name: "ledgerly_auth_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: auth.MetricResetAttemptsExceeded, Name: "ledgerly_auth_password_reset_attempts_exceeded_total", Help: "Password reset codes invalidated by expiry or attempt cap."},
	{ID: auth.MetricEmailVerifyRequest, Name: "ledgerly_auth_email_verification_request_total", Help: "Email verification requests."},
	{ID: auth.MetricEmailVerifySuccess, Name: "ledgerly_auth_email_verification_success_total", Help: "Successful email verifications."},
	{ID: auth.MetricEmailVerifyFailure, Name: "ledgerly_auth_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: auth.MetricEmailVerifyAttemptsExceeded, Name: "ledgerly_auth_email_verification_attempts_exceeded_total", Help: "Email verification codes invalidated by expiry or attempt cap."},
	{ID: auth.MetricTwoFactorSetupRequested, Name: "ledgerly_auth_two_factor_setup_requested_total", Help: "Two-factor enrollment starts."},
	{ID: auth.MetricTwoFactorEnabled, Name: "ledgerly_auth_two_factor_enabled_total", Help: "Confirmed two-factor enrollments."},
	{ID: auth.MetricTwoFactorFailure, Name: "ledgerly_auth_two_factor_failure_total", Help: "Failed two-factor enrollment operations."},
	{ID: auth.MetricAccountDeleted, Name: "ledgerly_auth_account_deleted_total", Help: "Account delete operations."},
	{ID: auth.MetricRateLimitHit, Name: "ledgerly_auth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: auth.MetricMailQueued, Name: "ledgerly_auth_mail_queued_total", Help: "Code deliveries accepted by the mail queue."},
	{ID: auth.MetricMailDropped, Name: "ledgerly_auth_mail_dropped_total", Help: "Code deliveries dropped by mail queue backpressure."},
}

var HistogramDefs = []HistogramDef{
	{ID: auth.MetricVerifyLatency, Name: "ledgerly_auth_verify_latency_seconds", Help: "Token verification latency histogram."},
}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets widens a snapshot slice to the fixed bucket array,
// zero-filling when latency tracking was disabled.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// both exporters expose.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

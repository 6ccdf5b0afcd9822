// Package auth implements the credential and session lifecycle for the
// Ledgerly personal-finance backend: signup, signin, password change,
// one-time-code password reset, email verification, two-factor enablement,
// and re-authenticated account deletion.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// auth is the public surface. It exposes [Engine], [Builder], [Config],
// the [CredentialStore] and [CodeSender] integration interfaces, and value
// types (User, SignInResult, MetricsSnapshot, etc.). Internal coordination
// — code storage, rate limiting, audit dispatch — lives under internal/
// and is never exported. Password hashing and token signing live in the
// password/ and token/ subpackages so they can be reused and tested in
// isolation.
//
// # Performance contract
//
// VerifyToken is the hot path: it is a pure function of the token, the
// signing key, and the clock, and performs no store round-trips, so it is
// safe under unbounded concurrency. Password hashing is CPU-bound and is
// dispatched through a bounded semaphore so a burst of signups cannot
// stall unrelated requests.
package auth

// Package middleware exposes an HTTP middleware adapter for session
// enforcement built on top of auth.Engine token verification.
//
// [Guard] reads the Authorization header, calls Engine.VerifyToken and
// injects the authenticated user ID into the request context, where
// handlers retrieve it with [UserIDFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated
// to Engine.VerifyToken.
//
// # What this package must NOT do
//
//   - Parse or create session tokens directly (delegates to Engine).
//   - Distinguish missing, malformed and expired tokens in responses;
//     every rejection is a plain 401.
package middleware

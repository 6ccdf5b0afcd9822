// Package stores provides the Redis-backed store for short-lived
// verification codes backing email verification, password reset, and
// two-factor enrollment.
//
// # Design
//
// Each record is a versioned binary blob persisted in Redis under a
// (purpose, user) key with a TTL. Keying by purpose and user means
// issuing a new code overwrites the previous one, so at most one code
// per purpose is ever live for a user. Consumption runs a single Lua
// script: the entire check-consume-or-count-failure sequence is atomic
// on the Redis side, so two concurrent consumers of the same code can
// never both succeed. Records enforce attempt limits and are deleted
// on success, on lockout, and on expiry.
//
// Records carry a logical expiry inside the blob in addition to the
// Redis TTL. The physical TTL is padded by a retention grace so a code
// presented shortly after its logical expiry is reported as expired
// rather than unknown.
//
// # Architecture boundaries
//
// This package owns persistence and atomicity for code records. It
// does not generate codes, hash them, deliver them, or decide what a
// successful consume means. Those responsibilities belong to the
// engine flows in the root package.
package stores

// Package password provides Argon2id hashing with PHC-encoded output and
// constant-time verification.
//
// # Architecture boundaries
//
// This package owns hash generation, parameter encoding, and comparison.
// Password strength policy (length, character classes) belongs to the
// engine; concurrency bounding of hash computations belongs to the caller.
//
// # What this package must NOT do
//
//   - Perform I/O other than reading crypto/rand.
//   - Keep plaintext passwords alive beyond the call.
//   - Import the root auth package.
package password

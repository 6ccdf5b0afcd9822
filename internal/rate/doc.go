// Package rate provides the Redis-backed fixed-window counters that
// throttle security-sensitive authentication operations.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - as:  — sign-in per-email
//   - asi: — sign-in per-IP
//   - au:  — sign-up per-IP
//   - ap:  — reset-request per-email
//
// # What this package must NOT do
//
//   - Make authentication decisions or inspect credentials.
//   - Be imported outside this module.
package rate

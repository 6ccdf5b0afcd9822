// Package token issues and verifies stateless signed session tokens.
//
// A token is a JWT carrying {sub: userID, iat, exp, iss} signed with a
// server-held secret (HS256) or key pair (Ed25519). Validity is a pure
// function of the token, the key, and the clock: verification performs no
// store round-trips and is safe under unbounded concurrency.
//
// Verification is all-or-nothing. [Manager.Verify] returns [ErrExpired]
// only for a correctly signed token past its expiry; every other defect —
// bad signature, wrong algorithm, malformed payload, missing subject —
// returns [ErrInvalid].
package token

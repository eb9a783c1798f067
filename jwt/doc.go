// Package jwt mints and validates the HS256 tokens used by the admin
// backend: 60-second access tokens carrying {userId, clientAccessIp} and
// 7-day refresh artifacts carrying {userId, type:"refresh"}.
//
// Validation distinguishes two failure classes. [ErrTokenExpired] means
// the token is structurally and cryptographically sound but past its exp;
// the holder should refresh. [ErrTokenInvalid] covers everything else
// (bad signature, issuer, audience, malformed payload); the holder must
// re-authenticate. The refresh flow relies on
// [Manager.ParseAccessAllowExpired], which waives only the expiry check —
// signature, issuer, and audience are always enforced.
package jwt

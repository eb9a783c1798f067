// Package kadmin implements the authentication core of a phone+password
// admin backend: short-lived JWT access tokens, server-tracked refresh
// records, SMS verification codes, and per-IP/per-phone send throttling.
//
// The package is organized around an [Engine] that owns the token manager,
// the Redis-backed ephemeral stores, and the rate limiter. HTTP concerns
// live in the middleware subpackage (ordered guard chains over net/http),
// and the browser-side refresh coordination is modeled by the client
// subpackage (single-flight refresh with a FIFO replay queue).
//
// Access tokens live for 60 seconds; refresh records for 7 days. The
// deliberately short access lifetime keeps the refresh path hot and makes
// the single-flight coordination observable under test.
package kadmin

// Package rate gates SMS issuance with Redis-backed daily counters: a
// per-IP cap, a per-phone cap, and a minimum interval between sends to
// the same phone. Checking and counting are separate operations so that
// rejected attempts never inflate the counters.
package rate

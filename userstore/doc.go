// Package userstore ships the credential-store implementations behind
// the engine's UserProvider interface: a SQLite store for deployments
// and an in-memory store for tests and examples.
package userstore

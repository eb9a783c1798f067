// Package password hashes and verifies admin passwords with argon2id,
// serialized in PHC string format. Length policy is enforced at the
// request validation layer, not here.
package password

// Package stores holds the Redis-backed TTL record stores: one refresh
// record per user and one SMS code per phone. Records are JSON blobs
// carrying an explicit expiresAt epoch-millisecond field in addition to
// the store-level TTL, so expiry survives even when a key outlives its
// Redis TTL (lazy deletion on read).
package stores

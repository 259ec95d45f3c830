// Package store keeps pushed log streams in memory, keyed by the fingerprint
// of their label set, with per-stream entry caps and TTL eviction.
package store

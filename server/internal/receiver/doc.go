// Package receiver implements the sink's HTTP surface: a Loki-compatible
// push endpoint, a stream listing API and a readiness probe.
//
// POST /loki/api/v1/push accepts a JSON push request, optionally
// gzip-compressed (Content-Encoding: gzip). Empty or malformed payloads are
// rejected with 400 before anything is stored; accepted pushes get 204.
// Authentication is enforced upstream by the auth middleware, so the receiver
// only performs structural validation.
//
// GET /api/streams returns the live streams, optionally filtered by exact
// label matches given as query parameters. GET /ready always answers 200.
package receiver

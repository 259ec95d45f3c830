// Package types defines shared Go types used by both the agent and the sink:
// the structured log Record handed to the shipper, its severity Level, and
// the Loki push-API payload (PushRequest / Stream) exchanged over HTTP.
package types

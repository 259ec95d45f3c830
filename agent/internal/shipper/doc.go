// Package shipper forwards structured log records to a Loki-compatible
// aggregator over the HTTP push API.
//
// Shipper.Ship() is synchronous and never fails from the caller's point of
// view: each call builds one stream with one (timestamp, line) value, wraps
// it in a push envelope and POSTs it as JSON. Records below the configured
// minimum level are dropped before any work is done.
//
// Labels are the configured static labels plus "level" (lower-case) and
// "channel"; the computed pair wins on key collision. The line is a JSON
// object with message, datetime, level_name, channel and the shallow merge
// of the record's context and extra maps (extra wins).
//
// Delivery failures (transport errors, non-2xx responses) are classified
// into a Result, counted in Metrics and reported once on the diagnostics
// logger. They are never returned to the caller and never retried.
//
// The entry timestamp is truncated to whole seconds by default so entries
// line up with the second-resolution "datetime" field. Set
// timestamp_precision: nanosecond to keep sub-second ordering.
package shipper

// Package slogbridge adapts the shipper to log/slog so a Go program can use
// a Loki aggregator as its logging backend.
//
// NewHandler(shipper, opts) returns a slog.Handler that converts each
// slog.Record into a types.Record: the slog level maps onto the nearest
// severity, attributes become the record context (groups become nested
// objects) and, with AddSource, the call site lands in the record's extra
// map. Handle hands the record to Ship, which never fails, so Handle always
// returns nil.
//
// Tee(handlers...) fans records out to several handlers, e.g. stdout plus a
// bridge handler, so a program can keep local logs while shipping them.
package slogbridge

// Package pipeline feeds decoded input lines to the shipper through a fixed
// pool of worker goroutines.
//
// Run reads lines from an io.Reader, decodes each with an ingest.Decoder and
// pushes the records concurrently. The Pusher is looked up per record so a
// config reload can swap the shipper while a run is in progress. Undecodable
// lines are logged and counted, never shipped.
package pipeline

package types

import "time"

// Record is one structured log record as produced by an application logging
// pipeline. Time, Level, Channel and Message are always set; Context and Extra
// may be nil.
type Record struct {
	Time    time.Time
	Level   Level
	Channel string
	Message string

	// Context carries call-site data (exception details, file/line, ids).
	Context map[string]any

	// Extra carries data attached by processors. It is merged over Context
	// when the record is serialized.
	Extra map[string]any
}

// MergedContext returns a new map holding Context overlaid with Extra.
// The merge is shallow: a key present in both takes the Extra value.
func (r Record) MergedContext() map[string]any {
	out := make(map[string]any, len(r.Context)+len(r.Extra))
	for k, v := range r.Context {
		out[k] = v
	}
	for k, v := range r.Extra {
		out[k] = v
	}
	return out
}

package types

// PushPath is the Loki HTTP push endpoint, relative to the aggregator base URL.
const PushPath = "/loki/api/v1/push"

// Stream is one label set plus its (timestamp, line) pairs.
type Stream struct {
	// Stream holds the label key/value pairs, e.g. {"level": "error", "channel": "app"}.
	Stream map[string]string `json:"stream"`
	// Values holds [unix-nanoseconds-as-string, line] pairs.
	Values [][2]string `json:"values"`
}

// PushRequest is the JSON body of a Loki push call.
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

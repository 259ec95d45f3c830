package receiver

// StreamsResponse is the body of GET /api/streams.
type StreamsResponse struct {
	Streams []StreamResponse `json:"streams"`
}

// StreamResponse is one stored stream. Stream and Values use the push
// payload's field names so a response can be replayed as a push.
type StreamResponse struct {
	Fingerprint string            `json:"fingerprint"`
	Stream      map[string]string `json:"stream"`
	Values      [][2]string       `json:"values"`
	UpdatedAt   string            `json:"updated_at"`
}

// pushPayload is the push body as received. Values are decoded without a
// fixed arity so that short or long entries can be rejected.
type pushPayload struct {
	Streams []struct {
		Stream map[string]string `json:"stream"`
		Values [][]string        `json:"values"`
	} `json:"streams"`
}

type errorResponse struct {
	Error string `json:"error"`
}

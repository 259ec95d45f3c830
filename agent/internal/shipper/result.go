package shipper

// Outcome classifies what happened to one record.
type Outcome string

const (
	// OutcomeDelivered means the aggregator answered 2xx.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeFilteredOut means the record was below the minimum level.
	OutcomeFilteredOut Outcome = "filtered_out"
	// OutcomeTransportError covers DNS, connect, TLS and timeout failures.
	OutcomeTransportError Outcome = "transport_error"
	// OutcomeRemoteRejected means the aggregator answered non-2xx.
	OutcomeRemoteRejected Outcome = "remote_rejected"
)

var outcomes = []Outcome{
	OutcomeDelivered,
	OutcomeFilteredOut,
	OutcomeTransportError,
	OutcomeRemoteRejected,
}

// Result is the internal account of one push attempt.
type Result struct {
	Outcome Outcome

	// RequestID is the X-Request-ID sent with the push. Empty when filtered.
	RequestID string

	// StatusCode is the HTTP status, 0 when no response was received.
	StatusCode int

	// Body holds the (truncated) response body of a rejected push.
	Body string

	// Err describes the failure for TransportError and RemoteRejected.
	Err error

	// Degraded is set when some context values could not be encoded as JSON
	// and were replaced by their string form.
	Degraded bool
}

// Failed reports whether the push was attempted and did not succeed.
func (r Result) Failed() bool {
	return r.Outcome == OutcomeTransportError || r.Outcome == OutcomeRemoteRejected
}

// Package tail implements live tailing for logshipper-sink over WebSocket.
//
// Hub keeps a set of connected clients and forwards every accepted push to
// them as it arrives. Clients pick streams with exact label matches passed as
// query parameters when connecting.
//
// New() creates a Hub.
// Hub.Run(ctx) blocks until ctx is cancelled, then closes all active connections.
// Hub.Publish(streams) is called by the receiver after a push is stored.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket and streams matching
// pushes until the client disconnects.
//
// Message format sent to clients (the push request shape):
//
//	{"streams": [{"stream": {"channel": "app", "level": "error"}, "values": [["<ns>", "<line>"]]}]}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /loki/api/v1/tail by the sink.
package tail

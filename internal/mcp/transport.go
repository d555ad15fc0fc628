package mcp

import "context"

// Transport carries JSON-RPC messages to the widget server. The two
// implementations are StdioTransport (server runs as a subprocess,
// newline-delimited messages) and HTTPTransport (one POST per
// message). The Client is transport-agnostic; pick one at wiring time
// from the mcp section of the config.
type Transport interface {
	// Send delivers a request and blocks for its response. Framing,
	// encoding, and reply correlation are the transport's problem;
	// cancelling ctx abandons the exchange.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Notify delivers a notification. No reply is awaited.
	Notify(ctx context.Context, notif *Notification) error

	// Close releases the transport. StdioTransport kills the server
	// subprocess; HTTPTransport has nothing to release.
	Close() error
}

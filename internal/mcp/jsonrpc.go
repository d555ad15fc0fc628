package mcp

import (
	"encoding/json"
	"fmt"
)

// jsonrpcVersion is stamped on every message; the widget server
// rejects anything else.
const jsonrpcVersion = "2.0"

// Request is one JSON-RPC 2.0 call to the widget server. IDs are
// assigned by the client and correlate the reply on transports that
// can interleave messages.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Notification is a fire-and-forget message: no ID, no reply. The only
// one this client sends is notifications/initialized after the
// handshake.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a request for the given method and params.
func NewRequest(id int64, method string, params any) *Request {
	return &Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}
}

// NewNotification builds a notification for the given method and params.
func NewNotification(method string, params any) *Notification {
	return &Notification{JSONRPC: jsonrpcVersion, Method: method, Params: params}
}

// Response is the server's reply to one Request. A well-formed reply
// carries exactly one of Result or Error; Result stays raw because
// each method decodes into its own shape.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Err returns the response's error object as a Go error, or nil on
// success.
func (r *Response) Err() error {
	if r.Error != nil {
		return r.Error
	}
	return nil
}

// RPCError is the protocol-level error object. Tool-level failures do
// not use it; they come back as ToolResult.IsError so the model can
// see them.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

// mockTransport replays canned responses keyed by method and records
// the requests and notifications it saw.
type mockTransport struct {
	responses     map[string]json.RawMessage
	errors        map[string]*RPCError
	requests      []*Request
	notifications []*Notification
	closed        bool
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		responses: map[string]json.RawMessage{},
		errors:    map[string]*RPCError{},
	}
}

func (m *mockTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	m.requests = append(m.requests, req)
	if rpcErr, ok := m.errors[req.Method]; ok {
		return &Response{JSONRPC: jsonrpcVersion, ID: req.ID, Error: rpcErr}, nil
	}
	result, ok := m.responses[req.Method]
	if !ok {
		return nil, fmt.Errorf("unexpected method %s", req.Method)
	}
	return &Response{JSONRPC: jsonrpcVersion, ID: req.ID, Result: result}, nil
}

func (m *mockTransport) Notify(ctx context.Context, notif *Notification) error {
	m.notifications = append(m.notifications, notif)
	return nil
}

func (m *mockTransport) Close() error {
	m.closed = true
	return nil
}

func (m *mockTransport) withInit() *mockTransport {
	m.responses["initialize"] = json.RawMessage(`{
		"protocolVersion": "2024-11-05",
		"serverInfo": {"name": "test-server", "version": "0.1.0"}
	}`)
	return m
}

func TestInitializeHandshake(t *testing.T) {
	mt := newMockTransport().withInit()
	client := NewClient(mt, nil)

	if err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if len(mt.requests) != 1 || mt.requests[0].Method != "initialize" {
		t.Fatalf("expected one initialize request, got %+v", mt.requests)
	}
	if len(mt.notifications) != 1 || mt.notifications[0].Method != "notifications/initialized" {
		t.Fatalf("expected initialized notification, got %+v", mt.notifications)
	}
	if got := client.ServerInfo()["name"]; got != "test-server" {
		t.Errorf("server name = %v, want test-server", got)
	}

	// Second Initialize is a no-op.
	if err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	if len(mt.requests) != 1 {
		t.Errorf("handshake repeated: %d requests", len(mt.requests))
	}
}

func TestListToolsCached(t *testing.T) {
	mt := newMockTransport().withInit()
	mt.responses["tools/list"] = json.RawMessage(`{
		"tools": [
			{"name": "get-stock-price", "description": "Quote a ticker",
			 "inputSchema": {"type": "object", "properties": {"symbol": {"type": "string"}}}},
			{"name": "list-events", "description": "Upcoming calendar events"}
		]
	}`)
	client := NewClient(mt, nil)

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(tools))
	}
	if tools[0].Name != "get-stock-price" {
		t.Errorf("tool[0].Name = %q", tools[0].Name)
	}
	if tools[0].InputSchema["type"] != "object" {
		t.Errorf("tool[0] schema not decoded: %v", tools[0].InputSchema)
	}

	before := len(mt.requests)
	if _, err := client.ListTools(context.Background()); err != nil {
		t.Fatalf("second ListTools failed: %v", err)
	}
	if len(mt.requests) != before {
		t.Errorf("tools/list not cached: %d new requests", len(mt.requests)-before)
	}
}

func TestCallTool(t *testing.T) {
	mt := newMockTransport().withInit()
	mt.responses["tools/call"] = json.RawMessage(`{
		"content": [{"type": "text", "text": "{\"symbol\": \"ACME\", \"price\": 42.5}"}]
	}`)
	client := NewClient(mt, nil)

	result, err := client.CallTool(context.Background(), "get-stock-price", map[string]any{"symbol": "ACME"})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if result.IsError {
		t.Error("unexpected IsError")
	}
	if got := result.Text(); got != `{"symbol": "ACME", "price": 42.5}` {
		t.Errorf("Text() = %q", got)
	}

	// Handshake runs lazily before the call.
	if mt.requests[0].Method != "initialize" {
		t.Errorf("first request = %s, want initialize", mt.requests[0].Method)
	}
}

func TestCallToolNilArguments(t *testing.T) {
	mt := newMockTransport().withInit()
	mt.responses["tools/call"] = json.RawMessage(`{"content": []}`)
	client := NewClient(mt, nil)

	if _, err := client.CallTool(context.Background(), "list-events", nil); err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}

	last := mt.requests[len(mt.requests)-1]
	params, ok := last.Params.(map[string]any)
	if !ok {
		t.Fatalf("params type %T", last.Params)
	}
	if params["arguments"] == nil {
		t.Error("nil arguments not replaced with empty map")
	}
}

func TestCallToolRPCError(t *testing.T) {
	mt := newMockTransport().withInit()
	mt.errors["tools/call"] = &RPCError{Code: -32602, Message: "unknown tool"}
	client := NewClient(mt, nil)

	_, err := client.CallTool(context.Background(), "nope", nil)
	if err == nil {
		t.Fatal("expected error for RPC failure")
	}
}

func TestListResources(t *testing.T) {
	mt := newMockTransport().withInit()
	mt.responses["resources/list"] = json.RawMessage(`{
		"resources": [
			{"uri": "wip://widgets/stock-card", "name": "stock-card", "mimeType": "application/json"},
			{"uri": "file://README", "name": "readme"}
		]
	}`)
	client := NewClient(mt, nil)

	resources, err := client.ListResources(context.Background())
	if err != nil {
		t.Fatalf("ListResources failed: %v", err)
	}
	if len(resources) != 2 {
		t.Fatalf("got %d resources, want 2", len(resources))
	}
	if resources[0].URI != "wip://widgets/stock-card" {
		t.Errorf("resource[0].URI = %q", resources[0].URI)
	}
}

func TestReadResource(t *testing.T) {
	mt := newMockTransport().withInit()
	mt.responses["resources/read"] = json.RawMessage(`{
		"contents": [{"uri": "wip://widgets/stock-card", "text": "{\"uri\": \"wip://widgets/stock-card\"}"}]
	}`)
	client := NewClient(mt, nil)

	text, err := client.ReadResource(context.Background(), "wip://widgets/stock-card")
	if err != nil {
		t.Fatalf("ReadResource failed: %v", err)
	}
	if text != `{"uri": "wip://widgets/stock-card"}` {
		t.Errorf("text = %q", text)
	}
}

func TestReadResourceEmpty(t *testing.T) {
	mt := newMockTransport().withInit()
	mt.responses["resources/read"] = json.RawMessage(`{"contents": []}`)
	client := NewClient(mt, nil)

	if _, err := client.ReadResource(context.Background(), "wip://widgets/missing"); err == nil {
		t.Fatal("expected error for empty contents")
	}
}

func TestClose(t *testing.T) {
	mt := newMockTransport()
	client := NewClient(mt, nil)
	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !mt.closed {
		t.Error("transport not closed")
	}
}

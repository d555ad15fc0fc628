package wipserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/wiplab/wip-agent/internal/buildinfo"
	"github.com/wiplab/wip-agent/internal/mcp"
	"github.com/wiplab/wip-agent/internal/widget"
)

const protocolVersion = "2024-11-05"

// Server is an MCP server over a widget manifest catalog and a tool
// registry. It is transport-agnostic: RunStdio and ServeHTTP both
// funnel into handleMessage.
type Server struct {
	registry  *Registry
	manifests []*widget.Manifest
	logger    *slog.Logger
}

// New creates a server over the given registry and manifest catalog.
func New(registry *Registry, manifests []*widget.Manifest, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry:  registry,
		manifests: manifests,
		logger:    logger.With("component", "wipserver"),
	}
}

// LoadManifests loads the widget catalog from a directory, logging and
// skipping files that fail to parse.
func (s *Server) LoadManifests(dir string) error {
	manifests, errs := widget.LoadDir(dir)
	for _, err := range errs {
		s.logger.Warn("skipping manifest", "error", err)
	}
	if len(manifests) == 0 && len(errs) > 0 {
		return fmt.Errorf("no usable manifests in %s", dir)
	}
	s.manifests = manifests
	s.logger.Info("manifests loaded", "dir", dir, "count", len(manifests))
	return nil
}

// RunStdio serves newline-delimited JSON-RPC on the given streams
// until EOF or context cancellation.
func (s *Server) RunStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	writer := bufio.NewWriter(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		reply := s.handleMessage(ctx, line)
		if reply == nil {
			continue // notification
		}
		if _, err := writer.Write(append(reply, '\n')); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
		if err := writer.Flush(); err != nil {
			return fmt.Errorf("flush reply: %w", err)
		}
	}
	return scanner.Err()
}

// ServeHTTP implements http.Handler: one JSON-RPC message per POST.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	reply := s.handleMessage(r.Context(), body)
	if reply == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(reply)
}

// incoming is the wire shape of a request or notification. A missing
// id marks a notification.
type incoming struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// handleMessage dispatches one message. Notifications return nil.
func (s *Server) handleMessage(ctx context.Context, raw []byte) []byte {
	var msg incoming
	if err := json.Unmarshal(raw, &msg); err != nil {
		return s.errorReply(0, -32700, "parse error")
	}
	if msg.ID == nil {
		s.logger.Debug("notification received", "method", msg.Method)
		return nil
	}

	result, rpcErr := s.dispatch(ctx, msg.Method, msg.Params)
	if rpcErr != nil {
		return s.errorReply(*msg.ID, rpcErr.Code, rpcErr.Message)
	}
	reply, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      *msg.ID,
		"result":  result,
	})
	if err != nil {
		return s.errorReply(*msg.ID, -32603, "marshal result")
	}
	return reply
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (any, *mcp.RPCError) {
	switch method {
	case "initialize":
		return map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools":     map[string]any{},
				"resources": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    "wip-server",
				"version": buildinfo.Version,
			},
		}, nil

	case "ping":
		return map[string]any{}, nil

	case "tools/list":
		return s.toolsList(), nil

	case "tools/call":
		return s.toolsCall(ctx, params)

	case "resources/list":
		return s.resourcesList(), nil

	case "resources/read":
		return s.resourcesRead(params)

	default:
		return nil, &mcp.RPCError{Code: -32601, Message: "method not found: " + method}
	}
}

func (s *Server) toolsList() map[string]any {
	tools := make([]map[string]any, 0)
	for _, t := range s.registry.List() {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": params,
		})
	}
	return map[string]any{"tools": tools}
}

func (s *Server) toolsCall(ctx context.Context, params json.RawMessage) (any, *mcp.RPCError) {
	var call struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &mcp.RPCError{Code: -32602, Message: "invalid tools/call params"}
	}

	tool, ok := s.registry.Get(call.Name)
	if !ok {
		return nil, &mcp.RPCError{Code: -32602, Message: "unknown tool: " + call.Name}
	}

	text, err := tool.Handler(ctx, call.Arguments)
	if err != nil {
		// Tool-level failure travels in the result, not as an RPC error.
		s.logger.Warn("tool failed", "tool", call.Name, "error", err)
		return map[string]any{
			"content": []map[string]any{{"type": "text", "text": err.Error()}},
			"isError": true,
		}, nil
	}
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	}, nil
}

func (s *Server) resourcesList() map[string]any {
	resources := make([]map[string]any, 0, len(s.manifests))
	for _, m := range s.manifests {
		resources = append(resources, map[string]any{
			"uri":         m.URI,
			"name":        m.Name,
			"description": m.Description,
			"mimeType":    "application/json",
		})
	}
	return map[string]any{"resources": resources}
}

func (s *Server) resourcesRead(params json.RawMessage) (any, *mcp.RPCError) {
	var req struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &mcp.RPCError{Code: -32602, Message: "invalid resources/read params"}
	}
	for _, m := range s.manifests {
		if m.URI == req.URI {
			return map[string]any{
				"contents": []map[string]any{{
					"uri":      m.URI,
					"mimeType": "application/json",
					"text":     m.Raw,
				}},
			}, nil
		}
	}
	return nil, &mcp.RPCError{Code: -32002, Message: "resource not found: " + req.URI}
}

func (s *Server) errorReply(id int64, code int, message string) []byte {
	reply, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]any{"code": code, "message": message},
	})
	return reply
}

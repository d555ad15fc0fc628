// Package orchestrator runs chat turns. A turn takes one user message,
// shows the model the relevant widget catalog, loops over tool calls
// against the MCP server until the model produces a final answer, then
// validates that answer into the widget-selection contract.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wiplab/wip-agent/internal/llm"
	"github.com/wiplab/wip-agent/internal/mcp"
	"github.com/wiplab/wip-agent/internal/memory"
	"github.com/wiplab/wip-agent/internal/rag"
	"github.com/wiplab/wip-agent/internal/widget"
)

// ErrTurnInFlight is returned when a turn is requested for a session
// that already has one running.
var ErrTurnInFlight = errors.New("turn already in flight for session")

// Tool-error policies. Report feeds tool failures back to the model as
// tool results; abort fails the turn on the first tool-level error.
const (
	ToolErrorsReport = "report"
	ToolErrorsAbort  = "abort"
)

// DefaultSystemPrompt is pinned into every session unless overridden.
const DefaultSystemPrompt = `You are an assistant embedded in an application that can render UI widgets.
When a widget from the available list fits the user's request, answer with a JSON object:
{"uri": "<widget uri>", "parameters": [{"name": "...", "value": "..."}], "text": "<assistant text>"}
Populate parameters according to the widget's input schema. If no widget fits,
use an empty uri and empty parameters and answer in text alone.
Use the provided tools to fetch any data you need before answering.`

// ToolBackend is the slice of the MCP client the orchestrator drives.
type ToolBackend interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (*mcp.ToolResult, error)
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ReadResource(ctx context.Context, uri string) (string, error)
}

// TurnMessage is one outward-facing message from a turn: either the
// record of one executed tool call or the final assistant answer.
type TurnMessage struct {
	Role      string         `json:"role"` // "tool" or "assistant"
	Tool      string         `json:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
	Content   string         `json:"content,omitempty"`
}

// TurnResult is the outcome of one completed turn: zero or more tool
// messages in execution order, closed by exactly one assistant message
// carrying the validated answer serialized as text.
type TurnResult struct {
	SessionID string          `json:"session_id"`
	Messages  []TurnMessage   `json:"messages"`
	Answer    ValidatedAnswer `json:"answer"`
	Raw       string          `json:"raw"`
	Repaired  bool            `json:"repaired"`
	ToolCalls int             `json:"tool_calls"`
	Model     string          `json:"model,omitempty"`
}

// Orchestrator wires the completion client, the MCP backend, session
// memory and the optional retriever into the turn loop.
type Orchestrator struct {
	llm          llm.Client
	backend      ToolBackend
	store        *memory.Store
	archive      *memory.Archive // optional
	retriever    rag.Retriever   // optional; nil means full catalog
	logger       *slog.Logger
	systemPrompt string
	toolErrors   string
	topK         int
}

// Options configures an Orchestrator.
type Options struct {
	SystemPrompt string
	ToolErrors   string // "report" (default) or "abort"
	TopK         int    // retriever result budget
	Archive      *memory.Archive
	Retriever    rag.Retriever
}

// New creates an Orchestrator.
func New(client llm.Client, backend ToolBackend, store *memory.Store, logger *slog.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.ToolErrors == "" {
		opts.ToolErrors = ToolErrorsReport
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &Orchestrator{
		llm:          client,
		backend:      backend,
		store:        store,
		archive:      opts.Archive,
		retriever:    opts.Retriever,
		logger:       logger.With("component", "orchestrator"),
		systemPrompt: opts.SystemPrompt,
		toolErrors:   opts.ToolErrors,
		topK:         opts.TopK,
	}
}

// RunTurn executes one full turn for the session. At most one turn per
// session runs at a time; a second concurrent call fails fast with
// ErrTurnInFlight.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID, userMessage string) (*TurnResult, error) {
	return o.RunTurnObserved(ctx, sessionID, userMessage, nil)
}

// RunTurnObserved is RunTurn with a streaming hook: observe is called
// with each outward message as it is produced (tool messages during
// the loop, the assistant message at the end). A nil observe is
// allowed.
func (o *Orchestrator) RunTurnObserved(ctx context.Context, sessionID, userMessage string, observe func(TurnMessage)) (*TurnResult, error) {
	if !o.store.BeginTurn(sessionID) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrTurnInFlight)
	}
	defer o.store.EndTurn(sessionID)

	o.store.PinSystem(sessionID, o.systemPrompt)

	widgetDocs, err := o.widgetsForTurn(ctx, userMessage)
	if err != nil {
		return nil, fmt.Errorf("collect widgets: %w", err)
	}
	visible := visibleURIs(widgetDocs)

	prompt := ComposePrompt(userMessage, widgetDocs)
	o.store.Append(sessionID, llm.Message{Role: llm.RoleUser, Content: prompt})
	o.record(ctx, sessionID, llm.RoleUser, prompt)

	tools, err := o.toolCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	result := &TurnResult{SessionID: sessionID}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := o.llm.Chat(ctx, o.store.History(sessionID), tools, "auto")
		if err != nil {
			return nil, fmt.Errorf("completion: %w", err)
		}
		result.Model = resp.Model

		if len(resp.Message.ToolCalls) == 0 {
			result.Raw = resp.Message.Content
			break
		}

		o.store.Append(sessionID, resp.Message)
		if calls, err := json.Marshal(resp.Message.ToolCalls); err == nil {
			o.record(ctx, sessionID, llm.RoleAssistant, string(calls))
		}
		if err := o.executeToolCalls(ctx, sessionID, resp.Message.ToolCalls, result, observe); err != nil {
			return nil, err
		}
	}

	answer, repaired, err := o.validate(ctx, result.Raw, visible)
	if err != nil {
		return nil, fmt.Errorf("validate answer: %w", err)
	}
	result.Answer = *answer
	result.Repaired = repaired

	serialized, err := json.Marshal(answer)
	if err != nil {
		return nil, fmt.Errorf("serialize answer: %w", err)
	}
	emit(result, observe, TurnMessage{
		Role:    llm.RoleAssistant,
		Content: string(serialized),
	})

	// The normalized answer, not the model's raw text, is what later
	// turns condition on: after a repair the raw prose was never
	// emitted anywhere.
	o.store.Append(sessionID, llm.Message{Role: llm.RoleAssistant, Content: string(serialized)})
	o.record(ctx, sessionID, llm.RoleAssistant, string(serialized))

	o.logger.Info("turn complete",
		"session", sessionID,
		"tool_calls", result.ToolCalls,
		"widget", result.Answer.URI,
		"repaired", result.Repaired)
	return result, nil
}

// emit records an outward message and forwards it to the observer.
func emit(result *TurnResult, observe func(TurnMessage), msg TurnMessage) {
	result.Messages = append(result.Messages, msg)
	if observe != nil {
		observe(msg)
	}
}

// executeToolCalls runs each requested tool and appends the results as
// tool messages. Unparsable arguments degrade to an empty object.
func (o *Orchestrator) executeToolCalls(ctx context.Context, sessionID string, calls []llm.ToolCall, result *TurnResult, observe func(TurnMessage)) error {
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return err
		}

		var args map[string]any
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			o.logger.Warn("malformed tool arguments, using empty object",
				"tool", call.Function.Name, "error", err)
			args = map[string]any{}
		}

		toolResp, err := o.backend.CallTool(ctx, call.Function.Name, args)
		result.ToolCalls++
		if err != nil {
			return fmt.Errorf("tool %s: %w", call.Function.Name, err)
		}

		text := toolResp.Text()
		if toolResp.IsError {
			if o.toolErrors == ToolErrorsAbort {
				return fmt.Errorf("tool %s failed: %s", call.Function.Name, text)
			}
			o.logger.Warn("tool returned error", "tool", call.Function.Name, "result", text)
			text = "Error: " + text
		}

		o.store.Append(sessionID, llm.Message{
			Role:       llm.RoleTool,
			Content:    text,
			ToolCallID: call.ID,
		})
		o.record(ctx, sessionID, llm.RoleTool, text)
		emit(result, observe, TurnMessage{
			Role:      llm.RoleTool,
			Tool:      call.Function.Name,
			Arguments: args,
			Result:    text,
		})
	}
	return nil
}

// widgetsForTurn picks the descriptor documents to show this turn:
// retriever results when one is configured, the whole catalog otherwise.
func (o *Orchestrator) widgetsForTurn(ctx context.Context, userMessage string) ([]string, error) {
	if o.retriever != nil {
		docs, err := o.retriever.Search(ctx, userMessage, o.topK)
		if err != nil {
			return nil, fmt.Errorf("retriever: %w", err)
		}
		return docs, nil
	}
	return o.CollectAllWidgetTexts(ctx)
}

// toolCatalog fetches the MCP tool list and converts it to the chat
// completions function format.
func (o *Orchestrator) toolCatalog(ctx context.Context) ([]map[string]any, error) {
	tools, err := o.backend.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		params := t.InputSchema
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			},
		})
	}
	return out, nil
}

// CollectAllWidgetTexts reads every widget resource the server
// publishes, skipping resources outside the widget scheme and
// descriptors that fail to parse.
func (o *Orchestrator) CollectAllWidgetTexts(ctx context.Context) ([]string, error) {
	resources, err := o.backend.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	var uris []string
	for _, r := range resources {
		if widget.IsWidgetURI(r.URI) {
			uris = append(uris, r.URI)
		}
	}
	return o.CollectWidgetTexts(ctx, uris)
}

// CollectWidgetTexts reads the given widget resources. Descriptors
// that fail to read or parse are skipped with a warning.
func (o *Orchestrator) CollectWidgetTexts(ctx context.Context, uris []string) ([]string, error) {
	var docs []string
	for _, uri := range uris {
		text, err := o.backend.ReadResource(ctx, uri)
		if err != nil {
			o.logger.Warn("widget resource unreadable", "uri", uri, "error", err)
			continue
		}
		if _, err := widget.ParseDescriptor(text); err != nil {
			o.logger.Warn("skipping malformed widget descriptor", "uri", uri, "error", err)
			continue
		}
		docs = append(docs, text)
	}
	return docs, nil
}

// InjectContext appends external context to the session as a user
// message. The next turn sees it as part of the history.
func (o *Orchestrator) InjectContext(ctx context.Context, sessionID, text string) {
	content := "[Widget Context]: " + text
	o.store.Append(sessionID, llm.Message{Role: llm.RoleUser, Content: content})
	o.record(ctx, sessionID, llm.RoleUser, content)
}

// ComposePrompt renders the user message and the visible widget
// catalog into the turn's prompt.
func ComposePrompt(userMessage string, widgetDocs []string) string {
	var sb strings.Builder
	sb.WriteString("User:\n")
	sb.WriteString(userMessage)
	sb.WriteString("\nAvailable-widgets:\n")
	for _, doc := range widgetDocs {
		sb.WriteString(doc)
		sb.WriteString("\n")
	}
	return sb.String()
}

// visibleURIs extracts the set of widget URIs shown this turn.
func visibleURIs(docs []string) map[string]bool {
	set := make(map[string]bool, len(docs))
	for _, doc := range docs {
		m, err := widget.ParseDescriptor(doc)
		if err != nil {
			continue
		}
		set[m.URI] = true
	}
	return set
}

// record appends to the transcript archive when one is configured.
func (o *Orchestrator) record(ctx context.Context, sessionID, role, content string) {
	if o.archive != nil {
		o.archive.Record(ctx, sessionID, role, content)
	}
}

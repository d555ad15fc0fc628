// Package llm provides the completion client used by the turn orchestrator.
package llm

// Roles used in chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message for the LLM.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool call requested by the model. Arguments is
// the raw JSON string exactly as the provider returned it — parsing is
// the caller's concern so malformed payloads can be recovered locally.
type ToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"` // always "function"
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// NewToolCall builds a ToolCall from its parts. Mostly useful in tests.
func NewToolCall(id, name, arguments string) ToolCall {
	var tc ToolCall
	tc.ID = id
	tc.Type = "function"
	tc.Function.Name = name
	tc.Function.Arguments = arguments
	return tc
}

// ChatResponse is the unified response from a completion round-trip.
type ChatResponse struct {
	Model        string
	Message      Message
	FinishReason string

	// Token usage when the provider reports it.
	InputTokens  int
	OutputTokens int
}

package llm

import "context"

// Client is the interface the orchestrator drives for completions.
type Client interface {
	// Chat sends a chat completion request with the given tool catalog.
	// toolChoice follows the OpenAI convention; the orchestrator passes
	// "auto". Tools may be nil when no catalog is available.
	Chat(ctx context.Context, messages []Message, tools []map[string]any, toolChoice string) (*ChatResponse, error)

	// ChatStructured sends a schema-constrained completion used for the
	// repair path: input is the malformed answer text, instructions the
	// extraction directive, and schema a JSON Schema the response must
	// conform to.
	ChatStructured(ctx context.Context, input, instructions, schemaName string, schema map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

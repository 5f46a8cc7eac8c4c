// Package llm provides the chat model client.
package llm

import "context"

// Message represents a chat message for the model.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for tool responses
	Name       string     `json:"name,omitempty"`         // tool name on tool responses
}

// ToolCall represents a tool invocation requested by the model.
// All fields use proper Go types — wire format conversion (OpenAI sends
// arguments as a JSON-encoded string) happens at the provider boundary.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the provider-neutral response from the model.
type ChatResponse struct {
	Model        string
	Message      Message
	FinishReason string

	InputTokens  int
	OutputTokens int
}

// ChatClient is the interface the agent controller talks to. It is
// satisfied by [*OpenAIClient] and by fakes in tests.
type ChatClient interface {
	// Chat sends a chat completion request with the declared tool
	// schemas and returns the model's response, which either carries
	// final text or one or more tool calls.
	Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error)
}

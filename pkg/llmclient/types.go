// Package llmclient is the model-endpoint half of the agent invoker's
// dependencies: a small HTTP client wrapping the chat backend, plus the
// conversation vocabulary the invoker builds its per-turn buffer from.
//
// Unlike an LLM client that streams Chunk values off a connection to a
// separate inference sidecar, this backend is a single non-streaming
// HTTPS JSON request per tool-loop iteration ("stream": false in the wire
// format), so there is no channel-of-chunks API here: Generate returns one
// *Response per call.
package llmclient

import "context"

// Conversation message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a turn's conversation buffer.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // set on assistant messages that request tool calls
	ToolCallID string     // set on tool-result messages
	ToolName   string     // set on tool-result messages
}

// ToolDefinition describes one tool available to the model, translated
// from the dispatcher's *mcp.Tool by the invoker.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema string // JSON Schema, as a raw string
}

// ToolCall is the model's request to call one tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON object
}

// InferenceOptions is the "options" object of the chat wire format —
// per-request model knobs sourced from an experiment's captured
// model_config.
type InferenceOptions struct {
	NumCtx        int
	Temperature   float64
	RepeatPenalty float64
	NumPredict    int
}

// GenerateInput is one call to the model: the conversation so far, the
// tools it may call, and the inference knobs to send alongside.
type GenerateInput struct {
	Messages []Message
	Tools    []ToolDefinition // nil = no tools offered
	Options  InferenceOptions
}

// Response is the model's reply to one GenerateInput.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
	DoneReason   string
}

// Yielded reports whether the model's response carried no tool requests —
// the turn-ending condition the invoker watches for.
func (r *Response) Yielded() bool {
	return len(r.ToolCalls) == 0
}

// Client is the Go-side interface the invoker calls through; HTTPClient is
// its sole implementation, serving both chat backend providers: the core
// sees the same {invoke(messages, tools), receive(tool_calls?, yield?)}
// operations regardless of provider.
type Client interface {
	Generate(ctx context.Context, input *GenerateInput) (*Response, error)
}

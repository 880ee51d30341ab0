package llm

import "encoding/json"

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks input to the model.
	RoleUser Role = "user"

	// RoleAssistant marks model output fed back as history.
	RoleAssistant Role = "assistant"
)

// StopReason reports why the model stopped generating.
type StopReason string

const (
	// StopEndTurn means the model finished its reply.
	StopEndTurn StopReason = "end_turn"

	// StopToolUse means the model is requesting tool executions; the caller
	// must run them and continue the conversation with the results.
	StopToolUse StopReason = "tool_use"

	// StopMaxTokens means generation hit the completion cap.
	StopMaxTokens StopReason = "max_tokens"
)

// ToolUse is a single tool invocation requested by the model.
type ToolUse struct {
	// ID is the provider-assigned identifier tying the request to its result.
	ID string

	// Name is the tool's name as advertised in the request.
	Name string

	// Input is the JSON-encoded arguments object.
	Input json.RawMessage
}

// ToolResult carries the outcome of one executed tool back to the model.
type ToolResult struct {
	// ToolUseID matches the [ToolUse.ID] this result answers.
	ToolUseID string

	// Content is the tool's textual output, or an error description.
	Content string

	// IsError marks Content as an error the model should react to rather
	// than treat as data.
	IsError bool
}

// Message is one entry in the conversation history. A message carries text,
// tool uses (assistant), tool results (user), or a combination.
type Message struct {
	// Role is the author of the message.
	Role Role

	// Content is the plain text of the message. May be empty when the
	// message only carries tool traffic.
	Content string

	// ToolUses holds tool invocations issued in this assistant message.
	ToolUses []ToolUse

	// ToolResults holds tool outcomes delivered in this user message.
	ToolResults []ToolResult
}

// UserText is shorthand for a plain user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantText is shorthand for a plain assistant message.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Server names the backend providing the tool. Informational only; it is
	// surfaced in prompt catalogs, never sent to the provider API.
	Server string

	// InputSchema is the JSON Schema describing the tool's input parameters.
	InputSchema map[string]any
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// InputTokens is the number of tokens consumed by the input messages and
	// system prompt.
	InputTokens int

	// OutputTokens is the number of tokens generated in the response.
	OutputTokens int
}

// CompletionRequest carries everything the model needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty.
type CompletionRequest struct {
	// Model overrides the provider's default model identifier when non-empty.
	Model string

	// System is the system prompt injected before the conversation history.
	System string

	// Messages is the ordered conversation history. The last message drives
	// the response.
	Messages []Message

	// Tools is the set of tool definitions offered to the model.
	Tools []ToolDefinition

	// Temperature controls output randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply to one request.
type CompletionResponse struct {
	// StopReason reports why generation ended.
	StopReason StopReason

	// Text is the concatenated text content of the reply. Empty when the
	// model responded exclusively with tool uses.
	Text string

	// ToolUses lists tool invocations the model is requesting. The caller
	// executes them and continues the conversation with the results.
	ToolUses []ToolUse

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// AsMessage converts the response into the assistant history entry that must
// precede any tool results in the follow-up request.
func (r *CompletionResponse) AsMessage() Message {
	return Message{
		Role:     RoleAssistant,
		Content:  r.Text,
		ToolUses: r.ToolUses,
	}
}

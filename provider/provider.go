// Package provider defines the boundary to chat-completion backends. The
// engine only depends on this interface; concrete API clients live outside
// the module and are injected at construction time.
package provider

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/loomworks/loom/stream"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a backend's request to invoke a declared tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition is a function-calling tool definition in the backend's wire
// shape, produced by tool.Descriptor.FunctionDefinition.
type ToolDefinition = json.RawMessage

// Provider is the chat backend consumed by operations as their llm handle.
// Implementations own their transport-level retry and backoff; the operation
// retry loop above this boundary handles semantic failures.
//
// Chat blocks until the backend produces a complete message. StreamChat
// yields typed chunks (answer, think, tool, usage, error) as they arrive and
// closes the channel when the turn completes.
type Provider interface {
	Chat(ctx context.Context, msgs []Message, tools ...ToolDefinition) (Message, error)
	StreamChat(ctx context.Context, msgs []Message, tools ...ToolDefinition) (<-chan stream.Chunk, error)
}

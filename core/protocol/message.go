// Package protocol defines the canonical conversation types exchanged between
// the orchestrator, the session store, and the model gateway.
package protocol

import "encoding/json"

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-issued request to invoke one named tool. The call ID is
// opaque and scoped to a single model turn; the tool result message produced
// for it carries the same ID in ToolCallID.
//
// Fields are flat (ID, Name, Arguments) for direct use across the service.
// The JSON methods translate to and from the nested function-calling wire
// shape ({type, function: {name, arguments}}) so persisted history
// round-trips against the backend format.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// MarshalJSON serializes to the nested function-calling wire format.
func (tc ToolCall) MarshalJSON() ([]byte, error) {
	type fn struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	}
	return json.Marshal(struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Function fn     `json:"function"`
	}{
		ID:       tc.ID,
		Type:     "function",
		Function: fn{Name: tc.Name, Arguments: tc.Arguments},
	})
}

// UnmarshalJSON accepts both the nested wire format and the flat form.
func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var nested struct {
		ID       string `json:"id"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}

	if nested.Function.Name != "" {
		tc.ID = nested.ID
		tc.Name = nested.Function.Name
		tc.Arguments = nested.Function.Arguments
		return nil
	}

	type plain ToolCall
	return json.Unmarshal(data, (*plain)(tc))
}

// Message is a single immutable entry in a conversation. Assistant messages
// that request tools carry ToolCalls and may have empty Content; tool result
// messages carry the originating call's ID in ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// NewMessage creates a Message with the given role and text content.
// Use struct literals directly when setting tool call fields.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

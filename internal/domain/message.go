package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one turn in a conversation.
type Message struct {
	ID    string
	Role  Role
	Parts []Part
}

type wireMessage struct {
	ID      string            `json:"id,omitempty"`
	Role    Role              `json:"role"`
	Parts   []json.RawMessage `json:"parts,omitempty"`
	Content string            `json:"content,omitempty"`
}

// MarshalJSON encodes the message with typed parts.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{ID: m.ID, Role: m.Role, Parts: make([]json.RawMessage, 0, len(m.Parts))}
	for _, p := range m.Parts {
		b, err := marshalPart(p)
		if err != nil {
			return nil, err
		}
		w.Parts = append(w.Parts, b)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes typed parts. A message with a plain content string
// and no parts becomes a single text part.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.ID = w.ID
	m.Role = w.Role
	m.Parts = nil
	for i, raw := range w.Parts {
		parts, err := unmarshalParts(raw)
		if err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
		m.Parts = append(m.Parts, parts...)
	}
	if len(w.Parts) == 0 && w.Content != "" {
		m.Parts = []Part{TextPart{Text: w.Content}}
	}
	return nil
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// ToolCalls returns the message's tool-call parts in order.
func (m Message) ToolCalls() []ToolCallPart {
	var calls []ToolCallPart
	for _, p := range m.Parts {
		if c, ok := p.(ToolCallPart); ok {
			calls = append(calls, c)
		}
	}
	return calls
}

// Results indexes the message's tool results by call id.
func (m Message) Results() map[string]ToolResultPart {
	results := make(map[string]ToolResultPart)
	for _, p := range m.Parts {
		if r, ok := p.(ToolResultPart); ok {
			results[r.ToolCallID] = r
		}
	}
	return results
}

// Complete reports whether every tool call in the message has a result.
func (m Message) Complete() bool {
	results := m.Results()
	for _, c := range m.ToolCalls() {
		if _, ok := results[c.ToolCallID]; !ok {
			return false
		}
	}
	return true
}

// Validate checks the role and that every tool result follows exactly one
// tool call with the same id in this message.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessages, m.Role)
	}
	calls := make(map[string]bool)
	answered := make(map[string]bool)
	for _, p := range m.Parts {
		switch v := p.(type) {
		case ToolCallPart:
			if m.Role != RoleAssistant {
				return fmt.Errorf("%w: tool call in %s message", ErrInvalidMessages, m.Role)
			}
			if calls[v.ToolCallID] {
				return fmt.Errorf("%w: duplicate tool call %s", ErrInvalidMessages, v.ToolCallID)
			}
			calls[v.ToolCallID] = true
		case ToolResultPart:
			if !calls[v.ToolCallID] {
				return fmt.Errorf("%w: result %s precedes its call", ErrInvalidMessages, v.ToolCallID)
			}
			if answered[v.ToolCallID] {
				return fmt.Errorf("%w: duplicate result %s", ErrInvalidMessages, v.ToolCallID)
			}
			answered[v.ToolCallID] = true
		}
	}
	return nil
}

// ValidateConversation validates each message and checks tool call ids are
// unique across the conversation.
func ValidateConversation(msgs []Message) error {
	if len(msgs) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidMessages)
	}
	seen := make(map[string]bool)
	for i, m := range msgs {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		for _, c := range m.ToolCalls() {
			if seen[c.ToolCallID] {
				return fmt.Errorf("message %d: %w: tool call id %s reused", i, ErrInvalidMessages, c.ToolCallID)
			}
			seen[c.ToolCallID] = true
		}
	}
	return nil
}

// LastUserText returns the text of the most recent user message.
func LastUserText(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Text()
		}
	}
	return ""
}

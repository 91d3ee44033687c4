package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Part wire type tags.
const (
	PartTypeText       = "text"
	PartTypeToolCall   = "tool-call"
	PartTypeToolResult = "tool-result"
)

// Part is one typed fragment of a message. The set of implementations is
// closed: TextPart, ToolCallPart and ToolResultPart.
type Part interface {
	PartType() string
	isPart()
}

// TextPart is a run of model or user text.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) PartType() string { return PartTypeText }
func (TextPart) isPart()          {}

// ToolCallPart is a model request to run a tool. Input is the fully
// buffered argument object.
type ToolCallPart struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Input      json.RawMessage `json:"input,omitempty"`
}

func (ToolCallPart) PartType() string { return PartTypeToolCall }
func (ToolCallPart) isPart()          {}

// ToolResultPart is the outcome of a tool call. A non-empty ErrorText marks
// the error outcome.
type ToolResultPart struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
}

func (ToolResultPart) PartType() string { return PartTypeToolResult }
func (ToolResultPart) isPart()          {}

// IsError reports whether the result is an error outcome.
func (p ToolResultPart) IsError() bool { return p.ErrorText != "" }

// wirePart is the union of every field a part may carry on the wire,
// including the combined "tool-<name>" form used by UI message clients.
type wirePart struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
	State      ToolState       `json:"state,omitempty"`
}

func marshalPart(p Part) ([]byte, error) {
	switch v := p.(type) {
	case TextPart:
		return json.Marshal(wirePart{Type: PartTypeText, Text: v.Text})
	case ToolCallPart:
		return json.Marshal(wirePart{Type: PartTypeToolCall, ToolCallID: v.ToolCallID, ToolName: v.ToolName, Input: v.Input})
	case ToolResultPart:
		return json.Marshal(wirePart{Type: PartTypeToolResult, ToolCallID: v.ToolCallID, ToolName: v.ToolName, Output: v.Output, ErrorText: v.ErrorText})
	default:
		return nil, fmt.Errorf("unknown part type %T", p)
	}
}

// unmarshalParts decodes one wire part into zero or more parts. Unknown
// part types decode to nothing.
func unmarshalParts(data []byte) ([]Part, error) {
	var w wirePart
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	switch {
	case w.Type == PartTypeText:
		return []Part{TextPart{Text: w.Text}}, nil
	case w.Type == PartTypeToolCall:
		if w.ToolCallID == "" {
			return nil, fmt.Errorf("tool-call part missing toolCallId")
		}
		return []Part{ToolCallPart{ToolCallID: w.ToolCallID, ToolName: w.ToolName, Input: w.Input}}, nil
	case w.Type == PartTypeToolResult:
		if w.ToolCallID == "" {
			return nil, fmt.Errorf("tool-result part missing toolCallId")
		}
		return []Part{ToolResultPart{ToolCallID: w.ToolCallID, ToolName: w.ToolName, Output: w.Output, ErrorText: w.ErrorText}}, nil
	case strings.HasPrefix(w.Type, "tool-"):
		return combinedToolParts(w)
	default:
		return nil, nil
	}
}

// combinedToolParts splits a "tool-<name>" UI part into its call and, when
// terminal, its result.
func combinedToolParts(w wirePart) ([]Part, error) {
	if w.ToolCallID == "" {
		return nil, fmt.Errorf("%s part missing toolCallId", w.Type)
	}
	name := strings.TrimPrefix(w.Type, "tool-")
	if w.ToolName != "" {
		name = w.ToolName
	}

	parts := []Part{ToolCallPart{ToolCallID: w.ToolCallID, ToolName: name, Input: w.Input}}
	switch w.State {
	case ToolStateOutputAvailable:
		parts = append(parts, ToolResultPart{ToolCallID: w.ToolCallID, ToolName: name, Output: w.Output})
	case ToolStateOutputError:
		errText := w.ErrorText
		if errText == "" {
			errText = "tool failed"
		}
		parts = append(parts, ToolResultPart{ToolCallID: w.ToolCallID, ToolName: name, ErrorText: errText})
	}
	return parts, nil
}

// Package protocol implements the UI message stream: an ordered sequence of
// typed events carried as server-sent events, one JSON object per data
// frame, ended by a literal [DONE] frame.
package protocol

import "encoding/json"

// Kind tags an event.
type Kind string

const (
	KindStart               Kind = "start"
	KindStartStep           Kind = "start-step"
	KindFinishStep          Kind = "finish-step"
	KindTextStart           Kind = "text-start"
	KindTextDelta           Kind = "text-delta"
	KindTextEnd             Kind = "text-end"
	KindToolInputStart      Kind = "tool-input-start"
	KindToolInputDelta      Kind = "tool-input-delta"
	KindToolInputAvailable  Kind = "tool-input-available"
	KindToolOutputAvailable Kind = "tool-output-available"
	KindToolOutputError     Kind = "tool-output-error"
	KindError               Kind = "error"
	KindFinish              Kind = "finish"
)

var knownKinds = map[Kind]bool{
	KindStart: true, KindStartStep: true, KindFinishStep: true,
	KindTextStart: true, KindTextDelta: true, KindTextEnd: true,
	KindToolInputStart: true, KindToolInputDelta: true, KindToolInputAvailable: true,
	KindToolOutputAvailable: true, KindToolOutputError: true,
	KindError: true, KindFinish: true,
}

// Known reports whether k is one of the kinds this package understands.
func (k Kind) Known() bool { return knownKinds[k] }

// Event is one frame of the stream. Which fields are set depends on Type.
type Event struct {
	Type           Kind            `json:"type"`
	MessageID      string          `json:"messageId,omitempty"`
	ID             string          `json:"id,omitempty"`
	Delta          string          `json:"delta,omitempty"`
	ToolCallID     string          `json:"toolCallId,omitempty"`
	ToolName       string          `json:"toolName,omitempty"`
	InputTextDelta string          `json:"inputTextDelta,omitempty"`
	Input          json.RawMessage `json:"input,omitempty"`
	Output         json.RawMessage `json:"output,omitempty"`
	ErrorText      string          `json:"errorText,omitempty"`
	FinishReason   string          `json:"finishReason,omitempty"`
}

func Start(messageID string) Event { return Event{Type: KindStart, MessageID: messageID} }

func StartStep() Event { return Event{Type: KindStartStep} }

func FinishStep() Event { return Event{Type: KindFinishStep} }

func TextStart(id string) Event { return Event{Type: KindTextStart, ID: id} }

func TextDelta(id, delta string) Event { return Event{Type: KindTextDelta, ID: id, Delta: delta} }

func TextEnd(id string) Event { return Event{Type: KindTextEnd, ID: id} }

func ToolInputStart(callID, toolName string) Event {
	return Event{Type: KindToolInputStart, ToolCallID: callID, ToolName: toolName}
}

func ToolInputDelta(callID, delta string) Event {
	return Event{Type: KindToolInputDelta, ToolCallID: callID, InputTextDelta: delta}
}

// ToolInputAvailable carries the complete arguments. Empty input is sent as {}.
func ToolInputAvailable(callID, toolName string, input json.RawMessage) Event {
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	return Event{Type: KindToolInputAvailable, ToolCallID: callID, ToolName: toolName, Input: input}
}

// ToolOutputAvailable carries a successful result. Empty output is sent as null.
func ToolOutputAvailable(callID string, output json.RawMessage) Event {
	if len(output) == 0 {
		output = json.RawMessage(`null`)
	}
	return Event{Type: KindToolOutputAvailable, ToolCallID: callID, Output: output}
}

func ToolOutputError(callID, errorText string) Event {
	return Event{Type: KindToolOutputError, ToolCallID: callID, ErrorText: errorText}
}

func Error(errorText string) Event { return Event{Type: KindError, ErrorText: errorText} }

func Finish(reason string) Event { return Event{Type: KindFinish, FinishReason: reason} }

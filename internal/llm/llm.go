// Package llm defines the contract between the orchestration loop and a
// streaming chat model. The model is a black box: history and tool
// definitions go in, a stream of text and tool-call fragments comes out.
package llm

import (
	"context"

	"github.com/tjfontaine/propertychat/internal/domain"
)

// Finish reasons reported by a model at the end of a stream.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// ToolSpec is a tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  any
}

// Request is one model invocation.
type Request struct {
	Model           string
	System          string
	Messages        []domain.Message
	Tools           []ToolSpec
	MaxOutputTokens int
	Temperature     *float64
}

// Usage is the token accounting for one invocation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ToolCallDelta is a fragment of a tool call. Fragments with the same Index
// belong to the same call; ID and Name arrive on the first fragment.
type ToolCallDelta struct {
	Index          int
	ID             string
	Name           string
	ArgumentsDelta string
}

// Chunk is one element of a model stream. Exactly one of the fields is
// meaningful per chunk. A chunk with Err set is the last one sent.
type Chunk struct {
	TextDelta    string
	ToolCall     *ToolCallDelta
	Usage        *Usage
	FinishReason string
	Err          error
}

// Model streams a response for a request. The returned channel is closed
// when the stream ends or ctx is cancelled.
type Model interface {
	Stream(ctx context.Context, req *Request) (<-chan Chunk, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, req *Request) (<-chan Chunk, error)

// Stream calls f.
func (f ModelFunc) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	return f(ctx, req)
}

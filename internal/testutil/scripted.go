package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/tjfontaine/propertychat/internal/llm"
)

// ErrScriptExhausted is returned when a scripted model is invoked more times
// than it has steps and Repeat is off.
var ErrScriptExhausted = errors.New("scripted model: no more steps")

// Step is the scripted response to one model invocation.
type Step struct {
	// Chunks are sent in order.
	Chunks []llm.Chunk
	// Err fails the invocation before any chunk is sent.
	Err error
	// Hold keeps the stream open after Chunks until the context is cancelled.
	Hold bool
	// Gates delays chunk i until Gates[i] is closed.
	Gates map[int]<-chan struct{}
}

// ScriptedModel is a deterministic llm.Model for tests.
type ScriptedModel struct {
	// Repeat replays the last step once the script runs out.
	Repeat bool

	mu       sync.Mutex
	steps    []Step
	requests []*llm.Request
}

var _ llm.Model = (*ScriptedModel)(nil)

// NewScriptedModel returns a model that answers invocation i with steps[i].
func NewScriptedModel(steps ...Step) *ScriptedModel {
	return &ScriptedModel{steps: steps}
}

// Stream implements llm.Model.
func (m *ScriptedModel) Stream(ctx context.Context, req *llm.Request) (<-chan llm.Chunk, error) {
	m.mu.Lock()
	n := len(m.requests)
	cp := *req
	cp.Messages = append(cp.Messages[:0:0], req.Messages...)
	m.requests = append(m.requests, &cp)

	var step Step
	switch {
	case n < len(m.steps):
		step = m.steps[n]
	case m.Repeat && len(m.steps) > 0:
		step = m.steps[len(m.steps)-1]
	default:
		m.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	m.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}

	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		for i, c := range step.Chunks {
			if gate, ok := step.Gates[i]; ok {
				select {
				case <-gate:
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
		if step.Hold {
			<-ctx.Done()
		}
	}()
	return out, nil
}

// Calls reports how many times the model was invoked.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request received.
func (m *ScriptedModel) Requests() []*llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.Request(nil), m.requests...)
}

// Text returns a text fragment chunk.
func Text(s string) llm.Chunk {
	return llm.Chunk{TextDelta: s}
}

// Call returns a chunk carrying a whole tool call at stream index i.
func Call(i int, id, name, args string) llm.Chunk {
	return llm.Chunk{ToolCall: &llm.ToolCallDelta{Index: i, ID: id, Name: name, ArgumentsDelta: args}}
}

// Args returns a continuation fragment for the tool call at stream index i.
func Args(i int, fragment string) llm.Chunk {
	return llm.Chunk{ToolCall: &llm.ToolCallDelta{Index: i, ArgumentsDelta: fragment}}
}

// Finish returns a finish-reason chunk.
func Finish(reason string) llm.Chunk {
	return llm.Chunk{FinishReason: reason}
}

// Usage returns a usage chunk.
func Usage(prompt, completion int) llm.Chunk {
	return llm.Chunk{Usage: &llm.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}}
}

// TextStep is a step that answers with text and stops.
func TextStep(parts ...string) Step {
	var chunks []llm.Chunk
	for _, p := range parts {
		chunks = append(chunks, Text(p))
	}
	return Step{Chunks: append(chunks, Finish(llm.FinishStop))}
}

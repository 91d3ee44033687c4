// Package chatclient is the client side of the chat stream: it folds
// protocol events into the assistant message being rendered, decides how
// each part should be shown, and talks to the /api/ask endpoint.
package chatclient

import (
	"encoding/json"
	"slices"
	"strings"
	"sync"

	"github.com/tjfontaine/propertychat/internal/domain"
	"github.com/tjfontaine/propertychat/internal/protocol"
)

// Status is the state of the turn as a whole.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusStreaming Status = "streaming"
	StatusReady     Status = "ready"
	StatusError     Status = "error"
	StatusAborted   Status = "aborted"
)

// PartKind distinguishes text runs from tool calls.
type PartKind string

const (
	PartText PartKind = "text"
	PartTool PartKind = "tool"
)

// Part is one part of the message under construction. A tool part carries
// its call and, once terminal, its outcome.
type Part struct {
	Kind PartKind
	// ID is the text part id or the tool call id.
	ID   string
	Step int

	Text string
	Done bool

	ToolName  string
	State     domain.ToolState
	InputText string
	Input     json.RawMessage
	Output    json.RawMessage
	ErrorText string
}

// Snapshot is an immutable view of the consumer.
type Snapshot struct {
	Status       Status
	MessageID    string
	Parts        []Part
	Finalized    bool
	Incomplete   bool
	ErrorText    string
	FinishReason string
}

// Consumer folds a stream of events into one assistant message. Events that
// would break ordering, or that refer to unknown parts, are ignored.
type Consumer struct {
	mu sync.Mutex

	lc     *protocol.Lifecycle
	log    []protocol.Event
	parts  []Part
	index  map[string]int
	step   int
	status Status

	messageID    string
	finalized    bool
	incomplete   bool
	errorText    string
	finishReason string
}

// NewConsumer returns a consumer in the submitted state.
func NewConsumer() *Consumer {
	return &Consumer{
		lc:     protocol.NewLifecycle(),
		index:  make(map[string]int),
		status: StatusSubmitted,
	}
}

// Apply folds ev into the message. It reports whether the event was used.
func (c *Consumer) Apply(ev protocol.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized || !ev.Type.Known() {
		return false
	}
	if err := c.lc.Apply(ev); err != nil {
		return false
	}
	c.log = append(c.log, ev)
	if c.status == StatusSubmitted {
		c.status = StatusStreaming
	}

	switch ev.Type {
	case protocol.KindStart:
		c.messageID = ev.MessageID

	case protocol.KindStartStep:
		c.step++

	case protocol.KindTextStart:
		c.add(Part{Kind: PartText, ID: ev.ID})

	case protocol.KindTextDelta:
		p := c.part(PartText, ev.ID)
		p.Text += ev.Delta

	case protocol.KindTextEnd:
		c.part(PartText, ev.ID).Done = true

	case protocol.KindToolInputStart:
		c.add(Part{Kind: PartTool, ID: ev.ToolCallID, ToolName: ev.ToolName, State: domain.ToolStateInputStreaming})

	case protocol.KindToolInputDelta:
		p := c.part(PartTool, ev.ToolCallID)
		p.InputText += ev.InputTextDelta

	case protocol.KindToolInputAvailable:
		if _, ok := c.index[partKey(PartTool, ev.ToolCallID)]; !ok {
			c.add(Part{Kind: PartTool, ID: ev.ToolCallID, ToolName: ev.ToolName})
		}
		p := c.part(PartTool, ev.ToolCallID)
		p.State = domain.ToolStateInputAvailable
		p.Input = ev.Input
		if p.ToolName == "" {
			p.ToolName = ev.ToolName
		}

	case protocol.KindToolOutputAvailable:
		p := c.part(PartTool, ev.ToolCallID)
		p.State = domain.ToolStateOutputAvailable
		p.Output = ev.Output
		p.Done = true

	case protocol.KindToolOutputError:
		p := c.part(PartTool, ev.ToolCallID)
		p.State = domain.ToolStateOutputError
		p.ErrorText = ev.ErrorText
		p.Done = true

	case protocol.KindError:
		c.status = StatusError
		c.errorText = ev.ErrorText
		c.finalized = true
		c.incomplete = true

	case protocol.KindFinish:
		c.status = StatusReady
		c.finishReason = ev.FinishReason
		c.finalized = true
	}
	return true
}

func (c *Consumer) add(p Part) {
	p.Step = c.step
	c.index[partKey(p.Kind, p.ID)] = len(c.parts)
	c.parts = append(c.parts, p)
}

// part returns the live part for id. Lifecycle has already checked that
// it exists.
func (c *Consumer) part(kind PartKind, id string) *Part {
	return &c.parts[c.index[partKey(kind, id)]]
}

// Text ids and call ids are separate namespaces.
func partKey(kind PartKind, id string) string {
	return string(kind) + ":" + id
}

// Abort finalizes the message as incomplete after a user stop. Tool calls
// that had not reached a terminal state are discarded.
func (c *Consumer) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return
	}
	c.parts = slices.DeleteFunc(c.parts, func(p Part) bool {
		return p.Kind == PartTool && !p.State.Terminal()
	})
	c.index = make(map[string]int, len(c.parts))
	for i, p := range c.parts {
		c.index[partKey(p.Kind, p.ID)] = i
	}
	c.status = StatusAborted
	c.finalized = true
	c.incomplete = true
}

// End marks the end of the transport. A stream that ends without a finish
// or error event is an error.
func (c *Consumer) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return
	}
	c.status = StatusError
	c.finalized = true
	c.incomplete = true
}

// Fail finalizes the turn as an error before or instead of any event.
func (c *Consumer) Fail(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return
	}
	c.status = StatusError
	c.errorText = text
	c.finalized = true
	c.incomplete = true
}

// Status returns the current turn status.
func (c *Consumer) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Log returns a copy of every event applied so far.
func (c *Consumer) Log() []protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.log)
}

// Snapshot returns the current state.
func (c *Consumer) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Status:       c.status,
		MessageID:    c.messageID,
		Parts:        slices.Clone(c.parts),
		Finalized:    c.finalized,
		Incomplete:   c.incomplete,
		ErrorText:    c.errorText,
		FinishReason: c.finishReason,
	}
}

// Message returns the assistant message as history: text parts, then for
// each step its tool calls in order followed by their results. Tool calls
// whose input never became available are omitted.
func (s Snapshot) Message() domain.Message {
	msg := domain.Message{ID: s.MessageID, Role: domain.RoleAssistant}

	var results []domain.Part
	step := -1
	flush := func() {
		msg.Parts = append(msg.Parts, results...)
		results = nil
	}

	for _, p := range s.Parts {
		if p.Step != step {
			flush()
			step = p.Step
		}
		switch p.Kind {
		case PartText:
			if p.Text != "" {
				msg.Parts = append(msg.Parts, domain.TextPart{Text: p.Text})
			}
		case PartTool:
			if p.State == domain.ToolStateInputStreaming || p.State == "" {
				continue
			}
			msg.Parts = append(msg.Parts, domain.ToolCallPart{ToolCallID: p.ID, ToolName: p.ToolName, Input: p.Input})
			switch p.State {
			case domain.ToolStateOutputAvailable:
				results = append(results, domain.ToolResultPart{ToolCallID: p.ID, ToolName: p.ToolName, Output: p.Output})
			case domain.ToolStateOutputError:
				results = append(results, domain.ToolResultPart{ToolCallID: p.ID, ToolName: p.ToolName, ErrorText: p.ErrorText})
			}
		}
	}
	flush()
	return msg
}

// Text concatenates the snapshot's text parts.
func (s Snapshot) Text() string {
	var sb strings.Builder
	for _, p := range s.Parts {
		if p.Kind == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

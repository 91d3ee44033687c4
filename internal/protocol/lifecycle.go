package protocol

import (
	"errors"
	"fmt"

	"github.com/tjfontaine/propertychat/internal/domain"
)

// ErrLifecycle is returned for an event that would break ordering: a second
// start, a delta after its text-end, a tool output before its input is
// available, anything after finish or error.
var ErrLifecycle = errors.New("protocol: event out of order")

type textState int

const (
	textOpen textState = iota + 1
	textClosed
)

// Lifecycle tracks per-part and per-call state for one message stream.
// It is not safe for concurrent use; Encoder and Recorder serialize access.
type Lifecycle struct {
	started bool
	ended   bool
	inStep  bool
	texts   map[string]textState
	calls   map[string]domain.ToolState
}

// NewLifecycle returns a tracker for a fresh stream.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		texts: make(map[string]textState),
		calls: make(map[string]domain.ToolState),
	}
}

// Apply validates ev against the current state and advances it.
// On error the state is unchanged.
func (l *Lifecycle) Apply(ev Event) error {
	if l.ended {
		return fmt.Errorf("%w: %s after end of message", ErrLifecycle, ev.Type)
	}
	if !l.started && ev.Type != KindStart {
		return fmt.Errorf("%w: %s before start", ErrLifecycle, ev.Type)
	}

	switch ev.Type {
	case KindStart:
		if l.started {
			return fmt.Errorf("%w: duplicate start", ErrLifecycle)
		}
		l.started = true

	case KindStartStep:
		if l.inStep {
			return fmt.Errorf("%w: start-step inside a step", ErrLifecycle)
		}
		l.inStep = true

	case KindFinishStep:
		if !l.inStep {
			return fmt.Errorf("%w: finish-step outside a step", ErrLifecycle)
		}
		l.inStep = false

	case KindTextStart:
		if _, seen := l.texts[ev.ID]; seen {
			return fmt.Errorf("%w: text %q restarted", ErrLifecycle, ev.ID)
		}
		l.texts[ev.ID] = textOpen

	case KindTextDelta, KindTextEnd:
		if l.texts[ev.ID] != textOpen {
			return fmt.Errorf("%w: %s for text %q that is not open", ErrLifecycle, ev.Type, ev.ID)
		}
		if ev.Type == KindTextEnd {
			l.texts[ev.ID] = textClosed
		}

	case KindToolInputStart:
		if _, seen := l.calls[ev.ToolCallID]; seen {
			return fmt.Errorf("%w: tool call %q restarted", ErrLifecycle, ev.ToolCallID)
		}
		l.calls[ev.ToolCallID] = domain.ToolStateInputStreaming

	case KindToolInputDelta:
		if l.calls[ev.ToolCallID] != domain.ToolStateInputStreaming {
			return fmt.Errorf("%w: input delta for tool call %q that is not streaming", ErrLifecycle, ev.ToolCallID)
		}

	case KindToolInputAvailable:
		return l.moveCall(ev.ToolCallID, domain.ToolStateInputAvailable)

	case KindToolOutputAvailable, KindToolOutputError:
		if l.calls[ev.ToolCallID] != domain.ToolStateInputAvailable {
			return fmt.Errorf("%w: %s for tool call %q without available input", ErrLifecycle, ev.Type, ev.ToolCallID)
		}
		to := domain.ToolStateOutputAvailable
		if ev.Type == KindToolOutputError {
			to = domain.ToolStateOutputError
		}
		return l.moveCall(ev.ToolCallID, to)

	case KindError, KindFinish:
		l.ended = true
	}

	return nil
}

func (l *Lifecycle) moveCall(id string, to domain.ToolState) error {
	next, err := l.calls[id].Next(to)
	if err != nil {
		return fmt.Errorf("%w: tool call %q: %v", ErrLifecycle, id, err)
	}
	l.calls[id] = next
	return nil
}

// Ended reports whether a finish or error event has been applied.
func (l *Lifecycle) Ended() bool { return l.ended }

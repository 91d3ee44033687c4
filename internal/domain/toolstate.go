package domain

import "fmt"

// ToolState is the lifecycle position of a single tool call.
type ToolState string

const (
	ToolStateInputStreaming  ToolState = "input-streaming"
	ToolStateInputAvailable  ToolState = "input-available"
	ToolStateOutputAvailable ToolState = "output-available"
	ToolStateOutputError     ToolState = "output-error"
)

func (s ToolState) rank() int {
	switch s {
	case ToolStateInputStreaming:
		return 1
	case ToolStateInputAvailable:
		return 2
	case ToolStateOutputAvailable, ToolStateOutputError:
		return 3
	default:
		return 0
	}
}

// Terminal reports whether no further transitions are allowed.
func (s ToolState) Terminal() bool { return s.rank() == 3 }

// Valid reports whether s is a known state.
func (s ToolState) Valid() bool { return s.rank() > 0 }

// Next validates the transition s -> to and returns to. The zero state may
// move to any state; otherwise transitions must strictly advance and never
// leave a terminal state.
func (s ToolState) Next(to ToolState) (ToolState, error) {
	if !to.Valid() {
		return s, fmt.Errorf("unknown tool state %q", to)
	}
	if s == "" {
		return to, nil
	}
	if s.Terminal() {
		return s, fmt.Errorf("tool call already %s", s)
	}
	if to.rank() <= s.rank() {
		return s, fmt.Errorf("tool state %s cannot follow %s", to, s)
	}
	return to, nil
}

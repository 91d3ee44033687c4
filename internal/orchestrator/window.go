package orchestrator

import "github.com/tjfontaine/propertychat/internal/domain"

// Window returns the last n messages of history, advanced so it starts on
// a user message. Tool calls and their results live in the same message,
// so a message-aligned window never separates a pair. Tool calls without
// a result are dropped from the copy. history is not modified.
func Window(history []domain.Message, n int) []domain.Message {
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	history = alignToUser(history)

	out := make([]domain.Message, 0, len(history))
	for _, m := range history {
		if m.Role == domain.RoleSystem {
			continue
		}
		out = append(out, pruneIncomplete(m))
	}
	return out
}

// alignToUser drops leading messages until the first user message. If there
// is none the input is returned unchanged.
func alignToUser(msgs []domain.Message) []domain.Message {
	for i, m := range msgs {
		if m.Role == domain.RoleUser {
			return msgs[i:]
		}
	}
	return msgs
}

// pruneIncomplete returns m without tool calls that have no result.
func pruneIncomplete(m domain.Message) domain.Message {
	if m.Complete() {
		return m
	}
	results := m.Results()
	parts := make([]domain.Part, 0, len(m.Parts))
	for _, p := range m.Parts {
		if c, ok := p.(domain.ToolCallPart); ok {
			if _, answered := results[c.ToolCallID]; !answered {
				continue
			}
		}
		parts = append(parts, p)
	}
	m.Parts = parts
	return m
}

// compact keeps the most recent keep messages of window, re-aligned to a
// user message. It returns window itself when keep does not shrink it.
func compact(window []domain.Message, keep int) []domain.Message {
	if keep <= 0 || len(window) <= keep {
		return window
	}
	return alignToUser(window[len(window)-keep:])
}

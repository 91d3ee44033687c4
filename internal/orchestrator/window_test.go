package orchestrator

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/propertychat/internal/domain"
)

func text(role domain.Role, s string) domain.Message {
	return domain.Message{Role: role, Parts: []domain.Part{domain.TextPart{Text: s}}}
}

func TestWindow(t *testing.T) {
	u := func(s string) domain.Message { return text(domain.RoleUser, s) }
	a := func(s string) domain.Message { return text(domain.RoleAssistant, s) }

	tests := []struct {
		name    string
		history []domain.Message
		n       int
		first   string
		length  int
	}{
		{"shorter than window", []domain.Message{u("1"), a("2")}, 10, "1", 2},
		{"cut lands on user", []domain.Message{u("1"), a("2"), u("3"), a("4")}, 2, "3", 2},
		{"cut lands on assistant", []domain.Message{u("1"), a("2"), u("3"), a("4"), u("5")}, 4, "3", 3},
		{"system messages dropped", []domain.Message{text(domain.RoleSystem, "s"), u("1")}, 10, "1", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Window(tt.history, tt.n)
			if len(got) != tt.length {
				t.Fatalf("len = %d, want %d", len(got), tt.length)
			}
			if got[0].Text() != tt.first || got[0].Role != domain.RoleUser {
				t.Errorf("first = %+v, want user %q", got[0], tt.first)
			}
		})
	}
}

func TestWindow_KeepsPairsAndDropsIncomplete(t *testing.T) {
	assistant := domain.Message{Role: domain.RoleAssistant, Parts: []domain.Part{
		domain.ToolCallPart{ToolCallID: "done", ToolName: "getAvailableRegions", Input: json.RawMessage(`{}`)},
		domain.ToolResultPart{ToolCallID: "done", Output: json.RawMessage(`{}`)},
		domain.ToolCallPart{ToolCallID: "dangling", ToolName: "getHousePrices", Input: json.RawMessage(`{}`)},
		domain.TextPart{Text: "stopped"},
	}}
	history := []domain.Message{text(domain.RoleUser, "q"), assistant}

	got := Window(history, 10)
	calls := got[1].ToolCalls()
	if len(calls) != 1 || calls[0].ToolCallID != "done" {
		t.Errorf("calls = %+v", calls)
	}
	if !got[1].Complete() {
		t.Error("windowed message should be complete")
	}
	if len(history[1].Parts) != 4 {
		t.Error("history was modified")
	}
}

func TestCompact(t *testing.T) {
	w := []domain.Message{
		text(domain.RoleUser, "1"), text(domain.RoleAssistant, "2"),
		text(domain.RoleUser, "3"), text(domain.RoleAssistant, "4"),
	}
	if got := compact(w, 0); len(got) != 4 {
		t.Errorf("keep 0 should not compact: %d", len(got))
	}
	if got := compact(w, 2); len(got) != 2 || got[0].Text() != "3" {
		t.Errorf("compact(2) = %+v", got)
	}
	if got := compact(w, 3); len(got) != 2 || got[0].Text() != "3" {
		t.Errorf("compact(3) should re-align to a user message: %+v", got)
	}
}

func TestSystemPrompt(t *testing.T) {
	now := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

	withTools := SystemPrompt(now, true, "")
	for _, want := range []string{
		"Today is 14 October 2026.",
		"ONS UK House Price Index",
		"ONS Price Index of Private Rents",
		"YYYY-MM-DD",
		"generateChart",
		"off-topic",
	} {
		if !strings.Contains(withTools, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(withTools, "Context:") {
		t.Error("tool prompt should carry no context block")
	}

	retrieval := SystemPrompt(now, false, "[Source: ONS]\nRents rose.")
	if strings.Contains(retrieval, "generateChart") {
		t.Error("retrieval prompt should not mention tools")
	}
	if !strings.HasSuffix(strings.TrimSpace(retrieval), "Context:\n[Source: ONS]\nRents rose.") {
		t.Errorf("retrieval prompt tail = %q", retrieval[len(retrieval)-60:])
	}
}

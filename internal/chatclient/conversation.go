package chatclient

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/tjfontaine/propertychat/internal/domain"
	"github.com/tjfontaine/propertychat/internal/orchestrator"
)

// DefaultQuestions are offered before the first question is asked.
var DefaultQuestions = []string{
	"What’s the average house price in the UK in 2025?",
	"Is it better to rent or buy in London right now?",
	"Did rent prices go up faster than house prices in the last year?",
	"Show me a chart of average prices over the past 6 months in the UK",
	"Is the market in Manchester more active now compared to last year?",
	"Where can I buy a flat for under £250,000?",
}

// Conversation is the client-held history. The server keeps none, so the
// whole conversation lives here and is windowed before each request.
type Conversation struct {
	mu       sync.Mutex
	messages []domain.Message
	window   int
}

// NewConversation keeps everything and sends the last window messages.
func NewConversation(window int) *Conversation {
	return &Conversation{window: window}
}

// Ask appends a user question and returns the history to send.
func (c *Conversation) Ask(text string) []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, domain.Message{
		ID:    uuid.NewString(),
		Role:  domain.RoleUser,
		Parts: []domain.Part{domain.TextPart{Text: text}},
	})
	return orchestrator.Window(c.messages, c.window)
}

// Record appends the assistant message of a finished turn. A stopped turn
// keeps what arrived; a turn that produced nothing adds no message.
func (c *Conversation) Record(s Snapshot) {
	msg := s.Message()
	if len(msg.Parts) == 0 {
		return
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the full history.
func (c *Conversation) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

// Empty reports whether nothing has been asked yet.
func (c *Conversation) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages) == 0
}

func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

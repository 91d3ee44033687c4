// Package tokens sizes prompts so the orchestration loop can decide when to
// compact the history it sends to the model.
package tokens

import "github.com/tjfontaine/propertychat/internal/domain"

// Counter estimates the prompt size of a conversation.
type Counter interface {
	CountMessages(system string, msgs []domain.Message) (int, error)
}

// Estimator provides token count estimation based on character counts.
// This is a fallback when no tokenizer is available for the model.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

var _ Counter = (*Estimator)(nil)

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

// CountMessages estimates the token count.
func (e *Estimator) CountMessages(system string, msgs []domain.Message) (int, error) {
	totalChars := len(system)

	for _, msg := range msgs {
		totalChars += len(msg.Role) + 4 // role tokens + separators
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case domain.TextPart:
				totalChars += len(p.Text)
			case domain.ToolCallPart:
				totalChars += len(p.ToolName) + len(p.Input)
			case domain.ToolResultPart:
				totalChars += len(p.Output) + len(p.ErrorText)
			}
		}
	}

	return int(float64(totalChars) / e.CharsPerToken), nil
}

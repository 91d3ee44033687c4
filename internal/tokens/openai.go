package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/propertychat/internal/domain"
)

// Token overhead per message and per tool structure for chat models.
const (
	tokensPerMessage  = 3
	tokensPerRole     = 1
	tokensPerToolCall = 3
	tokensPerResult   = 2
	assistantPriming  = 3
)

// OpenAICounter provides accurate token counts for OpenAI models using tiktoken.
type OpenAICounter struct {
	model string
	// codecCache caches tokenizer codecs by encoding name
	codecCache map[tokenizer.Encoding]tokenizer.Codec
	cacheMu    sync.RWMutex
}

var _ Counter = (*OpenAICounter)(nil)

// NewOpenAICounter creates a counter for the given model name.
func NewOpenAICounter(model string) *OpenAICounter {
	return &OpenAICounter{
		model:      model,
		codecCache: make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

// getCodec returns the tokenizer codec for a model.
func (c *OpenAICounter) getCodec(model string) (tokenizer.Codec, error) {
	if codec, err := tokenizer.ForModel(mapModelName(model)); err == nil {
		return codec, nil
	}

	// Fall back to encoding based on model prefix
	encoding := modelToEncoding(model)

	c.cacheMu.RLock()
	if cached, ok := c.codecCache[encoding]; ok {
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}

	c.cacheMu.Lock()
	c.codecCache[encoding] = codec
	c.cacheMu.Unlock()

	return codec, nil
}

// mapModelName maps a model string to tokenizer.Model
func mapModelName(model string) tokenizer.Model {
	model = strings.ToLower(model)

	switch {
	case model == "gpt-5-mini" || strings.HasPrefix(model, "gpt-5-mini-"):
		return tokenizer.GPT5Mini
	case model == "gpt-5-nano" || strings.HasPrefix(model, "gpt-5-nano-"):
		return tokenizer.GPT5Nano
	case strings.HasPrefix(model, "gpt-5"):
		return tokenizer.GPT5
	case strings.HasPrefix(model, "gpt-4.1"):
		return tokenizer.GPT41
	case strings.HasPrefix(model, "gpt-4o"):
		return tokenizer.GPT4o
	case strings.HasPrefix(model, "o4-mini"):
		return tokenizer.O4Mini
	case strings.HasPrefix(model, "o3-mini"):
		return tokenizer.O3Mini
	case model == "o3" || strings.HasPrefix(model, "o3-"):
		return tokenizer.O3
	case strings.HasPrefix(model, "gpt-4"):
		return tokenizer.GPT4
	case strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.GPT35Turbo
	case strings.HasPrefix(model, "text-embedding"):
		return tokenizer.TextEmbeddingAda002
	default:
		// Return as Model type - tokenizer.ForModel will handle unknown models
		return tokenizer.Model(model)
	}
}

// modelToEncoding maps model names to encoding names for fallback.
//
// Encoding reference:
// - O200kBase: GPT-5, GPT-4.1, GPT-4o, O-series and newer models
// - Cl100kBase: GPT-4, GPT-3.5-turbo, text-embedding models
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"), strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	default:
		// Default to O200k_base for unknown/future models (most likely encoding)
		return tokenizer.O200kBase
	}
}

// CountMessages counts the prompt tokens of a system string plus messages.
func (c *OpenAICounter) CountMessages(system string, msgs []domain.Message) (int, error) {
	codec, err := c.getCodec(c.model)
	if err != nil {
		return 0, err
	}

	count := func(s string) int {
		ids, _, _ := codec.Encode(s)
		return len(ids)
	}

	total := 0
	if system != "" {
		total += tokensPerMessage + tokensPerRole + count(system)
	}

	for _, msg := range msgs {
		total += tokensPerMessage + tokensPerRole
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case domain.TextPart:
				total += count(p.Text)
			case domain.ToolCallPart:
				total += count(p.ToolName) + count(string(p.Input)) + tokensPerToolCall
			case domain.ToolResultPart:
				if p.IsError() {
					total += count(p.ErrorText)
				} else {
					total += count(string(p.Output))
				}
				total += tokensPerResult
			}
		}
	}

	return total + assistantPriming, nil
}

// CountText counts tokens for a plain text string.
func (c *OpenAICounter) CountText(text string) (int, error) {
	codec, err := c.getCodec(c.model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

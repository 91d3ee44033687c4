package openai

import (
	"github.com/tjfontaine/propertychat/internal/domain"
	"github.com/tjfontaine/propertychat/internal/llm"
)

// buildRequest converts a model request to the chat completions shape.
func buildRequest(req *llm.Request) *ChatCompletionRequest {
	out := &ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, ChatCompletionMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, convertMessage(msg)...)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{
			Type: "function",
			Function: FunctionTool{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if len(out.Tools) > 0 {
		out.ToolChoice = "auto"
	}

	return out
}

// convertMessage flattens one domain message into API messages. An
// assistant message spanning several steps becomes alternating assistant
// and tool messages, in part order.
func convertMessage(msg domain.Message) []ChatCompletionMessage {
	if msg.Role != domain.RoleAssistant {
		return []ChatCompletionMessage{{Role: string(msg.Role), Content: msg.Text()}}
	}

	var out []ChatCompletionMessage
	var cur *ChatCompletionMessage

	flush := func() {
		if cur != nil && (cur.Content != "" || len(cur.ToolCalls) > 0) {
			out = append(out, *cur)
		}
		cur = nil
	}

	for _, part := range msg.Parts {
		switch p := part.(type) {
		case domain.TextPart:
			if cur == nil {
				cur = &ChatCompletionMessage{Role: "assistant"}
			}
			cur.Content += p.Text
		case domain.ToolCallPart:
			if cur == nil {
				cur = &ChatCompletionMessage{Role: "assistant"}
			}
			args := string(p.Input)
			if args == "" {
				args = "{}"
			}
			cur.ToolCalls = append(cur.ToolCalls, ToolCall{
				ID:       p.ToolCallID,
				Type:     "function",
				Function: FunctionCall{Name: p.ToolName, Arguments: args},
			})
		case domain.ToolResultPart:
			flush()
			content := p.ErrorText
			if !p.IsError() {
				content = string(p.Output)
			}
			out = append(out, ChatCompletionMessage{Role: "tool", ToolCallID: p.ToolCallID, Content: content})
		}
	}
	flush()

	return out
}

// toChunks converts one stream result into zero or more model chunks.
func toChunks(res StreamResult) []llm.Chunk {
	if res.Err != nil {
		return []llm.Chunk{{Err: res.Err}}
	}

	var out []llm.Chunk
	for _, choice := range res.Chunk.Choices {
		if choice.Index != 0 {
			continue
		}
		if choice.Delta.Content != "" {
			out = append(out, llm.Chunk{TextDelta: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			delta := &llm.ToolCallDelta{Index: tc.Index, ID: tc.ID}
			if tc.Function != nil {
				delta.Name = tc.Function.Name
				delta.ArgumentsDelta = tc.Function.Arguments
			}
			out = append(out, llm.Chunk{ToolCall: delta})
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			out = append(out, llm.Chunk{FinishReason: *choice.FinishReason})
		}
	}

	if u := res.Chunk.Usage; u != nil {
		out = append(out, llm.Chunk{Usage: &llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}})
	}

	return out
}

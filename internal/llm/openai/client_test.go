package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/propertychat/internal/domain"
	"github.com/tjfontaine/propertychat/internal/llm"
	"github.com/tjfontaine/propertychat/internal/testutil"
)

func collect(t *testing.T, ch <-chan llm.Chunk) []llm.Chunk {
	t.Helper()
	var out []llm.Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func userRequest(text string) *llm.Request {
	return &llm.Request{
		Model:  "gpt-4o",
		System: "be brief",
		Messages: []domain.Message{{
			Role:  domain.RoleUser,
			Parts: []domain.Part{domain.TextPart{Text: text}},
		}},
	}
}

func TestClient_StreamRecordedToolCall(t *testing.T) {
	r, cleanup := testutil.NewVCRRecorder(t, "chat_stream_tool_call")
	defer cleanup()

	client := NewClient("test-key", WithHTTPClient(testutil.VCRHTTPClient(r)))

	ch, err := client.Stream(context.Background(), userRequest("London prices Q1 2025"))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var args strings.Builder
	var id, name, finish string
	var usage *llm.Usage
	for _, c := range collect(t, ch) {
		if c.Err != nil {
			t.Fatalf("chunk error = %v", c.Err)
		}
		if c.ToolCall != nil {
			if c.ToolCall.ID != "" {
				id = c.ToolCall.ID
			}
			if c.ToolCall.Name != "" {
				name = c.ToolCall.Name
			}
			args.WriteString(c.ToolCall.ArgumentsDelta)
		}
		if c.FinishReason != "" {
			finish = c.FinishReason
		}
		if c.Usage != nil {
			usage = c.Usage
		}
	}

	if id != "call_abc" || name != "getHousePrices" {
		t.Errorf("tool call = %s/%s", id, name)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(args.String()), &parsed); err != nil {
		t.Fatalf("arguments %q are not JSON: %v", args.String(), err)
	}
	if parsed["start"] != "2025-01-01" {
		t.Errorf("start = %v", parsed["start"])
	}
	if finish != llm.FinishToolCalls {
		t.Errorf("finish = %q", finish)
	}
	if usage == nil || usage.TotalTokens != 843 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestClient_StreamText(t *testing.T) {
	var got ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Average ", "price ", "rose."} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL+"/"))
	ch, err := client.Stream(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var text strings.Builder
	var finish string
	for _, c := range collect(t, ch) {
		text.WriteString(c.TextDelta)
		if c.FinishReason != "" {
			finish = c.FinishReason
		}
	}
	if text.String() != "Average price rose." {
		t.Errorf("text = %q", text.String())
	}
	if finish != llm.FinishStop {
		t.Errorf("finish = %q", finish)
	}

	if !got.Stream || got.StreamOptions == nil || !got.StreamOptions.IncludeUsage {
		t.Error("request should stream with usage")
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType domain.ErrorType
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit_error"}}`, domain.ErrorTypeRateLimit},
		{"auth", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`, domain.ErrorTypeAuthentication},
		{"context", http.StatusBadRequest, `{"error":{"message":"too long","type":"invalid_request_error","code":"context_length_exceeded"}}`, domain.ErrorTypeContextLength},
		{"unparseable 503", http.StatusServiceUnavailable, `upstream down`, domain.ErrorTypeOverloaded},
		{"unparseable 500", http.StatusInternalServerError, `oops`, domain.ErrorTypeServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client := NewClient("k", WithBaseURL(server.URL))
			_, err := client.Stream(context.Background(), userRequest("hi"))

			var apiErr *domain.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *domain.APIError", err)
			}
			if apiErr.Type != tt.wantType {
				t.Errorf("type = %s, want %s", apiErr.Type, tt.wantType)
			}
		})
	}
}

func TestClient_MidStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"overloaded\",\"type\":\"service_unavailable\"}}\n\n")
	}))
	defer server.Close()

	client := NewClient("k", WithBaseURL(server.URL))
	ch, err := client.Stream(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatal(err)
	}
	chunks := collect(t, ch)
	last := chunks[len(chunks)-1]
	var apiErr *domain.APIError
	if !errors.As(last.Err, &apiErr) || apiErr.Type != domain.ErrorTypeOverloaded {
		t.Errorf("last chunk = %+v, want overloaded error", last)
	}
}

func TestConvertMessage_MultiStepAssistant(t *testing.T) {
	msg := domain.Message{
		Role: domain.RoleAssistant,
		Parts: []domain.Part{
			domain.ToolCallPart{ToolCallID: "a", ToolName: "getAvailableRegions", Input: json.RawMessage(`{}`)},
			domain.ToolCallPart{ToolCallID: "b", ToolName: "matchRegion", Input: json.RawMessage(`{"query":"leeds"}`)},
			domain.ToolResultPart{ToolCallID: "a", Output: json.RawMessage(`{"region_names":["Leeds"]}`)},
			domain.ToolResultPart{ToolCallID: "b", ErrorText: "failed to get data, please try again"},
			domain.TextPart{Text: "Leeds it is."},
		},
	}

	got := convertMessage(msg)
	if len(got) != 4 {
		t.Fatalf("messages = %+v", got)
	}
	if got[0].Role != "assistant" || len(got[0].ToolCalls) != 2 {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Role != "tool" || got[1].ToolCallID != "a" {
		t.Errorf("second = %+v", got[1])
	}
	if got[2].Content != "failed to get data, please try again" {
		t.Errorf("error result content = %q", got[2].Content)
	}
	if got[3].Role != "assistant" || got[3].Content != "Leeds it is." {
		t.Errorf("last = %+v", got[3])
	}
}

func TestBuildRequest_Tools(t *testing.T) {
	req := userRequest("hi")
	req.Tools = []llm.ToolSpec{{Name: "getAvailableRegions", Description: "d", Parameters: map[string]any{"type": "object"}}}
	req.MaxOutputTokens = 1000

	got := buildRequest(req)
	if len(got.Tools) != 1 || got.Tools[0].Type != "function" || got.Tools[0].Function.Name != "getAvailableRegions" {
		t.Errorf("tools = %+v", got.Tools)
	}
	if got.ToolChoice != "auto" || got.MaxTokens != 1000 {
		t.Errorf("tool_choice = %v max_tokens = %d", got.ToolChoice, got.MaxTokens)
	}
}

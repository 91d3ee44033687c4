package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/propertychat/internal/llm"
	"github.com/tjfontaine/propertychat/internal/orchestrator"
	"github.com/tjfontaine/propertychat/internal/protocol"
	"github.com/tjfontaine/propertychat/internal/testutil"
	"github.com/tjfontaine/propertychat/internal/tools"
)

type stubTools struct{}

func (stubTools) Definitions() []tools.Definition {
	return []tools.Definition{{Name: "getAvailableRegions", Description: "regions", Schema: tools.Object(nil)}}
}

func (stubTools) Execute(context.Context, string, json.RawMessage) tools.Result {
	return tools.Result{Output: json.RawMessage(`{"region_names":["London"]}`)}
}

type failingRetriever struct{}

func (failingRetriever) Context(context.Context, string) (string, error) {
	return "", errors.New("vector store unavailable")
}

func newTestHandler(model llm.Model, opts ...orchestrator.Option) *Handler {
	opts = append([]orchestrator.Option{orchestrator.WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	loop := orchestrator.New(model, stubTools{}, orchestrator.Config{}, opts...)
	return NewHandler(loop, WithLogger(slog.New(slog.DiscardHandler)))
}

const question = `{"messages":[{"id":"u1","role":"user","parts":[{"type":"text","text":"Which regions?"}]}]}`

func decodeKinds(t *testing.T, body string) []protocol.Kind {
	t.Helper()
	dec := protocol.NewDecoder(strings.NewReader(body))
	var kinds []protocol.Kind
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return kinds
		}
		if err != nil {
			t.Fatalf("Next() error = %v (body %q)", err, body)
		}
		kinds = append(kinds, ev.Type)
	}
}

func TestHandleAsk_Streams(t *testing.T) {
	model := testutil.NewScriptedModel(
		testutil.Step{Chunks: []llm.Chunk{
			testutil.Call(0, "call_1", "getAvailableRegions", `{}`),
			testutil.Finish(llm.FinishToolCalls),
		}},
		testutil.TextStep("London is available."),
	)
	h := newTestHandler(model)

	req := httptest.NewRequest(http.MethodPost, AskPath, strings.NewReader(question))
	rec := httptest.NewRecorder()
	h.HandleAsk(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if v := rec.Header().Get(protocol.HeaderUIMessageStream); v != "v1" {
		t.Errorf("%s = %q", protocol.HeaderUIMessageStream, v)
	}

	want := []protocol.Kind{
		protocol.KindStart,
		protocol.KindStartStep,
		protocol.KindToolInputStart, protocol.KindToolInputDelta, protocol.KindToolInputAvailable, protocol.KindToolOutputAvailable,
		protocol.KindFinishStep,
		protocol.KindStartStep,
		protocol.KindTextStart, protocol.KindTextDelta, protocol.KindTextEnd,
		protocol.KindFinishStep,
		protocol.KindFinish,
	}
	if got := decodeKinds(t, rec.Body.String()); !reflect.DeepEqual(got, want) {
		t.Errorf("kinds = %v\nwant %v", got, want)
	}
	if !strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n") {
		t.Error("stream should end with [DONE]")
	}
}

func TestHandleAsk_SetupFailures(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		opts   []orchestrator.Option
		status int
	}{
		{"malformed json", `{"messages":`, nil, http.StatusBadRequest},
		{"missing messages", `{}`, nil, http.StatusBadRequest},
		{"unknown role", `{"messages":[{"role":"robot","parts":[{"type":"text","text":"x"}]}]}`, nil, http.StatusBadRequest},
		{"result without call", `{"messages":[{"role":"assistant","parts":[{"type":"tool-result","toolCallId":"c1","output":{}}]}]}`, nil, http.StatusBadRequest},
		{"retrieval failure", question, []orchestrator.Option{orchestrator.WithRetriever(failingRetriever{})}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := testutil.NewScriptedModel(testutil.TextStep("unused"))
			h := newTestHandler(model, tt.opts...)

			rec := httptest.NewRecorder()
			h.HandleAsk(rec, httptest.NewRequest(http.MethodPost, AskPath, strings.NewReader(tt.body)))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", rec.Body.String())
			}
			if model.Calls() != 0 {
				t.Errorf("model was called %d times", model.Calls())
			}
		})
	}
}

func TestHandleAsk_ModelError(t *testing.T) {
	model := testutil.NewScriptedModel(testutil.Step{Err: errors.New("upstream 503")})
	h := newTestHandler(model)

	rec := httptest.NewRecorder()
	h.HandleAsk(rec, httptest.NewRequest(http.MethodPost, AskPath, strings.NewReader(question)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, stream already started", rec.Code)
	}
	want := []protocol.Kind{protocol.KindStart, protocol.KindStartStep, protocol.KindError}
	if got := decodeKinds(t, rec.Body.String()); !reflect.DeepEqual(got, want) {
		t.Errorf("kinds = %v, want %v", got, want)
	}
	if !strings.Contains(rec.Body.String(), orchestrator.GenericModelError) {
		t.Error("error event should carry the generic text")
	}
	if strings.Contains(rec.Body.String(), "upstream 503") {
		t.Error("provider error leaked to the client")
	}
}

func TestHandleAsk_Cancelled(t *testing.T) {
	model := testutil.NewScriptedModel(testutil.Step{Chunks: []llm.Chunk{testutil.Text("Prices in")}, Hold: true})
	h := newTestHandler(model)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, AskPath, strings.NewReader(question)).WithContext(ctx)
	rec := httptest.NewRecorder()

	go func() {
		for model.Calls() == 0 {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan struct{})
	go func() {
		h.HandleAsk(rec, req)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after cancellation")
	}

	for _, k := range decodeKinds(t, rec.Body.String()) {
		if k == protocol.KindFinish || k == protocol.KindError {
			t.Errorf("cancelled turn sent %s", k)
		}
	}
}

func TestRoutes(t *testing.T) {
	h := newTestHandler(testutil.NewScriptedModel())
	routes := h.Routes()
	if len(routes) != 1 || routes[0].Path != "/api/ask" || routes[0].Method != http.MethodPost {
		t.Errorf("routes = %+v", routes)
	}
}

package chatclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/propertychat/internal/domain"
	"github.com/tjfontaine/propertychat/internal/frontdoor/chat"
	"github.com/tjfontaine/propertychat/internal/llm"
	"github.com/tjfontaine/propertychat/internal/orchestrator"
	"github.com/tjfontaine/propertychat/internal/testutil"
)

func newChatServer(t *testing.T, model llm.Model) *httptest.Server {
	t.Helper()
	loop := orchestrator.New(model, roundTripTools{}, orchestrator.Config{},
		orchestrator.WithLogger(slog.New(slog.DiscardHandler)))
	h := chat.NewHandler(loop, chat.WithLogger(slog.New(slog.DiscardHandler)))

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+chat.AskPath, h.HandleAsk)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

var question = []domain.Message{{Role: domain.RoleUser, Parts: []domain.Part{domain.TextPart{Text: "Average price in London?"}}}}

func TestClient_Send(t *testing.T) {
	model := testutil.NewScriptedModel(
		testutil.Step{Chunks: []llm.Chunk{
			testutil.Call(0, "call_a", "getHousePrices", `{"region":["London"]}`),
			testutil.Finish(llm.FinishToolCalls),
		}},
		testutil.TextStep("About ", "£550,000."),
	)
	srv := newChatServer(t, model)

	var statuses []Status
	snap, err := NewClient(srv.URL).Send(context.Background(), question, func(s Snapshot) {
		statuses = append(statuses, s.Status)
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if snap.Status != StatusReady || snap.Text() != "About £550,000." {
		t.Errorf("snapshot = %+v", snap)
	}
	if statuses[0] != StatusSubmitted {
		t.Errorf("first update = %s, want submitted", statuses[0])
	}
	if statuses[len(statuses)-1] != StatusReady {
		t.Errorf("last update = %s, want ready", statuses[len(statuses)-1])
	}

	msg := snap.Message()
	if len(msg.ToolCalls()) != 1 || !msg.Complete() {
		t.Errorf("message = %+v", msg)
	}
}

func TestClient_SendStatusError(t *testing.T) {
	srv := newChatServer(t, testutil.NewScriptedModel())

	snap, err := NewClient(srv.URL).Send(context.Background(), nil, nil)
	var se *HTTPStatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("Send() error = %v, want 400 StatusError", err)
	}
	if snap.Status != StatusError {
		t.Errorf("status = %s, want error", snap.Status)
	}
	if RenderTurn(snap).ErrorBanner != ErrorBannerText {
		t.Error("expected the error banner")
	}
}

func TestClient_SendTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"type\":\"start\",\"messageId\":\"m1\"}\n\n")
	}))
	defer srv.Close()

	snap, err := NewClient(srv.URL).Send(context.Background(), question, nil)
	if err == nil {
		t.Fatal("Send() should report a truncated stream")
	}
	if snap.Status != StatusError || !snap.Incomplete {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestClient_SendCancelled(t *testing.T) {
	model := testutil.NewScriptedModel(testutil.Step{Chunks: []llm.Chunk{testutil.Text("Prices in London")}, Hold: true})
	srv := newChatServer(t, model)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snap, err := NewClient(srv.URL).Send(ctx, question, func(s Snapshot) {
		if strings.Contains(s.Text(), "London") {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Send() error = %v, cancellation is not an error", err)
	}
	if snap.Status != StatusAborted || !snap.Finalized || !snap.Incomplete {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Text() != "Prices in London" {
		t.Errorf("text = %q", snap.Text())
	}
	if RenderTurn(snap).ErrorBanner != "" {
		t.Error("a stopped turn shows no banner")
	}
}

func TestClient_APIKeyHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, WithAPIKey("sk-1")).Send(context.Background(), question, nil)
	var se *HTTPStatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Errorf("Send() error = %v", err)
	}
	if got != "Bearer sk-1" {
		t.Errorf("Authorization = %q", got)
	}
}

// Package chat is the HTTP frontdoor for the assistant: POST /api/ask takes
// the conversation and streams the answer as a UI message stream.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tjfontaine/propertychat/internal/domain"
	"github.com/tjfontaine/propertychat/internal/orchestrator"
	"github.com/tjfontaine/propertychat/internal/protocol"
	"github.com/tjfontaine/propertychat/internal/server"
)

// AskPath is the single chat route.
const AskPath = "/api/ask"

// DefaultMaxBodyBytes caps the request body.
const DefaultMaxBodyBytes = 1 << 20

// Route defines an HTTP route registration.
type Route struct {
	Path    string
	Method  string
	Handler http.HandlerFunc
}

// AskRequest is the request body.
type AskRequest struct {
	Messages []domain.Message `json:"messages"`
}

type Handler struct {
	loop      *orchestrator.Loop
	logger    *slog.Logger
	heartbeat time.Duration
	maxBody   int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithHeartbeat sends a keep-alive comment frame every interval while a
// turn runs. Zero disables it.
func WithHeartbeat(interval time.Duration) Option {
	return func(h *Handler) { h.heartbeat = interval }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxBodyBytes caps the request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

func NewHandler(loop *orchestrator.Loop, opts ...Option) *Handler {
	h := &Handler{
		loop:    loop,
		logger:  slog.Default(),
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the handler's route registrations.
func (h *Handler) Routes() []Route {
	return []Route{
		{Path: AskPath, Method: http.MethodPost, Handler: h.HandleAsk},
	}
}

// HandleAsk runs one turn. Failures before streaming starts answer with a
// bare status: 400 for a malformed body or message list, 500 otherwise.
// Once the stream has started, failures are reported in-stream.
func (h *Handler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody)).Decode(&req); err != nil {
		server.AddError(ctx, err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	turn, err := h.loop.Prepare(ctx, req.Messages)
	if err != nil {
		server.AddError(ctx, err)
		if errors.Is(err, domain.ErrInvalidMessages) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "failed to prepare turn",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("error", err.Error()),
		)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	protocol.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	enc := protocol.NewEncoder(w)
	if h.heartbeat > 0 {
		hbCtx, stop := context.WithCancel(ctx)
		defer stop()
		go enc.Heartbeat(hbCtx, h.heartbeat)
	}

	res, err := turn.Run(ctx, enc)
	if res != nil {
		server.AddLogField(ctx, "message_id", res.Message.ID)
		server.AddLogField(ctx, "stop", string(res.Stop))
		server.AddLogAttr(ctx, slog.Int("steps", res.Steps))
		server.AddLogAttr(ctx, slog.Int("total_tokens", res.Usage.TotalTokens))
	}
	if err != nil {
		server.AddError(ctx, err)
	}

	if err := enc.Close(); err != nil && ctx.Err() == nil {
		h.logger.WarnContext(ctx, "failed to close stream",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("error", err.Error()),
		)
	}
}

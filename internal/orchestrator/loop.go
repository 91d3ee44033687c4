// Package orchestrator drives one assistant turn: it invokes the model,
// dispatches the tool calls it asks for, feeds the results back and stops
// on a bounded number of steps, cancellation or a model failure. Every
// observable change is sent to a protocol.Sink as it happens.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/propertychat/internal/config"
	"github.com/tjfontaine/propertychat/internal/domain"
	"github.com/tjfontaine/propertychat/internal/llm"
	"github.com/tjfontaine/propertychat/internal/protocol"
	"github.com/tjfontaine/propertychat/internal/tokens"
	"github.com/tjfontaine/propertychat/internal/tools"
)

// GenericModelError is the text sent to the client when the model call fails.
const GenericModelError = "Failed to get AI response"

// StopReason records why a turn ended.
type StopReason string

const (
	StopDone        StopReason = "stop"
	StopStepLimit   StopReason = "step-limit"
	StopLength      StopReason = "length"
	StopTokenBudget StopReason = "token-budget"
	StopCancelled   StopReason = "cancelled"
	StopTimeout     StopReason = "timeout"
	StopError       StopReason = "error"
)

// finishReason maps a stop reason to the finish event vocabulary.
func (s StopReason) finishReason() string {
	switch s {
	case StopStepLimit:
		return "tool-calls"
	case StopLength, StopTokenBudget:
		return "length"
	default:
		return "stop"
	}
}

// ToolExecutor runs tools on the model's behalf. *tools.Registry implements it.
type ToolExecutor interface {
	Definitions() []tools.Definition
	Execute(ctx context.Context, name string, raw json.RawMessage) tools.Result
}

// ContextProvider supplies retrieved passages for a question.
type ContextProvider interface {
	Context(ctx context.Context, question string) (string, error)
}

// Config bounds a turn.
type Config struct {
	Model           string
	MaxOutputTokens int
	Temperature     *float64

	MaxSteps         int
	HistoryWindow    int
	CompactThreshold int
	CompactKeep      int
	TurnTokenBudget  int
	ToolConcurrency  int
}

// ConfigFrom extracts the loop settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	c := Config{
		Model:            cfg.Model.Name,
		MaxOutputTokens:  cfg.Model.MaxOutputTokens,
		MaxSteps:         cfg.Chat.MaxSteps,
		HistoryWindow:    cfg.Chat.HistoryWindow,
		CompactThreshold: cfg.Chat.CompactThresholdTokens,
		CompactKeep:      cfg.Chat.CompactKeep,
		TurnTokenBudget:  cfg.Chat.TurnTokenBudget,
		ToolConcurrency:  cfg.Chat.ToolConcurrency,
	}
	if cfg.Model.Temperature != 0 {
		t := cfg.Model.Temperature
		c.Temperature = &t
	}
	return c
}

func (c Config) withDefaults() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 6
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 10
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 1000
	}
	if c.ToolConcurrency <= 0 {
		c.ToolConcurrency = 4
	}
	return c
}

// Loop runs turns. It holds no per-turn state and is safe for concurrent use.
type Loop struct {
	model     llm.Model
	tools     ToolExecutor
	retriever ContextProvider
	counter   tokens.Counter
	cfg       Config
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// Option configures a Loop.
type Option func(*Loop)

// WithRetriever switches the loop to retrieval mode: retrieved context is
// placed in the system prompt. Use it with an empty tool registry.
func WithRetriever(r ContextProvider) Option {
	return func(l *Loop) { l.retriever = r }
}

// WithCounter sets the token counter used for compaction.
func WithCounter(c tokens.Counter) Option {
	return func(l *Loop) {
		if c != nil {
			l.counter = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock sets the clock used for the date in the system prompt.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithIDGenerator sets the generator for message, text and call ids.
func WithIDGenerator(f func() string) Option {
	return func(l *Loop) { l.newID = f }
}

// New creates a loop.
func New(model llm.Model, executor ToolExecutor, cfg Config, opts ...Option) *Loop {
	l := &Loop{
		model:   model,
		tools:   executor,
		counter: tokens.NewEstimator(),
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
		tracer:  otel.Tracer("github.com/tjfontaine/propertychat/internal/orchestrator"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	if l.tools == nil {
		l.tools = tools.Empty()
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Turn is a prepared turn: the window and the instructions are fixed, and
// nothing has been sent yet.
type Turn struct {
	loop   *Loop
	system string
	window []domain.Message
	specs  []llm.ToolSpec

	// callIDs holds every tool call id in the history and the turn so far.
	// A provider id already in it is replaced.
	callIDs map[string]bool
}

// Prepare validates history and builds the window and system prompt. Errors
// here happen before any event is sent.
func (l *Loop) Prepare(ctx context.Context, history []domain.Message) (*Turn, error) {
	if err := domain.ValidateConversation(history); err != nil {
		return nil, err
	}

	defs := l.tools.Definitions()
	specs := make([]llm.ToolSpec, 0, len(defs))
	for _, d := range defs {
		specs = append(specs, llm.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.Schema.JSONSchema()})
	}

	var retrieved string
	if l.retriever != nil {
		var err error
		retrieved, err = l.retriever.Context(ctx, domain.LastUserText(history))
		if err != nil {
			return nil, fmt.Errorf("retrieve context: %w", err)
		}
	}

	callIDs := make(map[string]bool)
	for _, m := range history {
		for _, c := range m.ToolCalls() {
			callIDs[c.ToolCallID] = true
		}
	}

	return &Turn{
		loop:    l,
		system:  SystemPrompt(l.now(), len(specs) > 0, retrieved),
		window:  Window(history, l.cfg.HistoryWindow),
		specs:   specs,
		callIDs: callIDs,
	}, nil
}

// Result summarizes a finished turn.
type Result struct {
	// Message is the assistant message as built during the turn.
	Message domain.Message
	Steps   int
	Stop    StopReason
	Usage   llm.Usage
}

// Run prepares and runs a turn in one call.
func (l *Loop) Run(ctx context.Context, history []domain.Message, sink protocol.Sink) (*Result, error) {
	turn, err := l.Prepare(ctx, history)
	if err != nil {
		return nil, err
	}
	return turn.Run(ctx, sink)
}

// Run executes the turn. Cancellation is not an error: it returns a result
// with StopCancelled and sends no finish event. A model failure sends an
// error event and returns a *domain.ModelError. A deadline sends the same
// error event and returns StopTimeout with context.DeadlineExceeded.
func (t *Turn) Run(ctx context.Context, sink protocol.Sink) (*Result, error) {
	l := t.loop
	out := newEmitter(ctx, sink)

	res := &Result{Message: domain.Message{ID: l.newID(), Role: domain.RoleAssistant}}
	logger := l.logger.With(slog.String("message_id", res.Message.ID))

	if err := out.send(protocol.Start(res.Message.ID)); err != nil {
		return nil, err
	}

	for step := 1; step <= l.cfg.MaxSteps; step++ {
		if ctx.Err() != nil {
			return t.interrupted(ctx, out, res, logger)
		}

		req := &llm.Request{
			Model:           l.cfg.Model,
			System:          t.system,
			Messages:        t.stepMessages(ctx, &res.Message, logger),
			Tools:           t.specs,
			MaxOutputTokens: l.cfg.MaxOutputTokens,
			Temperature:     l.cfg.Temperature,
		}

		res.Steps = step
		sr, err := t.step(ctx, step, req, &res.Message, out)
		if sr != nil && sr.usage != nil {
			res.Usage.PromptTokens += sr.usage.PromptTokens
			res.Usage.CompletionTokens += sr.usage.CompletionTokens
			res.Usage.TotalTokens += sr.usage.TotalTokens
		}

		if ctx.Err() != nil {
			return t.interrupted(ctx, out, res, logger)
		}
		if err != nil {
			res.Stop = StopError
			logger.ErrorContext(ctx, "model call failed", slog.Int("step", step), slog.String("error", err.Error()))
			_ = out.final(protocol.Error(GenericModelError))
			return res, &domain.ModelError{Err: err}
		}

		logger.InfoContext(ctx, "step finished",
			slog.Int("step", step),
			slog.Int("tool_calls", sr.calls),
			slog.String("finish_reason", sr.finish),
		)

		if stop := t.decide(step, sr, res.Usage); stop != "" {
			res.Stop = stop
			break
		}
	}

	logger.InfoContext(ctx, "turn finished",
		slog.Int("steps", res.Steps),
		slog.String("stop", string(res.Stop)),
		slog.Int("total_tokens", res.Usage.TotalTokens),
	)
	if err := out.final(protocol.Finish(res.Stop.finishReason())); err != nil {
		return res, err
	}
	return res, nil
}

// interrupted ends a turn whose ctx is done. A user stop is silent; a
// deadline is reported to the client as a model failure.
func (t *Turn) interrupted(ctx context.Context, out *emitter, res *Result, logger *slog.Logger) (*Result, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Stop = StopTimeout
		logger.Warn("turn timed out", slog.Int("steps", res.Steps))
		_ = out.abort(protocol.Error(GenericModelError))
		return res, ctx.Err()
	}
	out.halt()
	res.Stop = StopCancelled
	logger.Info("turn cancelled", slog.Int("steps", res.Steps))
	return res, nil
}

// stepMessages returns the history the model sees this step: the window
// (compacted when it is too large) followed by the assistant message so far.
func (t *Turn) stepMessages(ctx context.Context, assistant *domain.Message, logger *slog.Logger) []domain.Message {
	l := t.loop
	window := t.window

	if l.cfg.CompactThreshold > 0 {
		size, err := l.counter.CountMessages(t.system, appendAssistant(window, assistant))
		if err != nil {
			logger.WarnContext(ctx, "token count failed", slog.String("error", err.Error()))
		} else if size > l.cfg.CompactThreshold {
			compacted := compact(window, l.cfg.CompactKeep)
			logger.InfoContext(ctx, "compacting history for step",
				slog.Int("tokens", size),
				slog.Int("messages", len(window)),
				slog.Int("kept", len(compacted)),
			)
			window = compacted
		}
	}

	return appendAssistant(window, assistant)
}

func appendAssistant(window []domain.Message, assistant *domain.Message) []domain.Message {
	msgs := make([]domain.Message, 0, len(window)+1)
	msgs = append(msgs, window...)
	if len(assistant.Parts) > 0 {
		cp := *assistant
		cp.Parts = append([]domain.Part(nil), assistant.Parts...)
		msgs = append(msgs, cp)
	}
	return msgs
}

// decide returns the reason to stop after step, or "" to continue.
func (t *Turn) decide(step int, sr *stepResult, usage llm.Usage) StopReason {
	cfg := t.loop.cfg
	switch {
	case sr.calls == 0 && sr.finish == llm.FinishLength:
		return StopLength
	case sr.calls == 0:
		return StopDone
	case cfg.TurnTokenBudget > 0 && usage.TotalTokens > cfg.TurnTokenBudget:
		return StopTokenBudget
	case step == cfg.MaxSteps:
		return StopStepLimit
	default:
		return ""
	}
}

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/propertychat/internal/domain"
	"github.com/tjfontaine/propertychat/internal/llm"
	"github.com/tjfontaine/propertychat/internal/protocol"
	"github.com/tjfontaine/propertychat/internal/tools"
)

var errHalted = errors.New("emitter halted")

// emitter serializes sends to the sink. Once ctx is done or the emitter is
// halted nothing more is sent, so tool goroutines still running after a
// stop or a model error stay silent.
type emitter struct {
	mu      sync.Mutex
	ctx     context.Context
	sink    protocol.Sink
	stopped bool
	err     error
}

func newEmitter(ctx context.Context, sink protocol.Sink) *emitter {
	return &emitter{ctx: ctx, sink: sink}
}

func (e *emitter) send(ev protocol.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendLocked(ev)
}

// final sends ev and halts.
func (e *emitter) final(ev protocol.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.sendLocked(ev)
	e.stopped = true
	return err
}

func (e *emitter) halt() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
}

// abort sends ev even though ctx is done, then halts. It is how a turn
// that ran out of time still tells the client why it ended.
func (e *emitter) abort(ev protocol.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	return e.write(ev)
}

func (e *emitter) sendLocked(ev protocol.Event) error {
	if e.stopped || e.ctx.Err() != nil {
		e.stopped = true
		return errHalted
	}
	return e.write(ev)
}

// write passes ev to the sink. A transport failure sticks; an event the
// sink refuses is dropped and later events still go out.
func (e *emitter) write(ev protocol.Event) error {
	if e.err != nil {
		return e.err
	}
	if err := e.sink.Send(ev); err != nil {
		if !errors.Is(err, protocol.ErrLifecycle) && !errors.Is(err, protocol.ErrEncode) {
			e.err = err
		}
		return err
	}
	return nil
}

type stepResult struct {
	calls  int
	finish string
	usage  *llm.Usage
}

type textRun struct {
	id   string
	part int
	sb   strings.Builder
}

// pendingCall is a tool call being assembled from stream fragments.
type pendingCall struct {
	index int
	id    string
	name  string
	part  int
	args  strings.Builder
	done  bool

	result tools.Result
}

// step runs one model invocation and every tool call it requests. Parts are
// appended to msg as they appear; results are appended in call order once
// all calls have finished.
func (t *Turn) step(ctx context.Context, n int, req *llm.Request, msg *domain.Message, out *emitter) (*stepResult, error) {
	l := t.loop
	ctx, span := l.tracer.Start(ctx, "orchestrator.step", trace.WithAttributes(attribute.Int("step", n)))
	defer span.End()

	sr := &stepResult{}
	_ = out.send(protocol.StartStep())

	var g errgroup.Group
	g.SetLimit(l.cfg.ToolConcurrency)

	var (
		text      *textRun
		calls     = make(map[int]*pendingCall)
		order     []*pendingCall
		streamErr error
	)

	endText := func() {
		if text == nil {
			return
		}
		msg.Parts[text.part] = domain.TextPart{Text: text.sb.String()}
		_ = out.send(protocol.TextEnd(text.id))
		text = nil
	}

	complete := func(c *pendingCall) {
		if c.done {
			return
		}
		c.done = true
		input := json.RawMessage(c.args.String())
		if len(bytes.TrimSpace(input)) == 0 {
			input = json.RawMessage(`{}`)
		}
		// The registry reports the raw arguments as invalid; the message
		// and the client get them as a JSON string.
		shown := wireInput(input)
		msg.Parts[c.part] = domain.ToolCallPart{ToolCallID: c.id, ToolName: c.name, Input: shown}
		_ = out.send(protocol.ToolInputAvailable(c.id, c.name, shown))
		t.dispatch(ctx, &g, c, input, out)
	}

	stream, err := l.model.Stream(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return sr, err
	}

	for chunk := range stream {
		switch {
		case chunk.Err != nil:
			streamErr = chunk.Err

		case chunk.TextDelta != "":
			if text == nil {
				text = &textRun{id: l.newID(), part: len(msg.Parts)}
				msg.Parts = append(msg.Parts, domain.TextPart{})
				_ = out.send(protocol.TextStart(text.id))
			}
			text.sb.WriteString(chunk.TextDelta)
			_ = out.send(protocol.TextDelta(text.id, chunk.TextDelta))

		case chunk.ToolCall != nil:
			tc := chunk.ToolCall
			c, ok := calls[tc.Index]
			if !ok {
				endText()
				// A new index means every lower-indexed call is complete.
				for _, prev := range order {
					if prev.index < tc.Index {
						complete(prev)
					}
				}
				id := tc.ID
				if id == "" || t.callIDs[id] {
					id = "call_" + l.newID()
				}
				t.callIDs[id] = true
				c = &pendingCall{index: tc.Index, id: id, name: tc.Name, part: len(msg.Parts)}
				msg.Parts = append(msg.Parts, domain.ToolCallPart{ToolCallID: id, ToolName: tc.Name})
				calls[tc.Index] = c
				order = append(order, c)
				_ = out.send(protocol.ToolInputStart(c.id, c.name))
			}
			if c.name == "" {
				c.name = tc.Name
			}
			if tc.ArgumentsDelta != "" && !c.done {
				c.args.WriteString(tc.ArgumentsDelta)
				_ = out.send(protocol.ToolInputDelta(c.id, tc.ArgumentsDelta))
			}

		case chunk.Usage != nil:
			sr.usage = chunk.Usage

		case chunk.FinishReason != "":
			sr.finish = chunk.FinishReason
		}
	}

	if ctx.Err() != nil {
		out.halt()
		return sr, ctx.Err()
	}
	if streamErr != nil {
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, streamErr.Error())
		return sr, streamErr
	}

	endText()
	for _, c := range order {
		complete(c)
	}
	sr.calls = len(order)
	span.SetAttributes(attribute.Int("tool_calls", sr.calls), attribute.String("finish_reason", sr.finish))

	if err := waitTools(ctx, &g); err != nil {
		out.halt()
		return sr, err
	}

	for _, c := range order {
		part := domain.ToolResultPart{ToolCallID: c.id, ToolName: c.name}
		if c.result.IsError() {
			part.ErrorText = c.result.ErrorText
		} else {
			part.Output = c.result.Output
		}
		msg.Parts = append(msg.Parts, part)
	}

	_ = out.send(protocol.FinishStep())
	return sr, nil
}

// dispatch runs a completed call on the group. The execution context is
// detached from cancellation so a user stop does not abort a lookup that
// is already running; its outcome is simply not sent.
func (t *Turn) dispatch(ctx context.Context, g *errgroup.Group, c *pendingCall, input json.RawMessage, out *emitter) {
	l := t.loop
	execCtx := context.WithoutCancel(ctx)

	g.Go(func() error {
		spanCtx, span := l.tracer.Start(execCtx, "tool.execute", trace.WithAttributes(
			attribute.String("tool.name", c.name),
			attribute.String("tool.call_id", c.id),
		))
		defer span.End()

		res := l.tools.Execute(spanCtx, c.name, input)
		c.result = res

		if res.IsError() {
			span.SetStatus(codes.Error, res.ErrorText)
			l.logger.WarnContext(spanCtx, "tool call failed",
				slog.String("tool", c.name),
				slog.String("call_id", c.id),
				slog.String("error", errorString(res.Err)),
			)
			_ = out.send(protocol.ToolOutputError(c.id, res.ErrorText))
			return nil
		}

		l.logger.DebugContext(spanCtx, "tool call finished",
			slog.String("tool", c.name),
			slog.String("call_id", c.id),
			slog.Int("output_bytes", len(res.Output)),
		)
		_ = out.send(protocol.ToolOutputAvailable(c.id, res.Output))
		return nil
	})
}

// waitTools waits for every dispatched call or for ctx to be done.
func waitTools(ctx context.Context, g *errgroup.Group) error {
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wireInput returns raw when it is valid JSON and raw quoted as a JSON
// string otherwise, e.g. arguments cut off by the output token limit.
func wireInput(raw json.RawMessage) json.RawMessage {
	if json.Valid(raw) {
		return raw
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

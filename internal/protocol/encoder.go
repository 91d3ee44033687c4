package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HeaderUIMessageStream identifies the body as a UI message stream.
const HeaderUIMessageStream = "X-Vercel-AI-UI-Message-Stream"

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("protocol: encoder closed")

// ErrEncode wraps an event that cannot be marshalled. Nothing is written
// and the stream state is unchanged.
var ErrEncode = errors.New("protocol: event not encodable")

// Sink receives stream events. Implementations must be safe for concurrent use.
type Sink interface {
	Send(ev Event) error
}

// SetHeaders writes the response headers for an event stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set(HeaderUIMessageStream, "v1")
}

// Encoder writes events as server-sent event frames, flushing after each.
type Encoder struct {
	mu        sync.Mutex
	w         io.Writer
	flusher   http.Flusher
	lifecycle *Lifecycle
	closed    bool
	err       error
}

var _ Sink = (*Encoder)(nil)

// NewEncoder returns an encoder writing to w. If w is an http.Flusher every
// frame is flushed as soon as it is written.
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w, lifecycle: NewLifecycle()}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Send validates and writes one event. An out-of-order event is rejected
// with ErrLifecycle and one that cannot be marshalled with ErrEncode; in
// both cases nothing is written. After a write failure every later call
// returns the same error.
func (e *Encoder) Send(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.err != nil {
		return e.err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncode, ev.Type, err)
	}
	if err := e.lifecycle.Apply(ev); err != nil {
		return err
	}
	return e.write("data: %s\n\n", data)
}

// Close writes the [DONE] terminator. It is safe to call more than once.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if e.err != nil {
		return e.err
	}
	return e.write("data: [DONE]\n\n")
}

// Heartbeat writes a comment frame every interval until ctx is done or the
// encoder is closed. Intermediaries that drop idle connections see traffic
// while a slow tool call is running.
func (e *Encoder) Heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.closed || e.err != nil {
				e.mu.Unlock()
				return
			}
			_ = e.write(": ping\n\n")
			e.mu.Unlock()
		}
	}
}

// write must be called with mu held.
func (e *Encoder) write(format string, args ...any) error {
	if _, err := fmt.Fprintf(e.w, format, args...); err != nil {
		e.err = fmt.Errorf("write event: %w", err)
		return e.err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

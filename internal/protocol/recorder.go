package protocol

import "sync"

// Recorder is a Sink that keeps every accepted event in memory. It applies
// the same ordering checks as Encoder.
type Recorder struct {
	mu        sync.Mutex
	events    []Event
	lifecycle *Lifecycle
}

var _ Sink = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{lifecycle: NewLifecycle()}
}

// Send records ev or returns ErrLifecycle.
func (r *Recorder) Send(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.lifecycle.Apply(ev); err != nil {
		return err
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the recorded event kinds in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

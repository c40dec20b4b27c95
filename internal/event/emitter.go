package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/opencode-ai/reasoner/internal/metrics"
	"github.com/opencode-ai/reasoner/pkg/types"
)

var (
	// ErrMissingTarget is returned for a card event without a target.
	ErrMissingTarget = errors.New("card event requires a target")
	// ErrStreamClosed is returned for any event after done or error.
	ErrStreamClosed = errors.New("event stream closed")
)

// Sink receives the events of one run, in order.
type Sink interface {
	Write(ev types.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev types.Event) error

func (f SinkFunc) Write(ev types.Event) error { return f(ev) }

// NDJSONSink writes one JSON object per line to w and calls flush, if set,
// after each line.
func NDJSONSink(w io.Writer, flush func()) Sink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return SinkFunc(func(ev types.Event) error {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
		return nil
	})
}

// Recorder is a Sink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *Recorder) Write(ev types.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.events...)
}

// Of returns the recorded events of one kind.
func (r *Recorder) Of(kind types.EventKind) []types.Event {
	var out []types.Event
	for _, ev := range r.Events() {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Text concatenates the token events.
func (r *Recorder) Text() string {
	var sb strings.Builder
	for _, ev := range r.Of(types.EventToken) {
		sb.WriteString(ev.Content)
	}
	return sb.String()
}

// Card returns the content of the last card with the given target.
func (r *Recorder) Card(target string) (string, bool) {
	cards := r.Of(types.EventCard)
	for i := len(cards) - 1; i >= 0; i-- {
		if cards[i].TargetString() == target {
			return cards[i].Content, true
		}
	}
	return "", false
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithBus mirrors every emitted event onto bus as a run.event.
func WithBus(bus *Bus, sessionID, runID string) Option {
	return func(e *Emitter) {
		e.bus = bus
		e.sessionID = sessionID
		e.runID = runID
	}
}

// Emitter writes the event stream of one run. It is safe for concurrent use.
type Emitter struct {
	mu     sync.Mutex
	sink   Sink
	closed bool
	err    error
	count  int

	bus       *Bus
	sessionID string
	runID     string
}

// NewEmitter creates an emitter writing to sink.
func NewEmitter(sink Sink, opts ...Option) *Emitter {
	e := &Emitter{sink: sink}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit validates and writes ev. After the first sink failure events are
// still validated and counted but no longer written, and the sink error is
// returned.
func (e *Emitter) Emit(ev types.Event) error {
	if !ev.Type.Valid() {
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.Type == types.EventCard && ev.TargetString() == "" {
		return ErrMissingTarget
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrStreamClosed
	}
	if ev.Type.Terminal() {
		e.closed = true
	}
	e.count++
	metrics.RecordEvent(string(ev.Type))

	if e.bus != nil {
		e.bus.Publish(Event{Type: RunEvent, Data: RunEventData{
			SessionID: e.sessionID,
			RunID:     e.runID,
			Event:     ev,
		}})
	}

	if e.err != nil {
		return e.err
	}
	if err := e.sink.Write(ev); err != nil {
		e.err = err
		return err
	}
	return nil
}

// Status reports what the engine is doing.
func (e *Emitter) Status(content string) error {
	return e.Emit(types.NewEvent(types.EventStatus, content))
}

// Log records a diagnostic line.
func (e *Emitter) Log(content string) error {
	return e.Emit(types.NewEvent(types.EventLog, content))
}

// Card publishes an intermediate artifact under target.
func (e *Emitter) Card(content, target string) error {
	return e.Emit(types.NewCard(content, target))
}

// Token streams a piece of the final answer.
func (e *Emitter) Token(content string) error {
	return e.Emit(types.NewEvent(types.EventToken, content))
}

// Done ends the stream successfully.
func (e *Emitter) Done(content string) error {
	return e.Emit(types.NewEvent(types.EventDone, content))
}

// Fail ends the stream with an error.
func (e *Emitter) Fail(content string) error {
	return e.Emit(types.NewEvent(types.EventError, content))
}

// Err returns the first sink error.
func (e *Emitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Count returns the number of accepted events.
func (e *Emitter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// Closed reports whether a terminal event has been emitted.
func (e *Emitter) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

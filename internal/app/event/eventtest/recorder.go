// Package eventtest provides an in-memory event.Sender for tests.
package eventtest

import (
	"sync"

	"loungechat/internal/app/event"
)

// Recorder records every event sent to every connection.
type Recorder struct {
	mu         sync.Mutex
	events     map[string][]event.Event
	terminated map[string]string
	order      []string
	closed     map[string]bool
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		events:     make(map[string][]event.Event),
		terminated: make(map[string]string),
		closed:     make(map[string]bool),
	}
}

// Send implements event.Sender. Events sent after Terminate are dropped.
func (r *Recorder) Send(connKey string, ev event.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed[connKey] {
		return false
	}
	r.events[connKey] = append(r.events[connKey], ev)
	r.order = append(r.order, connKey+":"+string(ev.Type))
	return true
}

// Terminate implements event.Sender.
func (r *Recorder) Terminate(connKey, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.terminated[connKey] = reason
	r.closed[connKey] = true
	r.order = append(r.order, connKey+":terminate")
}

// Events returns the events received by connKey.
func (r *Recorder) Events(connKey string) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]event.Event(nil), r.events[connKey]...)
}

// Types returns the event types received by connKey in order.
func (r *Recorder) Types(connKey string) []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]event.Type, 0, len(r.events[connKey]))
	for _, ev := range r.events[connKey] {
		types = append(types, ev.Type)
	}
	return types
}

// OfType returns the events of type t received by connKey.
func (r *Recorder) OfType(connKey string, t event.Type) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []event.Event
	for _, ev := range r.events[connKey] {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Terminated reports whether connKey was terminated and why.
func (r *Recorder) Terminated(connKey string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reason, ok := r.terminated[connKey]
	return reason, ok
}

// Log returns "conn:type" entries across all connections in emission order.
func (r *Recorder) Log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.order...)
}

// Reset forgets every recorded event but keeps terminations.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = make(map[string][]event.Event)
	r.order = nil
}

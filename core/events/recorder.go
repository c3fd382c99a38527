package events

import (
	"strings"
	"sync"

	"marketchain/core/types"
)

// Recorded pairs an emitted event with its position in the emission order.
type Recorded struct {
	Sequence int64
	Event    *types.Event
}

// maxRecorded bounds the in-memory event history. Once the buffer is full
// the oldest events are dropped; sequence numbers keep growing so consumers
// can detect the gap.
const maxRecorded = 4096

// Recorder retains emitted events in memory so the RPC layer can serve event
// history queries. It is safe for concurrent use.
type Recorder struct {
	mu     sync.RWMutex
	next   int64
	events []Recorded
}

// NewRecorder constructs an empty event recorder.
func NewRecorder() *Recorder {
	return &Recorder{next: 1}
}

type payloadCarrier interface {
	Event() *types.Event
}

// Emit implements the Emitter interface. Events that do not carry a payload
// are recorded with an empty attribute set.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	payload := &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	if carrier, ok := evt.(payloadCarrier); ok {
		if inner := carrier.Event(); inner != nil {
			payload = inner
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) >= maxRecorded {
		r.events = r.events[1:]
	}
	r.events = append(r.events, Recorded{Sequence: r.next, Event: payload})
	r.next++
}

// List returns recorded events whose type matches the supplied prefix, newest
// last. A limit of zero or less returns all matches.
func (r *Recorder) List(prefix string, limit int) []Recorded {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]Recorded, 0, len(r.events))
	for _, rec := range r.events {
		if prefix != "" && !strings.HasPrefix(rec.Event.Type, prefix) {
			continue
		}
		matched = append(matched, rec)
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

package events

import (
	"fmt"
	"testing"

	"marketchain/core/types"
)

type stubEvent struct {
	evt *types.Event
}

func (s stubEvent) EventType() string   { return s.evt.Type }
func (s stubEvent) Event() *types.Event { return s.evt }

func emitN(r *Recorder, eventType string, n int) {
	for i := 0; i < n; i++ {
		r.Emit(stubEvent{evt: &types.Event{
			Type:       eventType,
			Attributes: map[string]string{"i": fmt.Sprintf("%d", i)},
		}})
	}
}

func TestRecorderSequencesEvents(t *testing.T) {
	r := NewRecorder()
	emitN(r, "marketplace.listed", 3)

	recorded := r.List("", 0)
	if len(recorded) != 3 {
		t.Fatalf("expected 3 events, got %d", len(recorded))
	}
	for i, rec := range recorded {
		if rec.Sequence != int64(i+1) {
			t.Fatalf("event %d: expected sequence %d, got %d", i, i+1, rec.Sequence)
		}
	}
}

func TestRecorderDropsOldestAtCapacity(t *testing.T) {
	r := NewRecorder()
	emitN(r, "marketplace.listed", maxRecorded+5)

	recorded := r.List("", 0)
	if len(recorded) != maxRecorded {
		t.Fatalf("expected buffer capped at %d, got %d", maxRecorded, len(recorded))
	}
	// The oldest five events were dropped; sequences keep counting.
	if recorded[0].Sequence != 6 {
		t.Fatalf("expected first retained sequence 6, got %d", recorded[0].Sequence)
	}
	if last := recorded[len(recorded)-1].Sequence; last != int64(maxRecorded+5) {
		t.Fatalf("expected last sequence %d, got %d", maxRecorded+5, last)
	}
}

func TestRecorderPrefixFilterAndLimit(t *testing.T) {
	r := NewRecorder()
	emitN(r, "marketplace.listed", 2)
	emitN(r, "marketplace.sold", 2)
	emitN(r, "other.event", 1)

	if got := len(r.List("marketplace.", 0)); got != 4 {
		t.Fatalf("prefix filter: expected 4, got %d", got)
	}
	if got := len(r.List("marketplace.sold", 0)); got != 2 {
		t.Fatalf("exact prefix: expected 2, got %d", got)
	}

	limited := r.List("", 2)
	if len(limited) != 2 {
		t.Fatalf("limit: expected 2, got %d", len(limited))
	}
	// Limit keeps the newest events.
	if limited[1].Event.Type != "other.event" {
		t.Fatalf("limit must keep the tail, got %s", limited[1].Event.Type)
	}
}

package store

import (
	"context"
	"testing"

	"draftforge/internal/pipeline"
)

func TestAppendAndListEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustCreateArticle(t, s, "Audited", pipeline.StateWriting)
	other := mustCreateArticle(t, s, "Other", pipeline.StateWriting)

	err := s.AppendEvent(ctx, a.ID, pipeline.EventStateChanged, map[string]any{"from": "pending", "to": "researching"})
	if err != nil {
		t.Fatalf("AppendEvent() failed: %v", err)
	}
	if err := s.AppendEvent(ctx, a.ID, pipeline.EventRetry, map[string]any{"attempt": 1}); err != nil {
		t.Fatalf("AppendEvent() failed: %v", err)
	}
	if err := s.AppendEvent(ctx, other.ID, pipeline.EventError, nil); err != nil {
		t.Fatalf("AppendEvent() failed: %v", err)
	}

	evs, err := s.ListEvents(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListEvents() failed: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("got %d events, expected 2", len(evs))
	}
	if evs[0].Type != pipeline.EventStateChanged || evs[1].Type != pipeline.EventRetry {
		t.Errorf("events out of order: %v, %v", evs[0].Type, evs[1].Type)
	}
	if evs[0].ID >= evs[1].ID {
		t.Error("event ids must be ascending")
	}
	if evs[0].Data["to"] != "researching" {
		t.Errorf("event data roundtrip mismatch: %v", evs[0].Data)
	}
	// JSON numbers decode as float64.
	if evs[1].Data["attempt"] != float64(1) {
		t.Errorf("attempt = %v, expected 1", evs[1].Data["attempt"])
	}
}

func TestAppendEvent_NilDataBecomesEmptyObject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustCreateArticle(t, s, "Quiet", pipeline.StateWriting)
	if err := s.AppendEvent(ctx, a.ID, pipeline.EventRecovered, nil); err != nil {
		t.Fatalf("AppendEvent() failed: %v", err)
	}

	evs, err := s.ListEvents(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListEvents() failed: %v", err)
	}
	if len(evs) != 1 || evs[0].Data == nil || len(evs[0].Data) != 0 {
		t.Errorf("expected one event with empty data map, got %+v", evs)
	}
}

func TestCountEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if n, _ := s.CountEvents(ctx); n != 0 {
		t.Fatalf("fresh store has %d events", n)
	}

	a := mustCreateArticle(t, s, "Counted", pipeline.StateWriting)
	for i := 0; i < 3; i++ {
		if err := s.AppendEvent(ctx, a.ID, pipeline.EventRetry, nil); err != nil {
			t.Fatalf("AppendEvent() failed: %v", err)
		}
	}
	if n, _ := s.CountEvents(ctx); n != 3 {
		t.Errorf("count = %d, expected 3", n)
	}
}

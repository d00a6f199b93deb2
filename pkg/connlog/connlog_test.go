package connlog

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conn.journal")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	w.Log(Event{Kind: EventAttempt, Transport: "websocket"})
	w.Log(Event{Kind: EventFailure, Transport: "websocket", Reason: "no token"})
	w.Log(Event{Kind: EventFallback, Transport: "polling"})
	w.Log(Event{Kind: EventDisconnected, Transport: "websocket", Duration: 90 * time.Second})

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	if events[1].Kind != EventFailure || events[1].Reason != "no token" {
		t.Errorf("event[1] = %+v", events[1])
	}
	if events[3].Duration != 90*time.Second {
		t.Errorf("duration = %v", events[3].Duration)
	}
	for i, e := range events {
		if e.Time.IsZero() {
			t.Errorf("event[%d] missing timestamp", i)
		}
	}
}

func TestAppendAcrossSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conn.journal")

	for i := 0; i < 2; i++ {
		w, err := NewWriter(path)
		if err != nil {
			t.Fatalf("NewWriter failed: %v", err)
		}
		w.Log(Event{Kind: EventAttempt, Transport: "websocket"})
		w.Close()
	}

	events, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2 (append, not truncate)", len(events))
	}
}

func TestNilWriterIsNoop(t *testing.T) {
	var w *Writer
	w.Log(Event{Kind: EventAttempt}) // must not panic
	if err := w.Close(); err != nil {
		t.Errorf("Close on nil writer = %v", err)
	}
}

func TestLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conn.journal")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	w.Close()
	w.Log(Event{Kind: EventAttempt}) // silently ignored

	events, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheFlexican/smart-heating-sub000/pkg/api"
	"github.com/TheFlexican/smart-heating-sub000/pkg/wire"
	"github.com/TheFlexican/smart-heating-sub000/pkg/zone"
)

func TestPollingDeliversImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/zones" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[{"id":"a1","temp":20.5},{"id":"a2"}]`))
	}))
	defer srv.Close()

	zonesCh := make(chan []zone.Zone, 4)
	connectCh := make(chan struct{}, 1)

	p := NewPolling(PollingConfig{
		API:      api.NewClient(srv.URL, "tok", zerolog.Nop()),
		Interval: time.Hour, // only the immediate fetch matters here
		Logger:   zerolog.Nop(),
	}, Callbacks{
		OnConnect:     func() { connectCh <- struct{}{} },
		OnZonesUpdate: func(zones []zone.Zone) { zonesCh <- zones },
	})
	defer p.Disconnect()

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-connectCh:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect never fired")
	}
	if !p.IsConnected() {
		t.Error("IsConnected should be true while polling")
	}

	select {
	case zones := <-zonesCh:
		if len(zones) != 2 || zones[0].ID != "a1" {
			t.Errorf("zones = %+v, want a1,a2", zones)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first fetch never delivered")
	}
}

func TestPollingSurvivesFetchErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "backend unavailable", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"id":"a1"}]`))
	}))
	defer srv.Close()

	zonesCh := make(chan []zone.Zone, 4)
	errCh := make(chan error, 4)

	p := NewPolling(PollingConfig{
		API:      api.NewClient(srv.URL, "tok", zerolog.Nop()),
		Interval: 20 * time.Millisecond,
		Logger:   zerolog.Nop(),
	}, Callbacks{
		OnZonesUpdate: func(zones []zone.Zone) { zonesCh <- zones },
		OnError:       func(err error) { errCh <- err },
	})
	defer p.Disconnect()

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch error never surfaced")
	}

	// The loop keeps going; the next tick succeeds.
	select {
	case zones := <-zonesCh:
		if len(zones) != 1 || zones[0].ID != "a1" {
			t.Errorf("zones = %+v, want [a1]", zones)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("polling did not recover after a failed fetch")
	}
}

func TestPollingHasNoCommandPath(t *testing.T) {
	p := NewPolling(PollingConfig{
		API:    api.NewClient("http://127.0.0.1:1", "", zerolog.Nop()),
		Logger: zerolog.Nop(),
	}, Callbacks{})

	if p.Send(wire.NewPingCommand()) {
		t.Error("Send must always return false on the polling channel")
	}
}

func TestPollingDisconnectStopsFetches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	var disconnects atomic.Int32
	unexpectedCh := make(chan bool, 4)

	p := NewPolling(PollingConfig{
		API:      api.NewClient(srv.URL, "tok", zerolog.Nop()),
		Interval: 10 * time.Millisecond,
		Logger:   zerolog.Nop(),
	}, Callbacks{
		OnDisconnect: func(unexpected bool) {
			disconnects.Add(1)
			unexpectedCh <- unexpected
		},
	})

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	p.Disconnect()
	p.Disconnect()

	select {
	case unexpected := <-unexpectedCh:
		if unexpected {
			t.Error("a polling stop is never unexpected")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect never fired")
	}
	if got := disconnects.Load(); got != 1 {
		t.Errorf("OnDisconnect fired %d times, want 1", got)
	}
	if p.IsConnected() {
		t.Error("IsConnected should be false after Disconnect")
	}

	// No further fetches after the stop.
	before := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if after := calls.Load(); after != before {
		t.Errorf("fetches continued after Disconnect: %d -> %d", before, after)
	}
}

func TestPollingConnectIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	var connects atomic.Int32
	p := NewPolling(PollingConfig{
		API:      api.NewClient(srv.URL, "tok", zerolog.Nop()),
		Interval: time.Hour,
		Logger:   zerolog.Nop(),
	}, Callbacks{
		OnConnect: func() { connects.Add(1) },
	})
	defer p.Disconnect()

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := connects.Load(); got != 1 {
		t.Errorf("OnConnect fired %d times, want 1", got)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 immediate fetch, got %d", got)
	}
}

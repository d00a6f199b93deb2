package transport

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepAliveBasic(t *testing.T) {
	var pingCount atomic.Int32
	var nextID atomic.Uint64

	ka := NewKeepAlive(
		KeepAliveConfig{
			PingInterval: 30 * time.Millisecond,
			PongTimeout:  100 * time.Millisecond,
		},
		func() (uint64, error) {
			pingCount.Add(1)
			return nextID.Add(1), nil
		},
		func() {
			t.Error("timeout should not fire when pongs arrive")
		},
	)

	ka.Start()
	defer ka.Stop()

	// Answer every ping promptly.
	deadline := time.After(200 * time.Millisecond)
	for pingCount.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 pings, got %d", pingCount.Load())
		default:
			ka.PongReceived(nextID.Load())
			time.Sleep(5 * time.Millisecond)
		}
	}

	if ka.LastPong().IsZero() {
		t.Error("LastPong should be set after answered pings")
	}
}

func TestKeepAliveSingleMissedPongTimesOut(t *testing.T) {
	timeoutCh := make(chan struct{})

	ka := NewKeepAlive(
		KeepAliveConfig{
			PingInterval: 20 * time.Millisecond,
			PongTimeout:  15 * time.Millisecond,
		},
		func() (uint64, error) { return 1, nil },
		func() { close(timeoutCh) },
	)

	ka.Start()
	defer ka.Stop()

	// A single unanswered window is enough; the timeout must fire well
	// before a second interval would elapse.
	select {
	case <-timeoutCh:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout did not fire after a missed pong")
	}

	if ka.IsRunning() {
		t.Error("keepalive should stop itself after a timeout")
	}
}

func TestKeepAliveStalePongIgnored(t *testing.T) {
	timeoutCh := make(chan struct{})
	var currentID atomic.Uint64
	currentID.Store(41)

	ka := NewKeepAlive(
		KeepAliveConfig{
			PingInterval: 50 * time.Millisecond,
			PongTimeout:  30 * time.Millisecond,
		},
		func() (uint64, error) { return currentID.Add(1), nil },
		func() { close(timeoutCh) },
	)

	ka.Start()
	defer ka.Stop()

	time.Sleep(5 * time.Millisecond)

	// A pong for an earlier ping must not satisfy the current window.
	ka.PongReceived(7)

	select {
	case <-timeoutCh:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("stale pong should not have satisfied the pong window")
	}
}

func TestKeepAliveZeroIDMatchesAnyPing(t *testing.T) {
	var pingCount atomic.Int32

	ka := NewKeepAlive(
		KeepAliveConfig{
			PingInterval: 20 * time.Millisecond,
			PongTimeout:  50 * time.Millisecond,
		},
		func() (uint64, error) {
			pingCount.Add(1)
			return 99, nil
		},
		func() {
			t.Error("timeout should not fire")
		},
	)

	ka.Start()
	defer ka.Stop()

	// Legacy pong frames carry no id; they answer whatever is pending.
	deadline := time.After(200 * time.Millisecond)
	for pingCount.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 2 pings, got %d", pingCount.Load())
		default:
			ka.PongReceived(0)
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestKeepAliveSendFailureFiresTimeout(t *testing.T) {
	timeoutCh := make(chan struct{})

	ka := NewKeepAlive(
		KeepAliveConfig{
			PingInterval: 20 * time.Millisecond,
			PongTimeout:  20 * time.Millisecond,
		},
		func() (uint64, error) { return 0, errors.New("broken pipe") },
		func() { close(timeoutCh) },
	)

	ka.Start()
	defer ka.Stop()

	select {
	case <-timeoutCh:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("failed ping send should fire the timeout")
	}
}

func TestKeepAliveStartStop(t *testing.T) {
	ka := NewKeepAlive(
		KeepAliveConfig{
			PingInterval: time.Hour,
			PongTimeout:  time.Hour,
		},
		func() (uint64, error) { return 1, nil },
		func() {},
	)

	if ka.IsRunning() {
		t.Error("should not be running initially")
	}

	ka.Start()
	if !ka.IsRunning() {
		t.Error("should be running after Start")
	}

	// Start again is a no-op.
	ka.Start()
	if !ka.IsRunning() {
		t.Error("should still be running")
	}

	ka.Stop()
	if ka.IsRunning() {
		t.Error("should not be running after Stop")
	}

	// Stop again is a no-op.
	ka.Stop()
}

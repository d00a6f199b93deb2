package transport

import (
	"sync"
	"time"
)

// KeepAliveConfig configures the ping/pong liveness monitor. The
// values come from the platform profile: mobile platforms ping more
// often and wait less.
type KeepAliveConfig struct {
	// PingInterval is the interval between pings.
	PingInterval time.Duration

	// PongTimeout is the bounded wait for the pong. A single miss
	// forces the connection closed; silently-dead sockets must be
	// detected within one window, not after a missed-pong budget.
	PongTimeout time.Duration
}

// KeepAlive sends periodic pings and forces a timeout when the pong
// does not arrive within the bounded window.
type KeepAlive struct {
	config KeepAliveConfig

	// sendPing transmits a ping command and returns its command id.
	sendPing func() (uint64, error)

	// onTimeout fires once when a pong window elapses unanswered.
	onTimeout func()

	mu        sync.Mutex
	running   bool
	pendingID uint64
	lastPing  time.Time
	lastPong  time.Time

	stopCh chan struct{}
	pongCh chan uint64
}

// NewKeepAlive creates a keepalive monitor. sendPing is called on
// every interval; onTimeout when a pong window elapses.
func NewKeepAlive(config KeepAliveConfig, sendPing func() (uint64, error), onTimeout func()) *KeepAlive {
	return &KeepAlive{
		config:    config,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		stopCh:    make(chan struct{}),
		pongCh:    make(chan uint64, 1),
	}
}

// Start begins the monitoring loop. The first ping goes out
// immediately. No-ops when already running.
func (ka *KeepAlive) Start() {
	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	ka.mu.Unlock()

	go ka.loop()
}

// Stop halts monitoring. Safe to call more than once.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// IsRunning reports whether the monitor is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// PongReceived reports an inbound pong. id is the command id the pong
// acknowledges; 0 matches any outstanding ping (legacy flat pong
// frames carry no id).
func (ka *KeepAlive) PongReceived(id uint64) {
	select {
	case ka.pongCh <- id:
	default:
		// A pong is already queued; dropping a duplicate is harmless.
	}
}

// LastPong returns when the most recent pong arrived.
func (ka *KeepAlive) LastPong() time.Time {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.lastPong
}

func (ka *KeepAlive) loop() {
	for {
		if !ka.pingOnce() {
			return
		}

		select {
		case <-ka.stopCh:
			return
		case <-time.After(ka.config.PingInterval):
		}
	}
}

// pingOnce sends one ping and waits out its pong window. Returns false
// when the loop must exit (stop or timeout).
func (ka *KeepAlive) pingOnce() bool {
	id, err := ka.sendPing()
	if err != nil {
		// The socket is likely dead; treat the failed write like a
		// missed pong rather than waiting for the close event.
		ka.fireTimeout()
		return false
	}

	ka.mu.Lock()
	ka.pendingID = id
	ka.lastPing = time.Now()
	ka.mu.Unlock()

	deadline := time.NewTimer(ka.config.PongTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ka.stopCh:
			return false

		case got := <-ka.pongCh:
			ka.mu.Lock()
			match := got == 0 || got == ka.pendingID
			if match {
				ka.lastPong = time.Now()
			}
			ka.mu.Unlock()
			if match {
				return true
			}
			// A stale pong from an earlier ping; keep waiting.

		case <-deadline.C:
			ka.fireTimeout()
			return false
		}
	}
}

func (ka *KeepAlive) fireTimeout() {
	ka.Stop()
	if ka.onTimeout != nil {
		ka.onTimeout()
	}
}

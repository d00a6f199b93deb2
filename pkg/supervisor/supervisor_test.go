package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheFlexican/smart-heating-sub000/pkg/connection"
	"github.com/TheFlexican/smart-heating-sub000/pkg/transport"
	"github.com/TheFlexican/smart-heating-sub000/pkg/wire"
)

// fakeTransport is a scriptable transport for exercising the policy
// without sockets.
type fakeTransport struct {
	mu          sync.Mutex
	cb          transport.Callbacks
	failing     bool
	connected   bool
	connects    int
	disconnects int
}

func (f *fakeTransport) Connect(_ context.Context) error {
	f.mu.Lock()
	f.connects++
	if f.failing {
		f.mu.Unlock()
		return errors.New("connection refused")
	}
	f.connected = true
	cb := f.cb
	f.mu.Unlock()

	if cb.OnConnect != nil {
		cb.OnConnect()
	}
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return
	}
	f.connected = false
	f.disconnects++
	cb := f.cb
	f.mu.Unlock()

	if cb.OnDisconnect != nil {
		cb.OnDisconnect(false)
	}
}

func (f *fakeTransport) Send(_ *wire.Command) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) setFailing(failing bool) {
	f.mu.Lock()
	f.failing = failing
	f.mu.Unlock()
}

// dropUnexpected simulates the server killing the connection.
func (f *fakeTransport) dropUnexpected() {
	f.mu.Lock()
	f.connected = false
	cb := f.cb
	f.mu.Unlock()

	if cb.OnDisconnect != nil {
		cb.OnDisconnect(true)
	}
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeTransport) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// recorder collects the consumer-facing callback stream.
type recorder struct {
	mu          sync.Mutex
	connects    int
	disconnects []bool
}

func (r *recorder) callbacks() transport.Callbacks {
	return transport.Callbacks{
		OnConnect: func() {
			r.mu.Lock()
			r.connects++
			r.mu.Unlock()
		},
		OnDisconnect: func(unexpected bool) {
			r.mu.Lock()
			r.disconnects = append(r.disconnects, unexpected)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) connectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

func (r *recorder) disconnectLog() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.disconnects...)
}

// newTestSupervisor wires fakes behind a fast policy.
func newTestSupervisor(cfg Config, rec *recorder) (*Supervisor, *fakeTransport, *fakeTransport) {
	primary := &fakeTransport{}
	fallback := &fakeTransport{}

	cfg.Logger = zerolog.Nop()
	if cfg.Backoff == (connection.BackoffConfig{}) {
		cfg.Backoff = connection.BackoffConfig{
			Initial: time.Millisecond,
			Max:     2 * time.Millisecond,
			Jitter:  -1, // clamps to zero
		}
	}
	cfg.Primary = func(cb transport.Callbacks) transport.Transport {
		primary.cb = cb
		return primary
	}
	cfg.Fallback = func(cb transport.Callbacks) transport.Transport {
		fallback.cb = cb
		return fallback
	}

	return New(cfg, rec.callbacks()), primary, fallback
}

func TestSupervisorConnectsPrimary(t *testing.T) {
	rec := &recorder{}
	s, primary, fallback := newTestSupervisor(Config{}, rec)
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))

	assert.True(t, s.IsConnected())
	assert.Equal(t, ModePrimary, s.Mode())
	assert.Equal(t, 1, rec.connectCount())
	assert.Equal(t, 1, primary.connectCount())
	assert.Equal(t, 0, fallback.connectCount())
	assert.True(t, s.Send(wire.NewPingCommand()))
}

func TestSupervisorFallbackAfterThreshold(t *testing.T) {
	rec := &recorder{}
	s, primary, fallback := newTestSupervisor(Config{
		FailureThreshold: 3,
		ProbeInterval:    time.Hour,
	}, rec)
	defer s.Stop()

	primary.setFailing(true)
	err := s.Start(context.Background())
	require.Error(t, err, "Start surfaces the first dial failure")

	require.Eventually(t, func() bool {
		return s.Mode() == ModeFallback
	}, 2*time.Second, 5*time.Millisecond, "fallback should activate at the threshold")

	assert.Equal(t, 3, primary.connectCount(), "exactly threshold attempts before degrading")
	assert.Equal(t, 1, fallback.connectCount(), "fallback activates exactly once")
	assert.True(t, s.IsConnected())
	assert.Equal(t, 1, rec.connectCount(), "fallback connect is forwarded")

	// The fallback has no command path.
	assert.False(t, s.Send(wire.NewPingCommand()))
}

func TestSupervisorProbeRecoversPrimary(t *testing.T) {
	rec := &recorder{}
	s, primary, fallback := newTestSupervisor(Config{
		FailureThreshold: 2,
		ProbeInterval:    10 * time.Millisecond,
	}, rec)
	defer s.Stop()

	primary.setFailing(true)
	_ = s.Start(context.Background())

	require.Eventually(t, func() bool {
		return s.Mode() == ModeFallback
	}, 2*time.Second, 5*time.Millisecond)

	disconnectsBefore := len(rec.disconnectLog())

	// The server comes back; the next probe authenticates.
	primary.setFailing(false)

	require.Eventually(t, func() bool {
		return s.Mode() == ModePrimary && primary.IsConnected()
	}, 2*time.Second, 5*time.Millisecond, "probe should recover the primary")

	require.Eventually(t, func() bool {
		return fallback.disconnectCount() == 1
	}, 2*time.Second, 5*time.Millisecond, "fallback should be torn down")

	assert.False(t, fallback.IsConnected())
	// Tearing down the fallback on recovery is not a consumer-visible
	// disconnect.
	assert.Equal(t, disconnectsBefore, len(rec.disconnectLog()))
	assert.Equal(t, 0, s.Failures())
	assert.True(t, s.Send(wire.NewPingCommand()))
}

func TestSupervisorUnexpectedDropReconnects(t *testing.T) {
	rec := &recorder{}
	s, primary, _ := newTestSupervisor(Config{}, rec)
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))
	primary.dropUnexpected()

	require.Eventually(t, func() bool {
		return rec.connectCount() == 2
	}, 2*time.Second, 5*time.Millisecond, "supervisor should reconnect after an unexpected drop")

	log := rec.disconnectLog()
	require.Len(t, log, 1)
	assert.True(t, log[0], "the drop is forwarded as unexpected")
	assert.Equal(t, 0, s.Failures(), "success resets the failure run")
}

func TestSupervisorWakeBypassesBackoff(t *testing.T) {
	rec := &recorder{}
	s, primary, _ := newTestSupervisor(Config{
		Backoff: connection.BackoffConfig{
			Initial: time.Hour, // a retry timer that will never fire in this test
			Max:     time.Hour,
		},
	}, rec)
	defer s.Stop()

	primary.setFailing(true)
	_ = s.Start(context.Background())

	require.Eventually(t, func() bool {
		return s.Failures() == 1
	}, 2*time.Second, 5*time.Millisecond)

	primary.setFailing(false)
	s.Wake(connection.WakeOnline)

	require.Eventually(t, func() bool {
		return s.IsConnected()
	}, 2*time.Second, 5*time.Millisecond, "wake should reconnect immediately, not after the backoff")

	assert.Equal(t, 0, s.Failures())
}

func TestSupervisorWakeWhileConnectedIsNoOp(t *testing.T) {
	rec := &recorder{}
	s, primary, _ := newTestSupervisor(Config{}, rec)
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))
	before := primary.connectCount()

	s.Wake(connection.WakeFocus)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, before, primary.connectCount(), "no reconnect while already connected")
}

func TestSupervisorContextCancelStopsFallback(t *testing.T) {
	rec := &recorder{}
	s, primary, fallback := newTestSupervisor(Config{
		FailureThreshold: 2,
		ProbeInterval:    time.Hour,
	}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	primary.setFailing(true)
	_ = s.Start(ctx)

	require.Eventually(t, func() bool {
		return s.Mode() == ModeFallback && fallback.IsConnected()
	}, 2*time.Second, 5*time.Millisecond, "fallback should be polling before the cancel")

	cancel()

	require.Eventually(t, func() bool {
		return fallback.disconnectCount() == 1
	}, 2*time.Second, 5*time.Millisecond, "cancelling the context must tear the fallback down")

	require.Eventually(t, func() bool {
		return len(rec.disconnectLog()) == 1
	}, 2*time.Second, 5*time.Millisecond, "cancellation shuts the supervisor down")

	assert.False(t, rec.disconnectLog()[0], "shutdown is never unexpected")
	assert.False(t, s.IsConnected())
}

func TestSupervisorStopIsIdempotent(t *testing.T) {
	rec := &recorder{}
	s, primary, _ := newTestSupervisor(Config{}, rec)

	require.NoError(t, s.Start(context.Background()))

	s.Stop()
	s.Stop()

	log := rec.disconnectLog()
	require.Len(t, log, 1, "exactly one consumer disconnect")
	assert.False(t, log[0], "stopping is never unexpected")
	assert.False(t, s.IsConnected())
	assert.Equal(t, 1, primary.disconnectCount())

	// A drop arriving after Stop is swallowed.
	primary.dropUnexpected()
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.disconnectLog(), 1)
}

package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheFlexican/smart-heating-sub000/pkg/connection"
	"github.com/TheFlexican/smart-heating-sub000/pkg/connlog"
	"github.com/TheFlexican/smart-heating-sub000/pkg/metrics"
	"github.com/TheFlexican/smart-heating-sub000/pkg/transport"
	"github.com/TheFlexican/smart-heating-sub000/pkg/wire"
)

// Policy defaults.
const (
	// DefaultFailureThreshold is the run of consecutive primary
	// failures that activates the fallback.
	DefaultFailureThreshold = 5

	// DefaultProbeInterval is the cadence of background primary probes
	// while the fallback is active.
	DefaultProbeInterval = 60 * time.Second
)

// Mode identifies the active transport.
type Mode uint8

const (
	// ModePrimary means the WebSocket channel is active.
	ModePrimary Mode = iota

	// ModeFallback means the polling channel is active.
	ModeFallback
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	if m == ModeFallback {
		return "fallback"
	}
	return "primary"
}

// TransportFactory builds a transport wired to the given callbacks.
// The supervisor supplies its own callbacks; tests supply fakes.
type TransportFactory func(cb transport.Callbacks) transport.Transport

// Config configures the supervisor.
type Config struct {
	// WebSocket configures the primary transport.
	WebSocket transport.WebSocketConfig

	// Polling configures the fallback transport.
	Polling transport.PollingConfig

	// FailureThreshold is the run of consecutive primary failures that
	// activates the fallback (default: 5).
	FailureThreshold int

	// ProbeInterval is the background primary probe cadence while the
	// fallback is active (default: 60s).
	ProbeInterval time.Duration

	// Backoff customizes the reconnect delay schedule.
	Backoff connection.BackoffConfig

	// Journal receives connection lifecycle events. Optional.
	Journal *connlog.Writer

	// Logger for supervisor decisions.
	Logger zerolog.Logger

	// Primary overrides the primary transport construction. Used by
	// tests; defaults to the WebSocket transport.
	Primary TransportFactory

	// Fallback overrides the fallback transport construction. Used by
	// tests; defaults to the polling transport.
	Fallback TransportFactory
}

// Supervisor drives the two transports according to the reconnection
// and fallback policy. Consumer callbacks are forwarded from whichever
// transport is active.
type Supervisor struct {
	cfg Config
	cb  transport.Callbacks
	log zerolog.Logger

	backoff *connection.Backoff

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	started   bool
	stopped   bool
	mode      Mode
	primary   transport.Transport
	fallback  transport.Transport
	failures  int
	retryTmr  *time.Timer
	probeStop chan struct{}
}

// New creates a supervisor forwarding transport events to cb.
func New(cfg Config, cb transport.Callbacks) *Supervisor {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}

	s := &Supervisor{
		cfg:     cfg,
		cb:      cb,
		log:     cfg.Logger.With().Str("component", "supervisor").Logger(),
		backoff: connection.NewBackoffWithConfig(cfg.Backoff),
	}

	primaryFactory := cfg.Primary
	if primaryFactory == nil {
		primaryFactory = func(cb transport.Callbacks) transport.Transport {
			return transport.NewWebSocket(cfg.WebSocket, cb)
		}
	}
	fallbackFactory := cfg.Fallback
	if fallbackFactory == nil {
		fallbackFactory = func(cb transport.Callbacks) transport.Transport {
			return transport.NewPolling(cfg.Polling, cb)
		}
	}

	s.primary = primaryFactory(transport.Callbacks{
		OnZonesUpdate: cb.OnZonesUpdate,
		OnZoneUpdate:  cb.OnZoneUpdate,
		OnZoneDelete:  cb.OnZoneDelete,
		OnError:       cb.OnError,
		OnConnect:     s.onPrimaryConnect,
		OnDisconnect:  s.onPrimaryDisconnect,
	})
	s.fallback = fallbackFactory(transport.Callbacks{
		OnZonesUpdate: cb.OnZonesUpdate,
		OnError:       cb.OnError,
		OnConnect:     s.onFallbackConnect,
		OnDisconnect:  s.onFallbackDisconnect,
	})

	return s
}

// Start connects the primary transport and begins supervising. The
// context bounds the supervisor's lifetime; cancelling it is equivalent
// to Stop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	primary := s.primary
	runCtx := s.ctx
	s.mu.Unlock()

	// The polling loop detaches from per-attempt contexts and only
	// stops through Stop, so the caller's cancellation must be turned
	// into a full shutdown here.
	go func() {
		<-runCtx.Done()
		s.Stop()
	}()

	s.journal(connlog.EventAttempt, "websocket", "")
	if err := primary.Connect(runCtx); err != nil {
		// Dial failures return synchronously and never emit
		// OnDisconnect, so the retry is scheduled here.
		s.scheduleRetry(err.Error())
		return err
	}
	return nil
}

// Stop shuts both transports down and stops all timers. Safe to call
// more than once; only the first call emits OnDisconnect.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.retryTmr != nil {
		s.retryTmr.Stop()
		s.retryTmr = nil
	}
	probeStop := s.probeStop
	s.probeStop = nil
	cancel := s.cancel
	primary := s.primary
	fallback := s.fallback
	s.mu.Unlock()

	if probeStop != nil {
		close(probeStop)
	}
	if cancel != nil {
		cancel()
	}

	// Transport callbacks are suppressed once stopped; the single
	// consumer-facing disconnect comes from here.
	primary.Disconnect()
	fallback.Disconnect()

	s.log.Info().Msg("supervisor stopped")
	if s.cb.OnDisconnect != nil {
		s.cb.OnDisconnect(false)
	}
}

// Wake reacts to a host lifecycle signal: when the primary is not
// connected, pending backoff is discarded and a reconnect attempt
// starts immediately.
func (s *Supervisor) Wake(reason connection.WakeReason) {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.mu.Unlock()
		return
	}
	if s.primary.IsConnected() {
		s.mu.Unlock()
		return
	}
	s.failures = 0
	s.backoff.Reset()
	if s.retryTmr != nil {
		s.retryTmr.Stop()
		s.retryTmr = nil
	}
	primary := s.primary
	ctx := s.ctx
	s.mu.Unlock()

	s.log.Info().Str("reason", reason.String()).Msg("wake signal, reconnecting immediately")
	s.journal(connlog.EventAttempt, "websocket", reason.String())

	go func() {
		if err := primary.Connect(ctx); err != nil {
			s.scheduleRetry(err.Error())
		}
	}()
}

// Send transmits a command on the active transport. The fallback has
// no command path, so sends while degraded return false.
func (s *Supervisor) Send(cmd *wire.Command) bool {
	return s.active().Send(cmd)
}

// IsConnected reports whether the active transport is connected.
func (s *Supervisor) IsConnected() bool {
	return s.active().IsConnected()
}

// Mode returns the active transport mode.
func (s *Supervisor) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Failures returns the current run of consecutive primary failures.
func (s *Supervisor) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Metrics returns the connection metrics store, when configured.
func (s *Supervisor) Metrics() *metrics.Store {
	return s.cfg.WebSocket.Metrics
}

func (s *Supervisor) active() transport.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeFallback {
		return s.fallback
	}
	return s.primary
}

// onPrimaryConnect runs when the primary authenticates, including a
// successful background probe while degraded.
func (s *Supervisor) onPrimaryConnect() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.failures = 0
	s.backoff.Reset()
	wasFallback := s.mode == ModeFallback
	// Flipping the mode before tearing the fallback down suppresses
	// the fallback's disconnect callback.
	s.mode = ModePrimary
	if s.retryTmr != nil {
		s.retryTmr.Stop()
		s.retryTmr = nil
	}
	probeStop := s.probeStop
	s.probeStop = nil
	fallback := s.fallback
	s.mu.Unlock()

	if wasFallback {
		if probeStop != nil {
			close(probeStop)
		}
		s.log.Info().Msg("primary recovered, leaving fallback")
		s.journal(connlog.EventRecovered, "websocket", "")
		fallback.Disconnect()
	}

	s.journal(connlog.EventConnected, "websocket", "")
	if s.cb.OnConnect != nil {
		s.cb.OnConnect()
	}
}

func (s *Supervisor) onPrimaryDisconnect(unexpected bool) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	mode := s.mode
	s.mu.Unlock()

	s.journal(connlog.EventDisconnected, "websocket", "")

	if mode == ModeFallback {
		// A failed background probe; the probe ticker will try again.
		return
	}

	if s.cb.OnDisconnect != nil {
		s.cb.OnDisconnect(unexpected)
	}
	s.scheduleRetry("disconnected")
}

func (s *Supervisor) onFallbackConnect() {
	s.mu.Lock()
	suppressed := s.stopped || s.mode != ModeFallback
	s.mu.Unlock()
	if suppressed {
		return
	}

	s.journal(connlog.EventConnected, "polling", "")
	if s.cb.OnConnect != nil {
		s.cb.OnConnect()
	}
}

func (s *Supervisor) onFallbackDisconnect(unexpected bool) {
	s.mu.Lock()
	suppressed := s.stopped || s.mode != ModeFallback
	s.mu.Unlock()
	if suppressed {
		return
	}

	s.journal(connlog.EventDisconnected, "polling", "")
	if s.cb.OnDisconnect != nil {
		s.cb.OnDisconnect(unexpected)
	}
}

// scheduleRetry counts a primary failure and either arms the backoff
// timer or, at the threshold, activates the fallback.
func (s *Supervisor) scheduleRetry(reason string) {
	s.mu.Lock()
	if s.stopped || s.mode == ModeFallback || s.retryTmr != nil {
		s.mu.Unlock()
		return
	}

	s.failures++
	failures := s.failures
	s.mu.Unlock()

	s.journal(connlog.EventFailure, "websocket", reason)

	if failures >= s.cfg.FailureThreshold {
		s.activateFallback()
		return
	}

	delay := s.backoff.Next()
	s.log.Info().
		Int("failures", failures).
		Dur("delay", delay).
		Str("reason", reason).
		Msg("scheduling reconnect")

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.retryTmr = time.AfterFunc(delay, s.retryPrimary)
	s.mu.Unlock()
}

func (s *Supervisor) retryPrimary() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.retryTmr = nil
	primary := s.primary
	ctx := s.ctx
	s.mu.Unlock()

	s.journal(connlog.EventAttempt, "websocket", "")
	if err := primary.Connect(ctx); err != nil {
		s.scheduleRetry(err.Error())
	}
}

// activateFallback switches to polling and starts probing the primary
// in the background.
func (s *Supervisor) activateFallback() {
	s.mu.Lock()
	if s.stopped || s.mode == ModeFallback {
		s.mu.Unlock()
		return
	}
	s.mode = ModeFallback
	stop := make(chan struct{})
	s.probeStop = stop
	fallback := s.fallback
	ctx := s.ctx
	s.mu.Unlock()

	s.log.Warn().
		Int("failures", s.cfg.FailureThreshold).
		Msg("primary unreachable, switching to polling fallback")
	s.journal(connlog.EventFallback, "polling", "")

	if err := fallback.Connect(ctx); err != nil && s.cb.OnError != nil {
		s.cb.OnError(err)
	}

	go s.probeLoop(ctx, stop)
}

// probeLoop retries the primary while degraded. A successful probe
// authenticates and lands in onPrimaryConnect, which tears the
// fallback down and stops this loop.
func (s *Supervisor) probeLoop(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.journal(connlog.EventAttempt, "websocket", "probe")
			// Errors are expected while the server is unreachable;
			// the next tick tries again.
			_ = s.primary.Connect(ctx)
		}
	}
}

func (s *Supervisor) journal(kind connlog.EventKind, transportName, reason string) {
	s.cfg.Journal.Log(connlog.Event{
		Kind:      kind,
		Transport: transportName,
		Reason:    reason,
	})
}

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheFlexican/smart-heating-sub000/pkg/api"
	"github.com/TheFlexican/smart-heating-sub000/pkg/wire"
	"github.com/TheFlexican/smart-heating-sub000/pkg/zone"
)

// Polling fallback defaults.
const (
	DefaultPollPath     = "/api/zones"
	DefaultPollInterval = 30 * time.Second
)

// PollingConfig configures the fallback transport.
type PollingConfig struct {
	// API performs the zone state fetches.
	API *api.Client

	// Path is the zones endpoint (default: /api/zones).
	Path string

	// Interval is the poll cadence (default: 30s).
	Interval time.Duration

	// Logger for poll events.
	Logger zerolog.Logger
}

// Polling is the fallback transport: a periodic full-state fetch over
// the plain HTTP API. It delivers full collections only, never
// per-zone deltas, and has no command path.
//
// Fetch failures are reported through OnError and never stop the loop;
// the next tick simply tries again.
type Polling struct {
	cfg PollingConfig
	cb  Callbacks
	log zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewPolling creates the fallback transport.
func NewPolling(cfg PollingConfig, cb Callbacks) *Polling {
	if cfg.Path == "" {
		cfg.Path = DefaultPollPath
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	return &Polling{
		cfg: cfg,
		cb:  cb,
		log: cfg.Logger.With().Str("transport", "polling").Logger(),
	}
}

// Connect starts the poll loop. The first fetch happens immediately;
// OnConnect fires before it, since the channel is usable as soon as
// the loop runs. No-ops when already running.
func (p *Polling) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	// The loop's lifetime belongs to Disconnect, not to the caller's
	// per-attempt context; the supervisor turns context cancellation
	// into a full stop.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.mu.Unlock()

	p.log.Info().Dur("interval", p.cfg.Interval).Msg("polling started")
	p.cb.emitConnect()

	go p.loop(loopCtx)
	return nil
}

// Disconnect stops the poll loop. Only the first call emits
// OnDisconnect; a polling stop is never unexpected.
func (p *Polling) Disconnect() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	p.log.Info().Msg("polling stopped")
	p.cb.emitDisconnect(false)
}

// Send always returns false: the polling channel has no command path.
func (p *Polling) Send(_ *wire.Command) bool {
	return false
}

// IsConnected reports whether the poll loop is running.
func (p *Polling) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Polling) loop(ctx context.Context) {
	p.fetch(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetch(ctx)
		}
	}
}

// fetch pulls the full zone collection and delivers it. Errors are
// surfaced and swallowed; the loop keeps going.
func (p *Polling) fetch(ctx context.Context) {
	var raw json.RawMessage
	if err := p.cfg.API.GetJSON(ctx, p.cfg.Path, &raw); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Warn().Err(err).Msg("poll failed")
		p.cb.emitError(fmt.Errorf("poll failed: %w", err))
		return
	}

	zones, err := zone.DecodeZones(raw)
	if err != nil {
		p.log.Warn().Err(err).Msg("poll returned malformed zones")
		p.cb.emitError(fmt.Errorf("poll decode failed: %w", err))
		return
	}

	p.cb.emitZonesUpdate(zones)
}

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/TheFlexican/smart-heating-sub000/pkg/metrics"
	"github.com/TheFlexican/smart-heating-sub000/pkg/platform"
	"github.com/TheFlexican/smart-heating-sub000/pkg/token"
	"github.com/TheFlexican/smart-heating-sub000/pkg/wire"
	"github.com/TheFlexican/smart-heating-sub000/pkg/zone"
)

// DefaultHandshakeTimeout bounds the WebSocket dial and upgrade.
const DefaultHandshakeTimeout = 10 * time.Second

// wsState tracks the handshake state machine:
// Connecting → AuthRequired → Authenticated → Closed.
type wsState uint8

const (
	wsClosed wsState = iota
	wsConnecting
	wsAuthRequired
	wsAuthenticated
)

// String returns a human-readable state name.
func (s wsState) String() string {
	switch s {
	case wsConnecting:
		return "connecting"
	case wsAuthRequired:
		return "auth_required"
	case wsAuthenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

// WebSocketConfig configures the primary transport.
type WebSocketConfig struct {
	// URL is the realtime endpoint (ws:// or wss://).
	URL string

	// Resolver locates the bearer token for the auth handshake.
	Resolver *token.Resolver

	// Profile supplies the keepalive timing.
	Profile platform.Profile

	// Metrics records connection health. Optional.
	Metrics *metrics.Store

	// Telemetry receives device/telemetry events. Optional.
	Telemetry *TelemetryBus

	// HandshakeTimeout bounds the dial (default: 10s).
	HandshakeTimeout time.Duration

	// Logger for transport events.
	Logger zerolog.Logger
}

// WebSocket is the primary transport: a persistent socket carrying
// JSON text frames with an auth handshake and an adaptive keepalive.
//
// The transport never retries internally. Token resolution failures,
// auth rejections and closes of any kind surface through OnDisconnect
// and the metrics store; reconnection policy belongs to the caller.
type WebSocket struct {
	cfg WebSocketConfig
	cb  Callbacks
	log zerolog.Logger
	seq wire.IDSequence

	mu          sync.Mutex
	state       wsState
	conn        *websocket.Conn
	keepalive   *KeepAlive
	intentional bool

	// gen stamps each connection; events from superseded sockets are
	// silently dropped.
	gen uint64

	// failureRecorded marks that the current attempt already counted
	// a failure, so the close path does not count it twice.
	failureRecorded bool

	connectedAt time.Time
	subscribeID uint64
	pingID      uint64
	lastError   string

	writeMu sync.Mutex
}

// NewWebSocket creates the primary transport.
func NewWebSocket(cfg WebSocketConfig, cb Callbacks) *WebSocket {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Profile.PingInterval == 0 || cfg.Profile.PongTimeout == 0 {
		cfg.Profile = platform.Host(false)
	}
	return &WebSocket{
		cfg: cfg,
		cb:  cb,
		log: cfg.Logger.With().Str("transport", "websocket").Logger(),
	}
}

// Connect opens the socket and starts the handshake. No-ops when a
// connection is already underway or authenticated. The handshake
// completes asynchronously; OnConnect fires on auth_ok.
func (t *WebSocket) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state != wsClosed {
		t.mu.Unlock()
		return nil
	}
	t.state = wsConnecting
	t.intentional = false
	t.failureRecorded = false
	t.connectedAt = time.Time{}
	t.pingID = 0
	t.lastError = ""
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	connID := uuid.NewString()
	log := t.log.With().Str("conn_id", connID).Logger()

	t.recordAttempt()
	log.Debug().Str("url", t.cfg.URL).Msg("connecting")

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		t.mu.Lock()
		if t.gen == gen {
			t.state = wsClosed
			t.failureRecorded = true
			t.lastError = err.Error()
		}
		t.mu.Unlock()
		t.recordFailure(err.Error())
		return fmt.Errorf("dial failed: %w", err)
	}

	t.mu.Lock()
	if t.gen != gen || t.intentional {
		t.mu.Unlock()
		conn.Close()
		return ErrConnectionClosed
	}
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(gen, conn, log)
	return nil
}

// Disconnect closes the socket intentionally. The close never counts
// as unexpected and never triggers the caller's reconnect path more
// than the single OnDisconnect it emits.
func (t *WebSocket) Disconnect() {
	t.mu.Lock()
	t.intentional = true
	conn := t.conn
	gen := t.gen
	t.mu.Unlock()

	if conn == nil {
		return
	}

	// Best effort close frame; the server may already be gone.
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	t.handleClose(gen, nil)
}

// Send transmits a command, assigning the next session id if the
// command does not carry one. Returns false when the socket is not
// open. Never throws, never queues.
func (t *WebSocket) Send(cmd *wire.Command) bool {
	t.mu.Lock()
	conn := t.conn
	open := conn != nil && t.state != wsClosed
	t.mu.Unlock()

	if !open {
		return false
	}

	cmd.EnsureID(&t.seq)
	if err := t.write(conn, cmd); err != nil {
		t.log.Debug().Err(err).Str("type", cmd.Type).Msg("send failed")
		return false
	}
	return true
}

// IsConnected reports whether the handshake has completed.
func (t *WebSocket) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == wsAuthenticated
}

// State returns a human-readable connection state.
func (t *WebSocket) State() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.String()
}

// LastError returns the most recent surfaced error string.
func (t *WebSocket) LastError() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastError
}

// readLoop pumps inbound frames until the socket dies.
func (t *WebSocket) readLoop(gen uint64, conn *websocket.Conn, log zerolog.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleClose(gen, err)
			return
		}
		t.handleMessage(gen, data, log)
	}
}

// handleMessage decodes and dispatches one frame. Malformed input is
// logged and dropped, never fatal.
func (t *WebSocket) handleMessage(gen uint64, data []byte, log zerolog.Logger) {
	if !t.isCurrent(gen) {
		return
	}

	msg, err := wire.Decode(data)
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	switch msg.Kind() {
	case wire.KindAuthRequired:
		t.handleAuthRequired(gen, log)
	case wire.KindAuthOK:
		t.handleAuthOK(gen, log)
	case wire.KindAuthInvalid:
		t.handleAuthInvalid(gen, msg, log)
	case wire.KindResult:
		t.handleResult(gen, msg, log)
	case wire.KindEvent:
		t.handleEvent(msg, log)
	case wire.KindPong:
		t.pongReceived(0)
	case wire.KindAreasUpdated:
		t.handleLegacyAreas(msg, log)
	case wire.KindAreaUpdated:
		t.handleLegacyArea(msg, log)
	case wire.KindAreaDeleted:
		t.handleLegacyAreaDeleted(msg, log)
	default:
		log.Debug().Str("type", msg.Type).Msg("ignoring unknown message type")
	}
}

func (t *WebSocket) handleAuthRequired(gen uint64, log zerolog.Logger) {
	tok, ok := t.resolveToken()
	if !ok {
		// Fatal for this attempt only; the caller decides whether to
		// retry. Recording the failure here keeps the close path from
		// counting it as a second failure.
		t.mu.Lock()
		if t.gen != gen {
			t.mu.Unlock()
			return
		}
		t.lastError = "no token"
		t.failureRecorded = true
		conn := t.conn
		t.mu.Unlock()

		t.recordFailure("no token")
		log.Warn().Msg("closing: no auth token available")
		if conn != nil {
			conn.Close()
		}
		return
	}

	t.mu.Lock()
	if t.gen != gen || t.conn == nil {
		t.mu.Unlock()
		return
	}
	t.state = wsAuthRequired
	conn := t.conn
	t.mu.Unlock()

	cmd := wire.NewAuthCommand(tok)
	cmd.EnsureID(&t.seq)
	if err := t.write(conn, cmd); err != nil {
		log.Warn().Err(err).Msg("failed to send auth command")
	}
}

func (t *WebSocket) handleAuthOK(gen uint64, log zerolog.Logger) {
	now := time.Now()

	t.mu.Lock()
	if t.gen != gen || t.conn == nil {
		t.mu.Unlock()
		return
	}
	t.state = wsAuthenticated
	t.connectedAt = now
	t.lastError = ""
	conn := t.conn

	ka := NewKeepAlive(
		KeepAliveConfig{
			PingInterval: t.cfg.Profile.PingInterval,
			PongTimeout:  t.cfg.Profile.PongTimeout,
		},
		func() (uint64, error) { return t.sendPing(conn) },
		func() { t.forceClose(gen, "keepalive timeout", log) },
	)
	t.keepalive = ka
	t.mu.Unlock()

	t.recordSuccess(now)
	log.Info().Msg("authenticated")
	t.cb.emitConnect()

	ka.Start()

	sub := wire.NewSubscribeCommand()
	sub.EnsureID(&t.seq)
	t.mu.Lock()
	t.subscribeID = sub.ID
	t.mu.Unlock()
	if err := t.write(conn, sub); err != nil {
		log.Warn().Err(err).Msg("failed to send subscribe command")
	}
}

func (t *WebSocket) handleAuthInvalid(gen uint64, msg *wire.Message, log zerolog.Logger) {
	reason := msg.Error.String()
	if reason == "" {
		reason = "authentication rejected"
	}

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.lastError = reason
	t.failureRecorded = true
	conn := t.conn
	t.mu.Unlock()

	t.recordFailure(reason)
	log.Warn().Str("reason", reason).Msg("authentication rejected")
	if conn != nil {
		conn.Close()
	}
}

func (t *WebSocket) handleResult(gen uint64, msg *wire.Message, log zerolog.Logger) {
	if !t.isCurrent(gen) {
		return
	}

	if !msg.IsSuccess() {
		// Command failures are not connection failures; surface the
		// error and keep the socket open.
		errStr := msg.Error.String()
		if errStr == "" {
			errStr = "command failed"
		}
		t.mu.Lock()
		t.lastError = errStr
		t.mu.Unlock()
		t.cb.emitError(fmt.Errorf("command %d failed: %s", msg.ID, errStr))
		return
	}

	if msg.Result != nil && msg.Result.Event != "" {
		if msg.Result.Event == wire.EventAreasUpdated {
			zones, err := zone.DecodeZones(msg.Result.Data)
			if err != nil {
				log.Warn().Err(err).Msg("dropping malformed zones payload")
				return
			}
			t.cb.emitZonesUpdate(zones)
			return
		}

		// Device/telemetry events are cross-component signals; they
		// go out on the bus, not through the zone callbacks.
		t.cfg.Telemetry.Publish(TelemetryEvent{
			Event: msg.Result.Event,
			Data:  msg.Result.Data,
		})
		return
	}

	// A plain acknowledgement. The subscription ack is only worth a
	// log line, and only the outstanding ping's ack is a pong; acks
	// for consumer commands stay off the keepalive channel so they
	// cannot occupy the pong slot.
	t.mu.Lock()
	subscribed := msg.ID != 0 && msg.ID == t.subscribeID
	pong := msg.ID == 0 || (t.pingID != 0 && msg.ID == t.pingID)
	t.mu.Unlock()
	switch {
	case subscribed:
		log.Debug().Msg("zone subscription acknowledged")
	case pong:
		t.pongReceived(msg.ID)
	default:
		log.Debug().Uint64("id", msg.ID).Msg("command acknowledged")
	}
}

func (t *WebSocket) handleEvent(msg *wire.Message, log zerolog.Logger) {
	data, err := msg.EventData()
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed event")
		return
	}

	// The payload fields are mutually exclusive; first match wins.
	switch {
	case len(data.Areas) > 0:
		zones, err := zone.DecodeZones(data.Areas)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed areas payload")
			return
		}
		t.cb.emitZonesUpdate(zones)

	case len(data.Area) > 0:
		var z zone.Zone
		if err := json.Unmarshal(data.Area, &z); err != nil {
			log.Warn().Err(err).Msg("dropping malformed area payload")
			return
		}
		t.cb.emitZoneUpdate(z)

	case data.AreaID != "":
		t.cb.emitZoneDelete(data.AreaID)
	}
}

func (t *WebSocket) handleLegacyAreas(msg *wire.Message, log zerolog.Logger) {
	zones, err := zone.DecodeZones(msg.Data)
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed areas_updated payload")
		return
	}
	t.cb.emitZonesUpdate(zones)
}

func (t *WebSocket) handleLegacyArea(msg *wire.Message, log zerolog.Logger) {
	var z zone.Zone
	if err := json.Unmarshal(msg.Data, &z); err != nil {
		log.Warn().Err(err).Msg("dropping malformed area_updated payload")
		return
	}
	t.cb.emitZoneUpdate(z)
}

func (t *WebSocket) handleLegacyAreaDeleted(msg *wire.Message, log zerolog.Logger) {
	var probe struct {
		AreaID string `json:"area_id"`
	}
	if err := json.Unmarshal(msg.Data, &probe); err == nil && probe.AreaID != "" {
		t.cb.emitZoneDelete(probe.AreaID)
		return
	}

	// Some servers send the id as a bare string.
	var id string
	if err := json.Unmarshal(msg.Data, &id); err == nil && id != "" {
		t.cb.emitZoneDelete(id)
		return
	}

	log.Warn().Msg("dropping malformed area_deleted payload")
}

// handleClose tears down the current connection exactly once and
// reports the disconnect. Events from superseded generations are
// dropped.
func (t *WebSocket) handleClose(gen uint64, cause error) {
	t.mu.Lock()
	if t.gen != gen || t.state == wsClosed {
		t.mu.Unlock()
		return
	}

	wasAuthenticated := t.state == wsAuthenticated
	intentional := t.intentional
	failureRecorded := t.failureRecorded
	connectedAt := t.connectedAt
	ka := t.keepalive
	conn := t.conn

	t.state = wsClosed
	t.keepalive = nil
	t.conn = nil
	t.mu.Unlock()

	if ka != nil {
		ka.Stop()
	}
	if conn != nil {
		conn.Close()
	}

	// Closes before authentication are failed connection attempts,
	// unless the failure was already counted (no token, auth_invalid).
	if !wasAuthenticated && !intentional && !failureRecorded {
		reason := "connection closed before authentication"
		if cause != nil {
			reason = cause.Error()
		}
		t.mu.Lock()
		t.lastError = reason
		t.mu.Unlock()
		t.recordFailure(reason)
	}

	unexpected := wasAuthenticated && !intentional
	t.recordDisconnect(unexpected, connectedAt)

	t.log.Info().
		Bool("unexpected", unexpected).
		Bool("intentional", intentional).
		Msg("disconnected")
	t.cb.emitDisconnect(unexpected)
}

// forceClose kills the socket when the keepalive window elapses. The
// resulting read error runs the normal close path, so the close counts
// as unexpected and the caller's reconnect logic engages.
func (t *WebSocket) forceClose(gen uint64, reason string, log zerolog.Logger) {
	t.mu.Lock()
	if t.gen != gen || t.conn == nil {
		t.mu.Unlock()
		return
	}
	t.lastError = reason
	conn := t.conn
	t.mu.Unlock()

	log.Warn().Str("reason", reason).Msg("forcing connection closed")
	conn.Close()
}

// sendPing transmits a keepalive ping and returns its command id. The
// id is remembered so the result dispatch can tell the pong apart from
// consumer command acks.
func (t *WebSocket) sendPing(conn *websocket.Conn) (uint64, error) {
	cmd := wire.NewPingCommand()
	id := cmd.EnsureID(&t.seq)
	t.mu.Lock()
	t.pingID = id
	t.mu.Unlock()
	return id, t.write(conn, cmd)
}

func (t *WebSocket) pongReceived(id uint64) {
	t.mu.Lock()
	ka := t.keepalive
	t.mu.Unlock()
	if ka != nil {
		ka.PongReceived(id)
	}
}

func (t *WebSocket) resolveToken() (string, bool) {
	if t.cfg.Resolver == nil {
		return "", false
	}
	return t.cfg.Resolver.Resolve()
}

func (t *WebSocket) isCurrent(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen && t.state != wsClosed
}

// write serializes one command on the socket. gorilla permits a single
// concurrent writer, hence the write lock.
func (t *WebSocket) write(conn *websocket.Conn, cmd *wire.Command) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteJSON(cmd)
}

// Metrics guards: the store is optional.

func (t *WebSocket) recordAttempt() {
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.RecordAttempt()
	}
}

func (t *WebSocket) recordSuccess(now time.Time) {
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.RecordSuccess(now)
	}
}

func (t *WebSocket) recordFailure(reason string) {
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.RecordFailure(reason)
	}
}

func (t *WebSocket) recordDisconnect(unexpected bool, connectedAt time.Time) {
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.RecordDisconnect(time.Now(), unexpected, connectedAt)
	}
}

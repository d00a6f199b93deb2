package transport

import (
	"context"
	"errors"

	"github.com/TheFlexican/smart-heating-sub000/pkg/wire"
	"github.com/TheFlexican/smart-heating-sub000/pkg/zone"
)

// Transport errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrNotConnected     = errors.New("not connected")
)

// Transport is one channel delivering zone state to the client.
// Implemented by WebSocket and Polling.
type Transport interface {
	// Connect starts the channel. It no-ops when already connecting
	// or connected.
	Connect(ctx context.Context) error

	// Disconnect stops the channel intentionally. Safe to call more
	// than once; only the first call emits OnDisconnect.
	Disconnect()

	// Send transmits a command, assigning a session id if the command
	// does not carry one. Returns false when the channel cannot send
	// (closed socket, or a channel with no command path). Never
	// blocks on reconnection, never queues.
	Send(cmd *wire.Command) bool

	// IsConnected reports whether the channel is currently open.
	IsConnected() bool
}

// Callbacks is the consumer-facing event surface. Any callback may be
// nil. Callbacks must tolerate duplicate or overlapping delivery
// across transport switches.
type Callbacks struct {
	// OnZonesUpdate delivers a full zones collection.
	OnZonesUpdate func(zones []zone.Zone)

	// OnZoneUpdate delivers a single created or updated zone.
	OnZoneUpdate func(z zone.Zone)

	// OnZoneDelete delivers the id of a removed zone.
	OnZoneDelete func(zoneID string)

	// OnConnect fires when the channel becomes usable.
	OnConnect func()

	// OnDisconnect fires when the channel stops. unexpected is true
	// for closes after successful authentication that were not
	// requested via Disconnect.
	OnDisconnect func(unexpected bool)

	// OnError surfaces non-fatal errors (command failures, poll
	// failures, malformed frames).
	OnError func(err error)
}

// Nil-safe emit helpers.

func (cb Callbacks) emitZonesUpdate(zones []zone.Zone) {
	if cb.OnZonesUpdate != nil {
		cb.OnZonesUpdate(zones)
	}
}

func (cb Callbacks) emitZoneUpdate(z zone.Zone) {
	if cb.OnZoneUpdate != nil {
		cb.OnZoneUpdate(z)
	}
}

func (cb Callbacks) emitZoneDelete(zoneID string) {
	if cb.OnZoneDelete != nil {
		cb.OnZoneDelete(zoneID)
	}
}

func (cb Callbacks) emitConnect() {
	if cb.OnConnect != nil {
		cb.OnConnect()
	}
}

func (cb Callbacks) emitDisconnect(unexpected bool) {
	if cb.OnDisconnect != nil {
		cb.OnDisconnect(unexpected)
	}
}

func (cb Callbacks) emitError(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Transport = (*WebSocket)(nil)
	_ Transport = (*Polling)(nil)
)

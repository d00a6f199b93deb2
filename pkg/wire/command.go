package wire

import (
	"encoding/json"
	"sync/atomic"
)

// Outbound command types.
const (
	// CmdAuth authenticates the session with a bearer token.
	CmdAuth = "auth"

	// CmdPing is the keepalive probe.
	CmdPing = "ping"

	// CmdSubscribe subscribes the session to zone state updates.
	CmdSubscribe = "smart_heating/subscribe"
)

// Command is a client-to-server command. It serializes to a flat JSON
// object: the id and type fields plus any entries from Fields at the
// top level.
type Command struct {
	// ID is the session-scoped monotonic command id. Zero means
	// "not yet assigned"; EnsureID fills it in before serialization.
	ID uint64

	// Type is the command discriminator.
	Type string

	// Fields holds command-specific payload entries, flattened into
	// the top-level object on serialization.
	Fields map[string]any
}

// NewAuthCommand builds an auth command carrying the access token.
func NewAuthCommand(token string) *Command {
	return &Command{
		Type:   CmdAuth,
		Fields: map[string]any{"access_token": token},
	}
}

// NewPingCommand builds a keepalive ping command.
func NewPingCommand() *Command {
	return &Command{Type: CmdPing}
}

// NewSubscribeCommand builds the zone update subscription command.
func NewSubscribeCommand() *Command {
	return &Command{Type: CmdSubscribe}
}

// EnsureID assigns the next id from seq if the command does not carry
// one yet. Returns the command's id either way.
func (c *Command) EnsureID(seq *IDSequence) uint64 {
	if c.ID == 0 {
		c.ID = seq.Next()
	}
	return c.ID
}

// MarshalJSON flattens the command into a single JSON object.
func (c *Command) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c.Fields)+2)
	for k, v := range c.Fields {
		m[k] = v
	}
	if c.ID != 0 {
		m["id"] = c.ID
	}
	m["type"] = c.Type
	return json.Marshal(m)
}

// UnmarshalJSON splits a flat command object back into id, type and the
// remaining payload fields. Used by test harnesses acting as the server.
func (c *Command) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	if raw, ok := m["id"]; ok {
		if err := json.Unmarshal(raw, &c.ID); err != nil {
			return err
		}
		delete(m, "id")
	}
	if raw, ok := m["type"]; ok {
		if err := json.Unmarshal(raw, &c.Type); err != nil {
			return err
		}
		delete(m, "type")
	}

	if len(m) > 0 {
		c.Fields = make(map[string]any, len(m))
		for k, raw := range m {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			c.Fields[k] = v
		}
	}
	return nil
}

// IDSequence issues session-scoped monotonic command ids starting at 1.
// Safe for concurrent use.
type IDSequence struct {
	n atomic.Uint64
}

// Next returns the next id in the sequence.
func (s *IDSequence) Next() uint64 {
	return s.n.Add(1)
}

// Current returns the most recently issued id (0 if none yet).
func (s *IDSequence) Current() uint64 {
	return s.n.Load()
}

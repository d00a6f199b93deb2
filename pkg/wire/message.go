package wire

import (
	"encoding/json"
	"fmt"
)

// Inbound message types.
const (
	TypeAuthRequired = "auth_required"
	TypeAuthOK       = "auth_ok"
	TypeAuthInvalid  = "auth_invalid"
	TypeResult       = "result"
	TypeEvent        = "event"

	// Legacy flat variants still emitted by older server revisions.
	TypePong         = "pong"
	TypeAreasUpdated = "areas_updated"
	TypeAreaUpdated  = "area_updated"
	TypeAreaDeleted  = "area_deleted"
)

// Subscription event names carried inside result payloads.
const (
	// EventAreasUpdated is the subscription event carrying the full
	// zones collection.
	EventAreasUpdated = "areas_updated"
)

// Kind classifies an inbound message.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAuthRequired
	KindAuthOK
	KindAuthInvalid
	KindResult
	KindEvent
	KindPong
	KindAreasUpdated
	KindAreaUpdated
	KindAreaDeleted
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindAuthRequired:
		return "auth_required"
	case KindAuthOK:
		return "auth_ok"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindResult:
		return "result"
	case KindEvent:
		return "event"
	case KindPong:
		return "pong"
	case KindAreasUpdated:
		return "areas_updated"
	case KindAreaUpdated:
		return "area_updated"
	case KindAreaDeleted:
		return "area_deleted"
	default:
		return "unknown"
	}
}

// ErrorInfo carries a server-supplied error code and message.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// String formats the error for surfacing to the consumer.
func (e *ErrorInfo) String() string {
	if e == nil {
		return ""
	}
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// ResultPayload is the nested payload of result and event messages.
type ResultPayload struct {
	// Event names the subscription or telemetry event, when present.
	Event string `json:"event,omitempty"`

	// Data carries the event payload verbatim.
	Data json.RawMessage `json:"data,omitempty"`
}

// EventData is the probe shape for event payloads. Exactly one of the
// three fields is expected to be present; routing picks the first match.
type EventData struct {
	Areas  json.RawMessage `json:"areas,omitempty"`
	Area   json.RawMessage `json:"area,omitempty"`
	AreaID string          `json:"area_id,omitempty"`
}

// Message is the inbound server-to-client envelope.
type Message struct {
	ID      uint64          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  *ResultPayload  `json:"result,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Decode parses a JSON text frame into a message envelope.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	return &msg, nil
}

// Kind classifies the message by its type discriminator. Unrecognized
// types return KindUnknown; they are ignored by callers, never fatal.
func (m *Message) Kind() Kind {
	switch m.Type {
	case TypeAuthRequired:
		return KindAuthRequired
	case TypeAuthOK:
		return KindAuthOK
	case TypeAuthInvalid:
		return KindAuthInvalid
	case TypeResult:
		return KindResult
	case TypeEvent:
		return KindEvent
	case TypePong:
		return KindPong
	case TypeAreasUpdated:
		return KindAreasUpdated
	case TypeAreaUpdated:
		return KindAreaUpdated
	case TypeAreaDeleted:
		return KindAreaDeleted
	default:
		return KindUnknown
	}
}

// IsSuccess reports whether a result message indicates success.
// Results without an explicit success flag count as successful.
func (m *Message) IsSuccess() bool {
	return m.Success == nil || *m.Success
}

// EventData decodes the nested event payload of an event message.
// Returns an empty probe when there is no payload.
func (m *Message) EventData() (EventData, error) {
	var probe EventData
	if m.Result == nil || len(m.Result.Data) == 0 {
		return probe, nil
	}
	if err := json.Unmarshal(m.Result.Data, &probe); err != nil {
		return probe, fmt.Errorf("malformed event payload: %w", err)
	}
	return probe, nil
}

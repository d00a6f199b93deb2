package connlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// EventKind identifies a connection lifecycle event.
type EventKind uint8

const (
	// EventAttempt is a connection attempt.
	EventAttempt EventKind = iota + 1

	// EventConnected is a successful authentication.
	EventConnected

	// EventDisconnected is a connection close.
	EventDisconnected

	// EventFailure is a failed connection attempt.
	EventFailure

	// EventFallback is a switch to the fallback transport.
	EventFallback

	// EventRecovered is a switch back to the primary transport.
	EventRecovered
)

// String returns a human-readable kind name.
func (k EventKind) String() string {
	switch k {
	case EventAttempt:
		return "attempt"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventFailure:
		return "failure"
	case EventFallback:
		return "fallback"
	case EventRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// Event is one journal record. Integer keys keep records compact.
type Event struct {
	Time      time.Time     `cbor:"1,keyasint"`
	Kind      EventKind     `cbor:"2,keyasint"`
	Transport string        `cbor:"3,keyasint,omitempty"`
	Reason    string        `cbor:"4,keyasint,omitempty"`
	Duration  time.Duration `cbor:"5,keyasint,omitempty"`
}

// encMode is the CBOR encoder mode for journal records.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for journal records.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create connlog encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create connlog decoder mode: %v", err))
	}
}

// Writer appends events to a journal file. Safe for concurrent use.
// A nil Writer discards events.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
}

// NewWriter opens (or creates) the journal at path for appending.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Writer{
		file:    f,
		encoder: encMode.NewEncoder(f),
	}, nil
}

// Log appends an event. A zero Time is stamped with the current time.
// Encoding errors are dropped; journaling must not disturb the client.
func (w *Writer) Log(event Event) {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	_ = w.encoder.Encode(event)
}

// Close closes the journal file. Safe to call multiple times; later
// Log calls are silently ignored.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// Reader decodes journal records from a stream.
type Reader struct {
	decoder *cbor.Decoder
}

// NewReader creates a reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{decoder: decMode.NewDecoder(r)}
}

// Next returns the next event, or io.EOF at the end of the journal.
// A truncated final record also reports io.EOF.
func (r *Reader) Next() (Event, error) {
	var event Event
	err := r.decoder.Decode(&event)
	if err == io.ErrUnexpectedEOF {
		return Event{}, io.EOF
	}
	return event, err
}

// ReadFile decodes a complete journal file.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	r := NewReader(f)
	for {
		event, err := r.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

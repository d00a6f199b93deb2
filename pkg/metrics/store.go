package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StateVersion is the current version of the metrics file format.
const StateVersion = 1

// DurationWindow is the size of the rolling window of connection
// duration samples.
const DurationWindow = 20

// DeviceInfo is the static client fingerprint recorded alongside the
// counters.
type DeviceInfo struct {
	// Platform is the operating system family.
	Platform string `json:"platform"`

	// Browser is the browser family ("cli" for native hosts).
	Browser string `json:"browser"`

	// Mobile indicates a mobile operating system.
	Mobile bool `json:"mobile"`

	// Embedded indicates the client runs inside an embedding host.
	Embedded bool `json:"embedded"`
}

// ConnectionMetrics describes connection health across sessions.
type ConnectionMetrics struct {
	// Version is the metrics file format version.
	Version int `json:"version"`

	// SavedAt is when the metrics were last persisted.
	SavedAt time.Time `json:"saved_at"`

	// TotalAttempts counts every connection attempt.
	TotalAttempts int `json:"total_attempts"`

	// SuccessfulConnections counts attempts that reached authenticated.
	SuccessfulConnections int `json:"successful_connections"`

	// FailedConnections counts attempts that did not.
	FailedConnections int `json:"failed_connections"`

	// UnexpectedDisconnects counts closes after successful
	// authentication that were not requested by the consumer.
	UnexpectedDisconnects int `json:"unexpected_disconnects"`

	// ConnectionDurationsMS is the rolling window of the last
	// DurationWindow connection durations, in milliseconds.
	ConnectionDurationsMS []int64 `json:"connection_durations_ms,omitempty"`

	// AverageConnectionMS is the arithmetic mean of the window.
	AverageConnectionMS int64 `json:"average_connection_ms,omitempty"`

	// LastFailureReason is the reason of the most recent failure.
	LastFailureReason string `json:"last_failure_reason,omitempty"`

	// LastConnectedAt is the most recent successful connection time.
	LastConnectedAt time.Time `json:"last_connected_at,omitempty"`

	// LastDisconnectedAt is the most recent disconnect time.
	LastDisconnectedAt time.Time `json:"last_disconnected_at,omitempty"`

	// Device is the static client fingerprint.
	Device DeviceInfo `json:"device"`
}

// addDurationSample appends a sample to the rolling window, evicting
// the oldest beyond DurationWindow, and recomputes the mean.
func (m *ConnectionMetrics) addDurationSample(d time.Duration) {
	m.ConnectionDurationsMS = append(m.ConnectionDurationsMS, d.Milliseconds())
	if n := len(m.ConnectionDurationsMS); n > DurationWindow {
		m.ConnectionDurationsMS = m.ConnectionDurationsMS[n-DurationWindow:]
	}

	var sum int64
	for _, v := range m.ConnectionDurationsMS {
		sum += v
	}
	m.AverageConnectionMS = sum / int64(len(m.ConnectionDurationsMS))
}

// Store manages the persisted connection metrics. All mutations run
// under the store's lock and persist immediately.
type Store struct {
	mu      sync.Mutex
	path    string
	log     zerolog.Logger
	current ConnectionMetrics
}

// NewStore creates a store persisting to path, stamped with the given
// device fingerprint.
func NewStore(path string, device DeviceInfo, log zerolog.Logger) *Store {
	return &Store{
		path: path,
		log:  log,
		current: ConnectionMetrics{
			Version: StateVersion,
			Device:  device,
		},
	}
}

// Load reads previously persisted metrics. A missing file leaves the
// zero state in place. The device fingerprint always reflects the
// current process, not the persisted one.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	device := s.current.Device
	if err := json.Unmarshal(data, &s.current); err != nil {
		return err
	}
	s.current.Version = StateVersion
	s.current.Device = device
	return nil
}

// Snapshot returns a copy of the current metrics.
func (s *Store) Snapshot() ConnectionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current
	snap.ConnectionDurationsMS = append([]int64(nil), s.current.ConnectionDurationsMS...)
	return snap
}

// Update applies a mutation and persists the result. Persistence
// failures are logged, never surfaced; the in-memory state is the
// source of truth.
func (s *Store) Update(mutate func(*ConnectionMetrics)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mutate(&s.current)
	s.persistLocked()
}

// RecordAttempt counts a connection attempt.
func (s *Store) RecordAttempt() {
	s.Update(func(m *ConnectionMetrics) {
		m.TotalAttempts++
	})
}

// RecordSuccess counts a successful connection at time now.
func (s *Store) RecordSuccess(now time.Time) {
	s.Update(func(m *ConnectionMetrics) {
		m.SuccessfulConnections++
		m.LastConnectedAt = now
	})
}

// RecordFailure counts a failed connection attempt with its reason.
func (s *Store) RecordFailure(reason string) {
	s.Update(func(m *ConnectionMetrics) {
		m.FailedConnections++
		m.LastFailureReason = reason
	})
}

// RecordDisconnect records a disconnect at time now. Unexpected closes
// increment the unexpected counter. A non-zero connectedAt adds a
// connection duration sample to the rolling window.
func (s *Store) RecordDisconnect(now time.Time, unexpected bool, connectedAt time.Time) {
	s.Update(func(m *ConnectionMetrics) {
		m.LastDisconnectedAt = now
		if unexpected {
			m.UnexpectedDisconnects++
		}
		if !connectedAt.IsZero() {
			m.addDurationSample(now.Sub(connectedAt))
		}
	})
}

// persistLocked writes the current state to disk. Caller holds the lock.
func (s *Store) persistLocked() {
	s.current.SavedAt = time.Now()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		s.log.Error().Err(err).Msg("failed to create metrics directory")
		return
	}

	data, err := json.MarshalIndent(&s.current, "", "  ")
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode metrics")
		return
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		s.log.Error().Err(err).Msg("failed to persist metrics")
	}
}

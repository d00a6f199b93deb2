package metrics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.json")
	device := DeviceInfo{Platform: "linux", Browser: "cli"}
	return NewStore(path, device, zerolog.Nop()), path
}

func TestLoadMissingFile(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Load())

	snap := s.Snapshot()
	assert.Zero(t, snap.TotalAttempts)
	assert.Equal(t, "linux", snap.Device.Platform)
}

func TestPersistAndReload(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, s.Load())

	now := time.Now()
	s.RecordAttempt()
	s.RecordSuccess(now)
	s.RecordDisconnect(now.Add(90*time.Second), true, now)

	// A fresh store against the same path sees the persisted counters.
	reloaded := NewStore(path, DeviceInfo{Platform: "linux", Browser: "cli"}, zerolog.Nop())
	require.NoError(t, reloaded.Load())

	snap := reloaded.Snapshot()
	assert.Equal(t, 1, snap.TotalAttempts)
	assert.Equal(t, 1, snap.SuccessfulConnections)
	assert.Equal(t, 1, snap.UnexpectedDisconnects)
	require.Len(t, snap.ConnectionDurationsMS, 1)
	assert.Equal(t, int64(90_000), snap.ConnectionDurationsMS[0])
	assert.Equal(t, int64(90_000), snap.AverageConnectionMS)
}

func TestFailureReason(t *testing.T) {
	s, _ := newTestStore(t)

	s.RecordAttempt()
	s.RecordFailure("no token")

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.FailedConnections)
	assert.Equal(t, "no token", snap.LastFailureReason)
}

func TestRollingWindowCap(t *testing.T) {
	s, _ := newTestStore(t)

	base := time.Now()
	for i := 0; i < DurationWindow+5; i++ {
		connectedAt := base
		s.RecordDisconnect(base.Add(time.Duration(i+1)*time.Second), false, connectedAt)
	}

	snap := s.Snapshot()
	assert.Len(t, snap.ConnectionDurationsMS, DurationWindow)
	// Oldest samples evicted: the window starts at the 6th sample (6s).
	assert.Equal(t, int64(6_000), snap.ConnectionDurationsMS[0])
}

func TestIntentionalDisconnectNotUnexpected(t *testing.T) {
	s, _ := newTestStore(t)

	s.RecordDisconnect(time.Now(), false, time.Time{})

	snap := s.Snapshot()
	assert.Zero(t, snap.UnexpectedDisconnects)
	assert.Empty(t, snap.ConnectionDurationsMS)
	assert.False(t, snap.LastDisconnectedAt.IsZero())
}

func TestSnapshotIsACopy(t *testing.T) {
	s, _ := newTestStore(t)
	now := time.Now()
	s.RecordDisconnect(now.Add(time.Second), false, now)

	snap := s.Snapshot()
	snap.ConnectionDurationsMS[0] = 999

	assert.Equal(t, int64(1000), s.Snapshot().ConnectionDurationsMS[0])
}

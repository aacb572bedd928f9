package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/voss/memguard/internal/pressure"
	"codeberg.org/voss/memguard/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *store.Journal {
	t.Helper()

	cfg := store.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "journal.db")
	cfg.BatchSize = 4
	cfg.FlushInterval = 0 // flush driven by batch size and Close only

	j, err := store.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j
}

func event(level pressure.Level, usedMB float64, offset int) pressure.Event {
	return pressure.Event{
		Level:      level,
		UsedMB:     usedMB,
		ObservedAt: time.Unix(1700000000, 0).Add(time.Duration(offset) * time.Second),
	}
}

func TestNewRequiresPath(t *testing.T) {
	_, err := store.New(store.Config{})
	require.Error(t, err)
}

func TestRecordAndCount(t *testing.T) {
	j := newTestJournal(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, j.Record(event(pressure.Warning, 65, i)))
	}

	count, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestTrimStaleRemovesOldestFraction(t *testing.T) {
	j := newTestJournal(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, j.Record(event(pressure.Critical, 110, i)))
	}

	require.NoError(t, j.TrimStale(0.5))

	count, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestTrimStaleIsBounded(t *testing.T) {
	j := newTestJournal(t)

	for i := 0; i < 4; i++ {
		require.NoError(t, j.Record(event(pressure.Warning, 70, i)))
	}

	// A fraction above 1 clears at most everything, never errors
	require.NoError(t, j.TrimStale(3))

	count, err := j.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTrimStaleZeroFractionIsNoop(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.Record(event(pressure.Warning, 70, 0)))
	require.NoError(t, j.TrimStale(0))

	count, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTrimStaleOnEmptyJournal(t *testing.T) {
	j := newTestJournal(t)
	require.NoError(t, j.TrimStale(0.5))
}

func TestClear(t *testing.T) {
	j := newTestJournal(t)

	for i := 0; i < 6; i++ {
		require.NoError(t, j.Record(event(pressure.Emergency, 150, i)))
	}
	require.NoError(t, j.Clear())

	count, err := j.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	// Clearing twice in quick succession is safe
	require.NoError(t, j.Clear())
}

func TestCleanupTargetContract(t *testing.T) {
	j := newTestJournal(t)

	assert.Equal(t, "journal", j.Name())

	for i := 0; i < 10; i++ {
		require.NoError(t, j.Record(event(pressure.Warning, 70, i)))
	}
	require.NoError(t, j.Trim(0.1))

	count, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, 9, count)
}

func TestCloseFlushesPendingEvents(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "journal.db")
	cfg.BatchSize = 100 // nothing flushes before Close
	cfg.FlushInterval = 0

	j, err := store.New(cfg)
	require.NoError(t, err)

	require.NoError(t, j.Record(event(pressure.Warning, 70, 0)))
	require.NoError(t, j.Record(event(pressure.Critical, 110, 1)))
	require.NoError(t, j.Close())

	reopened, err := store.New(store.Config{Path: cfg.Path, BatchSize: 100})
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

package watcher

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijahauan/signal-recorder-sub001/archive"
)

func writeTestArchive(t *testing.T, dir string, boundary time.Time) string {
	t.Helper()
	rec := &archive.Record{
		IQ:            make([]complex64, 4),
		SampleRate:    4,
		FrequencyHz:   10_000_000,
		ChannelName:   "WWV10",
		TimeSnapUTC:   float64(boundary.Unix()),
		RecorderVersion: "test",
	}
	path, err := archive.WriteAtomic(dir, rec, boundary)
	require.NoError(t, err)
	return path
}

func TestWatcherProcessesNewRecordsInOrderAndPersistsState(t *testing.T) {
	archDir := t.TempDir()
	stateDir := t.TempDir()
	statePath := filepath.Join(stateDir, "state.json")

	t0 := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	writeTestArchive(t, archDir, t0)
	writeTestArchive(t, archDir, t0.Add(time.Minute))

	var seen []string
	w := New(archDir, statePath, zerolog.Nop())
	w.OnRecord = func(rec *archive.Record, path string) { seen = append(seen, path) }

	w.pollOnce()
	require.Len(t, seen, 2)

	// A fresh watcher instance loading the persisted state must not
	// reprocess what the first instance already saw.
	var seen2 []string
	w2 := New(archDir, statePath, zerolog.Nop())
	w2.loadState()
	w2.OnRecord = func(rec *archive.Record, path string) { seen2 = append(seen2, path) }
	w2.pollOnce()
	assert.Len(t, seen2, 0)
}

func TestWatcherProcessesLateArrivingRecordDespiteEarlierName(t *testing.T) {
	archDir := t.TempDir()
	stateDir := t.TempDir()
	statePath := filepath.Join(stateDir, "state.json")

	t0 := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	writeTestArchive(t, archDir, t0.Add(time.Minute))

	var seen []string
	w := New(archDir, statePath, zerolog.Nop())
	w.OnRecord = func(rec *archive.Record, path string) { seen = append(seen, path) }
	w.pollOnce()
	require.Len(t, seen, 1)

	// A record for an earlier minute arrives late, after a later minute
	// has already been processed; it must still be dispatched once rather
	// than silently dropped because its filename sorts before lastID.
	late := writeTestArchive(t, archDir, t0)
	w.pollOnce()
	require.Len(t, seen, 2)
	assert.Equal(t, late, seen[1])

	// It is never dispatched a second time.
	w.pollOnce()
	require.Len(t, seen, 2)
}

package status

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporterWritesStatusFileAtomically(t *testing.T) {
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	r := NewReporter("core", dir, reg)

	r.SetState("recording")
	r.IncCounter("packets_read", 42)
	r.write()

	data, err := os.ReadFile(filepath.Join(dir, "core-status.json"))
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "core", snap.Component)
	assert.NotEmpty(t, snap.RunID)
	assert.Equal(t, "recording", snap.CurrentState)
	assert.EqualValues(t, 42, snap.Counters["packets_read"])
}

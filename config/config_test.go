package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(`
data_root: /tmp/hf
multicast:
  group: 239.1.2.3
  port: 5004
channels:
  - name: WWV10
    ssrc: 5000000
    frequency_hz: 10000000
    sample_rate: 16000
    description: wwv-10mhz
`), 0o644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.TimeSnap.BufferSeconds)
	assert.Equal(t, 50, cfg.TimeSnap.CorrectionThresholdMs)
	assert.Equal(t, 600, cfg.TimeSnap.MinIntervalS)
	assert.Equal(t, 60, cfg.BCD.WindowS)
	assert.Equal(t, 0.15, cfg.Voting.BalanceThreshold)
	assert.Equal(t, ModeProduction, cfg.Mode)
	assert.Equal(t, uint32(5000000), cfg.Channels[0].SSRC)
	assert.Equal(t, "/tmp/hf/archives/WWV10", cfg.ArchiveDir("WWV10"))
}

func TestLoadRejectsDuplicateSSRC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(`
multicast:
  group: 239.1.2.3
channels:
  - name: A
    ssrc: 1
    sample_rate: 200
  - name: B
    ssrc: 1
    sample_rate: 200
`), 0o644)
	require.NoError(t, err)

	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNoChannels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(`
multicast:
  group: 239.1.2.3
`), 0o644)
	require.NoError(t, err)

	_, err = Load(path)
	assert.Error(t, err)
}

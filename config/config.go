// Package config loads the recognized options of spec.md §6.4 from YAML.
// It has no command-line overrides of its own; the binaries' only flags
// are --config/-c and --metrics-addr.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Mode selects the base data directory convention.
type Mode string

const (
	ModeTest       Mode = "test"
	ModeProduction Mode = "production"
)

type ChannelConfig struct {
	Name          string  `yaml:"name"` // e.g. "WWV10", used in archive filenames and directory layout
	SSRC          uint32  `yaml:"ssrc"`
	FrequencyHz   float64 `yaml:"frequency_hz"`
	SampleRate    uint32  `yaml:"sample_rate"`
	Description   string  `yaml:"description"`
	StationFreqHz float64 `yaml:"station_frequency_hz"` // nominal carrier for geo ToA model, e.g. 10e6
}

type MulticastConfig struct {
	Group     string `yaml:"group"`
	Port      int    `yaml:"port"`
	Interface string `yaml:"interface"`
}

type TimeSnapConfig struct {
	BufferSeconds         int `yaml:"buffer_seconds"`
	CorrectionThresholdMs int `yaml:"correction_threshold_ms"`
	MinIntervalS          int `yaml:"min_interval_s"`
}

type BCDConfig struct {
	WindowS          int     `yaml:"window_s"`
	StepS            int     `yaml:"step_s"`
	QualityThreshold float64 `yaml:"quality_threshold"`
}

type VotingConfig struct {
	BalanceThreshold float64 `yaml:"balance_threshold"`
	HighConfidence   float64 `yaml:"high_confidence"`
	MediumConfidence float64 `yaml:"medium_confidence"`
	MinMarginDb      float64 `yaml:"min_margin_db"`
}

// StationConfig is opaque pass-through metadata, plus the coordinates the
// BCD correlator's geographic ToA model needs (not in spec.md's literal
// field list, but required for the §4.9 step-5 classifier SPEC_FULL adds).
type StationConfig struct {
	Callsign         string  `yaml:"callsign"`
	GridSquare       string  `yaml:"grid_square"`
	ReceiverName     string  `yaml:"receiver_name"`
	PSWSStationID    string  `yaml:"psws_station_id"`
	PSWSInstrumentID string  `yaml:"psws_instrument_id"`
	LatitudeDeg      float64 `yaml:"latitude_deg"`
	LongitudeDeg     float64 `yaml:"longitude_deg"`
}

type Config struct {
	Mode      Mode            `yaml:"mode"`
	DataRoot  string          `yaml:"data_root"`
	Channels  []ChannelConfig `yaml:"channels"`
	Multicast MulticastConfig `yaml:"multicast"`
	TimeSnap  TimeSnapConfig  `yaml:"time_snap"`
	BCD       BCDConfig       `yaml:"bcd"`
	Voting    VotingConfig    `yaml:"voting"`
	Station   StationConfig   `yaml:"station"`

	// MetricsAddr is the listen address for the Prometheus/status HTTP
	// server. Not in spec.md's field list; ambient ops concern.
	MetricsAddr string `yaml:"metrics_addr"`
}

func defaults() Config {
	return Config{
		Mode:     ModeProduction,
		DataRoot: "./data",
		TimeSnap: TimeSnapConfig{
			BufferSeconds:         120,
			CorrectionThresholdMs: 50,
			MinIntervalS:          600,
		},
		BCD: BCDConfig{
			WindowS:          60,
			StepS:            60,
			QualityThreshold: 3.0,
		},
		Voting: VotingConfig{
			BalanceThreshold: 0.15,
			HighConfidence:   0.7,
			MediumConfidence: 0.4,
			MinMarginDb:      3,
		},
		MetricsAddr: ":9090",
	}
}

// Load reads and validates a YAML config file, applying spec-mandated
// defaults for any option left unset.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("no channels configured")
	}
	seen := map[uint32]bool{}
	for _, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel ssrc=%d: name must be set", ch.SSRC)
		}
		if ch.SampleRate == 0 {
			return fmt.Errorf("channel ssrc=%d: sample_rate must be set", ch.SSRC)
		}
		if seen[ch.SSRC] {
			return fmt.Errorf("duplicate ssrc=%d", ch.SSRC)
		}
		seen[ch.SSRC] = true
	}
	if c.Multicast.Group == "" {
		return fmt.Errorf("multicast.group must be set")
	}
	return nil
}

// ArchiveDir returns {data_root}/archives/{CHANNEL}.
func (c *Config) ArchiveDir(channel string) string {
	return fmt.Sprintf("%s/archives/%s", c.DataRoot, channel)
}

// DecimatedDir returns {data_root}/analytics/{CHANNEL}/decimated.
func (c *Config) DecimatedDir(channel string) string {
	return fmt.Sprintf("%s/analytics/%s/decimated", c.DataRoot, channel)
}

// DiscriminationDir returns {data_root}/analytics/{CHANNEL}/discrimination.
func (c *Config) DiscriminationDir(channel string) string {
	return fmt.Sprintf("%s/analytics/%s/discrimination", c.DataRoot, channel)
}

// StateDir returns {data_root}/state.
func (c *Config) StateDir() string {
	return fmt.Sprintf("%s/state", c.DataRoot)
}

// StatusDir returns {data_root}/status.
func (c *Config) StatusDir() string {
	return fmt.Sprintf("%s/status", c.DataRoot)
}

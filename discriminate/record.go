// Package discriminate implements the multi-method WWV/WWVH station
// discriminator: tone metrics, BCD correlation, tick analysis, and the
// weighted-voting combiner that fuses them into a per-minute dominance
// decision (spec.md §4.8-§4.12, §6.3).
package discriminate

// Dominance is the combiner's per-minute verdict.
type Dominance string

const (
	DominantWWV      Dominance = "WWV"
	DominantWWVH     Dominance = "WWVH"
	DominantBalanced Dominance = "BALANCED"
)

// Confidence is the combiner's qualitative confidence tag (spec.md §4.11).
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// TickWindow is one second-marker observation within the 60 s tick
// analysis window (spec.md §6.3 tick_windows JSON array element).
type TickWindow struct {
	Second              int     `json:"second"`
	WWVSnrDb             float64 `json:"wwv_snr_db"`
	WWVHSnrDb            float64 `json:"wwvh_snr_db"`
	CoherentWWVSnrDb     float64 `json:"coherent_wwv_snr_db"`
	CoherentWWVHSnrDb    float64 `json:"coherent_wwvh_snr_db"`
	IncoherentWWVSnrDb   float64 `json:"incoherent_wwv_snr_db"`
	IncoherentWWVHSnrDb  float64 `json:"incoherent_wwvh_snr_db"`
	IntegrationMethod    string  `json:"integration_method"`
	TickCount            int     `json:"tick_count"`
}

// BCDWindow is one BCD correlation window (spec.md §6.3 bcd_windows).
type BCDWindow struct {
	WindowStartSec       int     `json:"window_start_sec"`
	WWVAmplitude         float64 `json:"wwv_amplitude"`
	WWVHAmplitude        float64 `json:"wwvh_amplitude"`
	DifferentialDelayMs  float64 `json:"differential_delay_ms"`
	CorrelationQuality   float64 `json:"correlation_quality"`
}

// Record is one row of the per-channel, per-day discrimination CSV
// (spec.md §6.3), keyed for idempotent rewrite by MinuteTimestamp.
type Record struct {
	TimestampUTC    float64
	MinuteTimestamp int64 // unix seconds, truncated to the minute: the idempotence key
	MinuteNumber    int   // 0-59, minute-of-hour

	WWVDetected  bool
	WWVHDetected bool

	WWVPowerDb          float64
	WWVHPowerDb         float64
	PowerRatioDb        float64
	DifferentialDelayMs float64

	Tone440WWVDetected   bool
	Tone440WWVPowerDb    float64
	Tone440WWVHDetected  bool
	Tone440WWVHPowerDb   float64

	DominantStation Dominance
	Confidence      Confidence

	TickWindows []TickWindow

	BCDWWVAmplitude        float64
	BCDWWVHAmplitude       float64
	BCDDifferentialDelayMs float64
	BCDCorrelationQuality  float64
	BCDWindows             []BCDWindow
}

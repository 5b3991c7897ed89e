package dsp

import "math"

// ToneTemplate is a Tukey-windowed reference tone used to correlate
// against a rolling buffer for time-of-arrival detection (spec.md §4.3).
type ToneTemplate struct {
	FreqHz     float64
	DurationS  float64
	sampleRate float64
	sin, cos   []float64
}

// NewToneTemplate builds the sine/cosine reference arrays for freqHz over
// durationS seconds at sampleRate, Tukey-tapered so the correlation peak
// is phase-invariant and free of the spectral splatter a hard-edged burst
// would produce (spec.md §4.3 matched filter requirement).
func NewToneTemplate(freqHz, durationS, sampleRate float64) *ToneTemplate {
	n := int(durationS * sampleRate)
	win := Tukey(n, 0.25)
	sin := make([]float64, n)
	cos := make([]float64, n)
	for i := 0; i < n; i++ {
		phase := 2 * math.Pi * freqHz * float64(i) / sampleRate
		sin[i] = math.Sin(phase) * win[i]
		cos[i] = math.Cos(phase) * win[i]
	}
	return &ToneTemplate{FreqHz: freqHz, DurationS: durationS, sampleRate: sampleRate, sin: sin, cos: cos}
}

func (t *ToneTemplate) Len() int { return len(t.sin) }

// CorrelateAt computes the phase-invariant correlation magnitude of the
// template against buf starting at offset, combining the sine/cosine
// correlators as sqrt(c_sin^2+c_cos^2) so the result does not depend on
// the tone's arrival phase.
func (t *ToneTemplate) CorrelateAt(buf []float64, offset int) float64 {
	n := t.Len()
	if offset+n > len(buf) {
		return 0
	}
	var cSin, cCos float64
	for i := 0; i < n; i++ {
		v := buf[offset+i]
		cSin += v * t.sin[i]
		cCos += v * t.cos[i]
	}
	return math.Hypot(cSin, cCos)
}

// Scan slides the template over buf and returns the best-correlation
// offset, its magnitude, and an SNR estimate (peak over median of the
// scanned correlation curve, spec.md §4.3 SNR requirement for
// confidence scoring).
func (t *ToneTemplate) Scan(buf []float64) (bestOffset int, bestMag float64, snr float64) {
	n := t.Len()
	if len(buf) <= n {
		return 0, 0, 0
	}
	corr := make([]float64, len(buf)-n+1)
	for off := range corr {
		corr[off] = t.CorrelateAt(buf, off)
		if corr[off] > bestMag {
			bestMag = corr[off]
			bestOffset = off
		}
	}
	median := medianOf(corr)
	if median > 0 {
		snr = bestMag / median
	}
	return bestOffset, bestMag, snr
}

// SubSampleOffset refines an integer correlation peak to sub-sample
// precision via parabolic interpolation of the three correlation values
// around it (spec.md §4.3's sub-sample interpolation requirement).
func SubSampleOffset(corrBefore, corrPeak, corrAfter float64, peakIndex int) float64 {
	denom := corrBefore - 2*corrPeak + corrAfter
	if denom == 0 {
		return float64(peakIndex)
	}
	delta := 0.5 * (corrBefore - corrAfter) / denom
	return float64(peakIndex) + delta
}

func medianOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	// insertion sort: these arrays are the timesnap detector's
	// buffer_seconds worth of samples at the channel's native sample rate,
	// and this runs once per scan, not in a hot loop.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

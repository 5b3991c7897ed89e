package discriminate

import (
	"math"

	"github.com/mijahauan/signal-recorder-sub001/dsp"
)

// bcdFreqHz is the BCD time-code subcarrier (spec.md §4.9).
const bcdFreqHz = 100.0

// minPeakSepMs/maxPeakSepMs bound the dual-peak search window spec.md
// §4.9 step 3 specifies.
const (
	minPeakSepMs = 5.0
	maxPeakSepMs = 30.0
)

// BCDResult is one window's correlation outcome.
type BCDResult struct {
	WWVAmplitude        float64
	WWVHAmplitude       float64
	DifferentialDelayMs float64
	Quality             float64
	Dropped             bool

	// SinglePeak is true when only one correlation peak cleared the
	// quality threshold; WWVAmplitude then holds its magnitude and
	// SinglePeakLagMs its lag relative to the window's expected second
	// boundary, for a caller to resolve via ClassifySinglePeak.
	SinglePeak     bool
	SinglePeakLagMs float64
}

// BCDTemplate is the precomputed expected minute envelope, shared across
// windows within the same UTC minute (spec.md §4.9 step 1-2).
type BCDTemplate struct {
	sampleRate  float64
	envelope    []float64
}

// NewBCDTemplate builds the expected 100 Hz BCD envelope template for one
// minute at sampleRate. The actual WWV/WWVH time code bit pattern is
// identical between stations (spec.md GLOSSARY), so only a generic
// unmodulated 100 Hz carrier envelope is needed for correlation timing;
// the template is windowed the same way a tone template is.
func NewBCDTemplate(sampleRate float64, durationS float64) *BCDTemplate {
	n := int(durationS * sampleRate)
	env := make([]float64, n)
	window := dsp.Tukey(n, 0.1)
	for i := range env {
		phase := 2 * math.Pi * bcdFreqHz * float64(i) / sampleRate
		env[i] = math.Abs(math.Sin(phase)) * window[i]
	}
	return &BCDTemplate{sampleRate: sampleRate, envelope: env}
}

func (t *BCDTemplate) autocorrAt(lagSamples int) float64 {
	n := len(t.envelope)
	var sum float64
	for i := 0; i < n; i++ {
		j := i + lagSamples
		if j < 0 || j >= n {
			continue
		}
		sum += t.envelope[i] * t.envelope[j]
	}
	return sum
}

func (t *BCDTemplate) correlateAt(observed []float64, lagSamples int) float64 {
	n := len(t.envelope)
	var sum float64
	for i := 0; i < n; i++ {
		j := i + lagSamples
		if j < 0 || j >= len(observed) {
			continue
		}
		sum += t.envelope[i] * observed[j]
	}
	return sum
}

// envelope AM-demodulates and lowpasses minuteIQ per spec.md §4.9 step 1.
func envelope(minuteIQ []complex64, sampleRate float64) []float64 {
	mag := make([]complex64, len(minuteIQ))
	for i, s := range minuteIQ {
		m := math.Hypot(float64(real(s)), float64(imag(s)))
		mag[i] = complex(float32(m), 0)
	}
	kernel := dsp.LowpassKernel(150/sampleRate, 31, dsp.Hamming(31))
	filtered := dsp.FIRComplex(mag, kernel)

	var mean float64
	out := make([]float64, len(filtered))
	for i, s := range filtered {
		out[i] = float64(real(s))
		mean += out[i]
	}
	mean /= float64(len(out))
	for i := range out {
		out[i] -= mean
	}
	return out
}

// AnalyzeBCDWindow runs spec.md §4.9 steps 2-4 over one window of
// minuteIQ starting at windowStartSec within the minute, windowLenS
// seconds long.
func AnalyzeBCDWindow(minuteIQ []complex64, sampleRate float64, windowStartSec, windowLenS int, tmpl *BCDTemplate, qualityThreshold float64) BCDResult {
	startIdx := int(float64(windowStartSec) * sampleRate)
	endIdx := startIdx + int(float64(windowLenS)*sampleRate)
	if endIdx > len(minuteIQ) {
		endIdx = len(minuteIQ)
	}
	if startIdx >= endIdx {
		return BCDResult{Dropped: true}
	}

	obs := envelope(minuteIQ[startIdx:endIdx], sampleRate)

	maxLagSamples := int(maxPeakSepMs / 1000 * sampleRate)
	corr := make([]float64, 2*maxLagSamples+1)
	for lag := -maxLagSamples; lag <= maxLagSamples; lag++ {
		corr[lag+maxLagSamples] = tmpl.correlateAt(obs, lag)
	}

	peak1Idx := argmax(corr)
	peak1Lag := peak1Idx - maxLagSamples
	peak1Val := corr[peak1Idx]

	median := medianAbs(corr)
	quality := 0.0
	if median > 0 {
		quality = math.Abs(peak1Val) / median
	}
	if quality < qualityThreshold {
		return BCDResult{Quality: quality, Dropped: true}
	}

	minSepSamples := int(minPeakSepMs / 1000 * sampleRate)
	peak2Idx := secondPeak(corr, peak1Idx, minSepSamples, maxLagSamples)

	if peak2Idx < 0 {
		// Single peak: amplitude goes to whichever station geo-ToA
		// classification assigns; callers needing that must invoke
		// ClassifySinglePeak separately with a receiver location, since
		// this function has no station-geometry context.
		amp := peak1Val / tmpl.autocorrAt(0)
		lagMs := float64(peak1Lag) / sampleRate * 1000
		return BCDResult{WWVAmplitude: amp, Quality: quality, SinglePeak: true, SinglePeakLagMs: lagMs}
	}

	peak2Lag := peak2Idx - maxLagSamples
	peak2Val := corr[peak2Idx]

	// The earlier (smaller-lag) peak is taken as WWV and the later as WWVH,
	// consistent with WWV's shorter average path for a CONUS receiver. The
	// geographic ToA model is applied only to single peaks, so this
	// assignment is not revisited downstream.
	tauWWVSamples, tauWWVHSamples := peak1Lag, peak2Lag
	cWWV, cWWVH := peak1Val, peak2Val
	if tauWWVSamples > tauWWVHSamples {
		tauWWVSamples, tauWWVHSamples = tauWWVHSamples, tauWWVSamples
		cWWV, cWWVH = cWWVH, cWWV
	}

	deltaTauSamples := tauWWVHSamples - tauWWVSamples
	ampWWV, ampWWVH := solveJointLeastSquares(tmpl, deltaTauSamples, cWWV, cWWVH)

	return BCDResult{
		WWVAmplitude:        ampWWV,
		WWVHAmplitude:       ampWWVH,
		DifferentialDelayMs: float64(deltaTauSamples) / sampleRate * 1000,
		Quality:             quality,
	}
}

// solveJointLeastSquares solves the 2x2 system of spec.md §4.9 step 4:
//
//	[ R(0)   R(Δτ) ] [A_WWV ]   [ C(τ_WWV)  ]
//	[ R(Δτ)  R(0)  ] [A_WWVH] = [ C(τ_WWVH) ]
func solveJointLeastSquares(tmpl *BCDTemplate, deltaTauSamples int, cWWV, cWWVH float64) (ampWWV, ampWWVH float64) {
	r0 := tmpl.autocorrAt(0)
	rDelta := tmpl.autocorrAt(deltaTauSamples)

	det := r0*r0 - rDelta*rDelta
	if det == 0 {
		return 0, 0
	}
	ampWWV = (r0*cWWV - rDelta*cWWVH) / det
	ampWWVH = (r0*cWWVH - rDelta*cWWV) / det
	return ampWWV, ampWWVH
}

func argmax(xs []float64) int {
	best := 0
	for i, v := range xs {
		if math.Abs(v) > math.Abs(xs[best]) {
			best = i
		}
	}
	return best
}

func secondPeak(corr []float64, excludeIdx, minSep, maxSep int) int {
	best := -1
	for i, v := range corr {
		if i >= excludeIdx-minSep && i <= excludeIdx+minSep {
			continue
		}
		if i < excludeIdx-maxSep || i > excludeIdx+maxSep {
			continue
		}
		if best < 0 || math.Abs(v) > math.Abs(corr[best]) {
			best = i
		}
	}
	if best < 0 {
		return -1
	}
	// Require the second peak to be a meaningful fraction of the first to
	// count as a genuine dual-peak rather than correlation sidelobe noise.
	if math.Abs(corr[best]) < 0.15*math.Abs(corr[excludeIdx]) {
		return -1
	}
	return best
}

func medianAbs(xs []float64) float64 {
	abs := make([]float64, len(xs))
	for i, v := range xs {
		abs[i] = math.Abs(v)
	}
	for i := 1; i < len(abs); i++ {
		for j := i; j > 0 && abs[j-1] > abs[j]; j-- {
			abs[j-1], abs[j] = abs[j], abs[j-1]
		}
	}
	if len(abs) == 0 {
		return 0
	}
	return abs[len(abs)/2]
}

// Package dsp holds the shared signal-processing primitives the
// decimator, timesnap detector, and discrimination analyzers all need:
// window functions, FIR filter design, a decimating low-pass cascade, and
// a Goertzel-based single-frequency power estimator.
//
// The window-function and FIR-design formulas are grounded on
// src/dsp.go's window()/gen_lowpass() from the direwolf reference
// (doismellburning-samoyed), translated from its C-via-cgo style into
// idiomatic Go rather than carried over verbatim.
package dsp

import "math"

// Hamming returns the size-point Hamming window.
func Hamming(size int) []float64 {
	w := make([]float64, size)
	for j := 0; j < size; j++ {
		w[j] = 0.53836 - 0.46164*math.Cos((float64(j)*2*math.Pi)/float64(size-1))
	}
	return w
}

// Tukey returns the size-point Tukey (tapered cosine) window with taper
// fraction alpha in [0,1]. alpha=0 is rectangular, alpha=1 is Hann. Used
// to shape the matched-filter tone templates (spec.md §4.3/§4.8) so
// correlation sidelobes from the abrupt on/off of a 0.8s tone burst don't
// leak into adjacent candidate offsets.
func Tukey(size int, alpha float64) []float64 {
	w := make([]float64, size)
	if size == 1 {
		w[0] = 1
		return w
	}
	edge := alpha * float64(size-1) / 2
	for n := 0; n < size; n++ {
		x := float64(n)
		switch {
		case x < edge:
			w[n] = 0.5 * (1 + math.Cos(math.Pi*(x/edge-1)))
		case x > float64(size-1)-edge:
			w[n] = 0.5 * (1 + math.Cos(math.Pi*((x-float64(size-1)+edge)/edge)))
		default:
			w[n] = 1
		}
	}
	return w
}

// ApplyWindow multiplies samples by window in place, returning samples.
func ApplyWindow(samples []float64, window []float64) []float64 {
	n := len(samples)
	if len(window) < n {
		n = len(window)
	}
	for i := 0; i < n; i++ {
		samples[i] *= window[i]
	}
	return samples
}

package dsp

import "math"

// LowpassKernel returns a windowed-sinc FIR low-pass kernel of the given
// size with cutoff fc expressed as a fraction of the sample rate (0, 0.5).
// Grounded on gen_lowpass() from the direwolf reference, reworked into a
// pure function over float64 slices instead of a fixed C array output
// parameter.
func LowpassKernel(fc float64, size int, window []float64) []float64 {
	k := make([]float64, size)
	center := 0.5 * float64(size-1)
	for j := 0; j < size; j++ {
		x := float64(j) - center
		var sinc float64
		if x == 0 {
			sinc = 2 * fc
		} else {
			sinc = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
		}
		k[j] = sinc * window[j]
	}

	// Normalize to unity DC gain so decimation doesn't bias signal power.
	var sum float64
	for _, v := range k {
		sum += v
	}
	if sum != 0 {
		for i := range k {
			k[i] /= sum
		}
	}
	return k
}

// FIRComplex convolves a complex64 signal with a real FIR kernel,
// returning a slice the same length as in (same-length/"same" mode,
// zero-padded at the edges) so callers can decimate by simple striding
// afterward without an explicit delay correction each time.
func FIRComplex(in []complex64, kernel []float64) []complex64 {
	n := len(in)
	k := len(kernel)
	out := make([]complex64, n)
	half := k / 2
	for i := 0; i < n; i++ {
		var accR, accI float64
		for j := 0; j < k; j++ {
			src := i + j - half
			if src < 0 || src >= n {
				continue
			}
			s := in[src]
			accR += float64(real(s)) * kernel[j]
			accI += float64(imag(s)) * kernel[j]
		}
		out[i] = complex(float32(accR), float32(accI))
	}
	return out
}

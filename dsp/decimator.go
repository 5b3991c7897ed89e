package dsp

// Decimator reduces a complex I/Q stream from an input sample rate to
// TargetRate (10 Hz, spec.md §4.7) through successive integer-factor
// stages, each an anti-alias low-pass FIR followed by a stride-decimate,
// so no single stage needs an excessively long filter for a large overall
// ratio.
type Decimator struct {
	InputRate  uint32
	TargetRate uint32

	stages []stage
}

type stage struct {
	factor int
	kernel []float64
}

// NewDecimator builds the stage cascade for inputRate -> targetRate.
// inputRate must be an integer multiple of targetRate.
func NewDecimator(inputRate, targetRate uint32) *Decimator {
	d := &Decimator{InputRate: inputRate, TargetRate: targetRate}
	remaining := int(inputRate / targetRate)
	rate := int(inputRate)

	for remaining > 1 {
		factor := nextFactor(remaining)
		remaining /= factor

		// Cutoff just inside the new Nyquist, with margin for the
		// transition band; filter length scales with the decimation
		// factor to keep stopband attenuation roughly constant per stage.
		fc := 0.5 / float64(factor) * 0.9
		size := 8*factor + 1
		if size%2 == 0 {
			size++
		}
		window := Hamming(size)
		kernel := LowpassKernel(fc, size, window)

		d.stages = append(d.stages, stage{factor: factor, kernel: kernel})
		rate /= factor
	}
	return d
}

// nextFactor picks the largest factor of n not exceeding 10, so long
// cascades (e.g. 16000 -> 10 Hz, ratio 1600) split into several
// manageable stages instead of one enormous filter.
func nextFactor(n int) int {
	for f := 10; f >= 2; f-- {
		if n%f == 0 {
			return f
		}
	}
	return n
}

// Decimate runs the full cascade over in, returning roughly
// len(in)*TargetRate/InputRate complex samples.
func (d *Decimator) Decimate(in []complex64) []complex64 {
	cur := in
	for _, s := range d.stages {
		filtered := FIRComplex(cur, s.kernel)
		cur = strideDecimate(filtered, s.factor)
	}
	return cur
}

func strideDecimate(in []complex64, factor int) []complex64 {
	out := make([]complex64, 0, len(in)/factor+1)
	for i := 0; i < len(in); i += factor {
		out = append(out, in[i])
	}
	return out
}

package dsp

import "math"

// GoertzelPowerDb returns the power, in dB relative to full-scale-squared,
// of the single frequency targetHz within a complex64 block sampled at
// sampleRate. Used for tone metrics (spec.md §4.8's 1000/1200/440 Hz
// powers) where only one or two frequencies of interest ever need
// checking and a full FFT would waste most of its output.
func GoertzelPowerDb(samples []complex64, sampleRate float64, targetHz float64) float64 {
	p := GoertzelPower(samples, sampleRate, targetHz)
	if p <= 0 {
		return -300 // effectively -inf, clamped for a well-defined dB value
	}
	return 10 * math.Log10(p)
}

// GoertzelPower returns the linear power (not dB) of targetHz in samples.
func GoertzelPower(samples []complex64, sampleRate float64, targetHz float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	w := 2 * math.Pi * targetHz / sampleRate
	cosW := math.Cos(w)
	coeff := 2 * cosW

	// Run the recurrence independently on the real and imaginary rails,
	// then sum the two powers. This does not tell +targetHz from
	// -targetHz in I/Q input: the sum is the mean of the powers at the
	// two sidebands.
	powR := goertzelRail(realPart(samples), coeff, cosW, math.Sin(w))
	powI := goertzelRail(imagPart(samples), coeff, cosW, math.Sin(w))
	return (powR + powI) / float64(n*n)
}

func goertzelRail(x []float64, coeff, cosW, sinW float64) float64 {
	var s0, s1, s2 float64
	for _, v := range x {
		s0 = v + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	real := s1 - s2*cosW
	imag := s2 * sinW
	return real*real + imag*imag
}

func realPart(samples []complex64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(real(s))
	}
	return out
}

func imagPart(samples []complex64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(imag(s))
	}
	return out
}

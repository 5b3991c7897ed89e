package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTukeyEdgesTaperToZero(t *testing.T) {
	w := Tukey(100, 0.5)
	assert.InDelta(t, 0, w[0], 1e-9)
	assert.InDelta(t, 1, w[50], 1e-6)
}

func TestGoertzelFindsTonePower(t *testing.T) {
	const sr = 1000.0
	const freq = 100.0
	n := 1000
	samples := make([]complex64, n)
	for i := range samples {
		phase := 2 * math.Pi * freq * float64(i) / sr
		samples[i] = complex(float32(math.Cos(phase)), float32(math.Sin(phase)))
	}

	onTarget := GoertzelPowerDb(samples, sr, freq)
	offTarget := GoertzelPowerDb(samples, sr, freq+50)
	assert.Greater(t, onTarget, offTarget+20, "power at the injected tone's frequency should dominate")
}

func TestDecimatorReducesRate(t *testing.T) {
	d := NewDecimator(16000, 10)
	in := make([]complex64, 16000)
	for i := range in {
		in[i] = complex(1, 0)
	}
	out := d.Decimate(in)
	assert.InDelta(t, 10, len(out), 2)
}

func TestToneTemplateCorrelatesBestAtInjectedOffset(t *testing.T) {
	const sr = 100.0
	tmpl := NewToneTemplate(10, 0.5, sr)
	buf := make([]float64, 500)
	injectAt := 200
	for i := 0; i < tmpl.Len(); i++ {
		buf[injectAt+i] = math.Sin(2 * math.Pi * 10 * float64(i) / sr)
	}

	offset, mag, snr := tmpl.Scan(buf)
	assert.InDelta(t, injectAt, offset, 2)
	assert.Greater(t, mag, 0.0)
	assert.Greater(t, snr, 1.0)
}

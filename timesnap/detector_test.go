package timesnap

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijahauan/signal-recorder-sub001/channel"
	"github.com/mijahauan/signal-recorder-sub001/ntpcache"
)

func TestDetectorFindsWWVTone(t *testing.T) {
	const sr = 2000.0
	d := NewDetector(uint32(sr), 4, 50, 600, ntpcache.New(), zerolog.Nop())

	var got channel.TimeSnap
	var gotCount int
	d.OnAnchor = func(ts channel.TimeSnap) { got = ts; gotCount++ }

	// The detector correlates the signal's envelope, so the tone is
	// amplitude-modulated onto a carrier; the buffer is long enough that
	// most scan offsets miss the tone, keeping the median correlation low.
	total := int(sr) * 4
	buf := make([]complex64, total)
	toneStart := total / 2
	toneLen := int(0.8 * sr)
	for i := 0; i < toneLen && toneStart+i < total; i++ {
		phase := 2 * math.Pi * 1000 * float64(i) / sr
		buf[toneStart+i] = complex(float32(1+math.Cos(phase)), 0)
	}

	d.Feed(5000, buf)

	require.Equal(t, 1, gotCount)
	assert.Equal(t, "WWV", got.Station)
	assert.Greater(t, got.Confidence, 0.5)
}

func TestDetectorFallsBackToWallClockWhenNoTone(t *testing.T) {
	const sr = 2000.0
	d := NewDetector(uint32(sr), 1, 50, 600, ntpcache.New(), zerolog.Nop())

	var got channel.TimeSnap
	d.OnAnchor = func(ts channel.TimeSnap) { got = ts }

	silence := make([]complex64, int(sr)*1)
	d.Feed(1000, silence)

	assert.Equal(t, "WALL", got.Station)
	assert.Less(t, got.Confidence, 0.5)
}

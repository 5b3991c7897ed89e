package channel

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijahauan/signal-recorder-sub001/archive"
	"github.com/mijahauan/signal-recorder-sub001/ntpcache"
)

const testSampleRate = 4 // tiny rate so a minute is 240 samples, fast to test
const testSamplesPerPacket = 4

func newTestWriter() *Writer {
	return NewWriter("WWV10", 10_000_000, testSampleRate, testSamplesPerPacket, ntpcache.New(), zerolog.Nop())
}

func samples(n int) []complex64 {
	out := make([]complex64, n)
	for i := range out {
		out[i] = complex(float32(i), 0)
	}
	return out
}

func TestWriterEmitsExactMinuteLength(t *testing.T) {
	w := newTestWriter()
	var got *archive.Record
	w.OnRecord = func(r *archive.Record, _ time.Time) { got = r }

	anchorUTC := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	w.SetAnchor(TimeSnap{RTP: 1000, UTC: anchorUTC, Source: "wwv", Confidence: 0.9, Station: "WWV"})

	spm := testSampleRate * 60
	w.Feed(Chunk{TS: 1000, Samples: samples(spm)})

	require.NotNil(t, got)
	assert.Len(t, got.IQ, spm)
	assert.Equal(t, uint32(1000), got.RTPTimestamp)
	assert.Equal(t, 100.0, got.CompletenessPct)
}

func TestWriterSpansMinuteBoundary(t *testing.T) {
	w := newTestWriter()
	var recs []*archive.Record
	w.OnRecord = func(r *archive.Record, _ time.Time) { recs = append(recs, r) }

	anchorUTC := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	w.SetAnchor(TimeSnap{RTP: 0, UTC: anchorUTC, Source: "wwv", Confidence: 0.9, Station: "WWV"})

	spm := testSampleRate * 60
	// Feed a run spanning exactly two minutes in one chunk.
	w.Feed(Chunk{TS: 0, Samples: samples(2 * spm)})

	require.Len(t, recs, 2)
	assert.Equal(t, uint32(0), recs[0].RTPTimestamp)
	assert.Equal(t, uint32(spm), recs[1].RTPTimestamp)
	assert.Len(t, recs[0].IQ, spm)
	assert.Len(t, recs[1].IQ, spm)
}

func TestWriterTracksGapsAndCompleteness(t *testing.T) {
	w := newTestWriter()
	var got *archive.Record
	w.OnRecord = func(r *archive.Record, _ time.Time) { got = r }

	anchorUTC := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	w.SetAnchor(TimeSnap{RTP: 0, UTC: anchorUTC, Source: "ntp_fallback"})

	spm := testSampleRate * 60
	w.Feed(Chunk{TS: 0, Samples: samples(10)})
	w.OnDiscontinuity(Discontinuity{RTPBefore: 9, RTPAfter: 14, SamplesFilled: 4, Reason: ReasonSeqGap})
	w.Feed(Chunk{TS: 10, Samples: samples(spm - 10)})

	require.NotNil(t, got)
	assert.EqualValues(t, 1, got.GapsCount)
	assert.EqualValues(t, 4, got.GapsFilled)
	assert.InDelta(t, 100.0*(1-4.0/float64(spm)), got.CompletenessPct, 1e-9)
}

func TestWriterFlushPartialZeroFillsRemainder(t *testing.T) {
	w := newTestWriter()
	var got *archive.Record
	w.OnRecord = func(r *archive.Record, _ time.Time) { got = r }

	anchorUTC := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	w.SetAnchor(TimeSnap{RTP: 0, UTC: anchorUTC, Source: "wwv"})

	spm := testSampleRate * 60
	w.Feed(Chunk{TS: 0, Samples: samples(spm / 2)})
	w.FlushPartial()

	require.NotNil(t, got)
	assert.Len(t, got.IQ, spm)
	assert.EqualValues(t, spm/2, got.GapsFilled)
}

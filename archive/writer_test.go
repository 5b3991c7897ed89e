package archive

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(sr uint32) *Record {
	n := int(sr) * 60
	iq := make([]complex64, n)
	for i := range iq {
		iq[i] = complex64(complex(float32(i%100), float32(-(i % 50))))
	}
	return &Record{
		IQ:                 iq,
		RTPTimestamp:       123456,
		RTPSSRC:            5000000,
		SampleRate:         sr,
		FrequencyHz:        10_000_000,
		ChannelName:        "WWV10",
		UnixTimestamp:      1700000000.5,
		TimeSnapRTP:         100,
		TimeSnapUTC:         1700000000.0,
		TimeSnapSource:      "wwv",
		TimeSnapConfidence:  0.95,
		TimeSnapStation:     "WWV",
		TonePower1000HzDb:   -10.5,
		TonePower1200HzDb:   ToneSentinel,
		NTPWallClockTime:    1700000000.6,
		NTPOffsetMs:         3.2,
		PacketsReceived:     100,
		PacketsExpected:     100,
		CompletenessPct:     100.0,
		RecorderVersion:     "test",
		CreatedTimestamp:    1700000001.0,
		Gaps: Gaps{
			RTPTimestamps: []uint32{1, 2},
			SampleIndices: []uint32{10, 20},
			SamplesFilled: []uint32{5, 5},
			PacketsLost:   []uint32{1, 1},
		},
		GapsCount: 2,
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	rec := sampleRecord(200)
	data, err := Marshal(rec)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, rec.IQ, got.IQ)
	assert.Equal(t, rec.RTPTimestamp, got.RTPTimestamp)
	assert.Equal(t, rec.TimeSnapSource, got.TimeSnapSource)
	assert.Equal(t, rec.Gaps, got.Gaps)
	assert.Equal(t, rec.CompletenessPct, got.CompletenessPct)
}

func TestRecordValidateSampleCount(t *testing.T) {
	rec := sampleRecord(200)
	rec.PacketsReceived = 12000 / 160 // samples_per_packet=160
	rec.GapsFilled = 0
	err := rec.Validate(160)
	assert.NoError(t, err)

	rec.IQ = rec.IQ[:len(rec.IQ)-1]
	err = rec.Validate(160)
	assert.Error(t, err)
}

func TestWriteAtomicAndFileName(t *testing.T) {
	dir := t.TempDir()
	rec := sampleRecord(200)
	boundary := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	path, err := WriteAtomic(dir, rec, boundary)
	require.NoError(t, err)
	assert.Contains(t, path, "20260305T120000Z_10000000_iq.npz")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, rec.RTPSSRC, got.RTPSSRC)
}

package channel

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijahauan/signal-recorder-sub001/rtpdemux"
)

const samplesPerPacket = 160

func payloadOf(n int) []byte {
	return make([]byte, n*4)
}

func TestResequencerInOrderNoGap(t *testing.T) {
	var chunks []Chunk
	var discs []Discontinuity
	r := NewResequencer(samplesPerPacket, 16000, zerolog.Nop())
	r.OnChunk = func(c Chunk) { chunks = append(chunks, c) }
	r.OnDiscontinuity = func(d Discontinuity) { discs = append(discs, d) }

	r.Feed(rtpdemux.Packet{Seq: 10, TS: 1000, Payload: payloadOf(samplesPerPacket)})
	r.Feed(rtpdemux.Packet{Seq: 11, TS: 1160, Payload: payloadOf(samplesPerPacket)})
	r.Feed(rtpdemux.Packet{Seq: 12, TS: 1320, Payload: payloadOf(samplesPerPacket)})

	assert.Len(t, discs, 0)
	require.Len(t, chunks, 3)
}

func TestResequencerSingleDrop(t *testing.T) {
	var chunks []Chunk
	var discs []Discontinuity
	r := NewResequencer(samplesPerPacket, 16000, zerolog.Nop())
	r.OnChunk = func(c Chunk) { chunks = append(chunks, c) }
	r.OnDiscontinuity = func(d Discontinuity) { discs = append(discs, d) }

	r.Feed(rtpdemux.Packet{Seq: 10, TS: 1000, Payload: payloadOf(samplesPerPacket)})
	// seq 11 is dropped (never arrives)
	r.Feed(rtpdemux.Packet{Seq: 12, TS: 1320, Payload: payloadOf(samplesPerPacket)})
	// Force resolution for the end-of-stream case too.
	r.Flush()

	require.Len(t, discs, 1)
	assert.Equal(t, ReasonSeqGap, discs[0].Reason)
	assert.Equal(t, uint32(samplesPerPacket), discs[0].SamplesFilled)
}

func TestResequencerSeqWrap(t *testing.T) {
	var discs []Discontinuity
	r := NewResequencer(samplesPerPacket, 16000, zerolog.Nop())
	r.OnDiscontinuity = func(d Discontinuity) { discs = append(discs, d) }

	r.Feed(rtpdemux.Packet{Seq: 65535, TS: 1000, Payload: payloadOf(samplesPerPacket)})
	r.Feed(rtpdemux.Packet{Seq: 0, TS: 1160, Payload: payloadOf(samplesPerPacket)})

	assert.Len(t, discs, 0, "seq wrap 65535->0 with no gap must not be flagged")
}

func TestResequencerRTPWrapNoGap(t *testing.T) {
	var chunks []Chunk
	var discs []Discontinuity
	r := NewResequencer(samplesPerPacket, 16000, zerolog.Nop())
	r.OnChunk = func(c Chunk) { chunks = append(chunks, c) }
	r.OnDiscontinuity = func(d Discontinuity) { discs = append(discs, d) }

	// lastTS near the uint32 max, next packet wraps around to a small value.
	lastTS := uint32(0xFFFFFFFF - samplesPerPacket + 1)
	r.Feed(rtpdemux.Packet{Seq: 100, TS: lastTS, Payload: payloadOf(samplesPerPacket)})
	r.Feed(rtpdemux.Packet{Seq: 101, TS: 0, Payload: payloadOf(samplesPerPacket)}) // wraps past 2^32

	assert.Len(t, discs, 0, "RTP wrap with no seq gap must not produce an artificial fill")
	require.Len(t, chunks, 2)
}

func TestResequencerStreamRestart(t *testing.T) {
	var discs []Discontinuity
	var restarted bool
	r := NewResequencer(samplesPerPacket, 16000, zerolog.Nop())
	r.OnDiscontinuity = func(d Discontinuity) { discs = append(discs, d) }
	r.OnStreamRestart = func() { restarted = true }

	r.Feed(rtpdemux.Packet{Seq: 10, TS: 1000, Payload: payloadOf(samplesPerPacket)})
	// Huge RTP jump far beyond tolerance, adjacent seq so it resolves immediately.
	r.Feed(rtpdemux.Packet{Seq: 11, TS: 1000 + 50*16000, Payload: payloadOf(samplesPerPacket)})

	require.Len(t, discs, 1)
	assert.Equal(t, ReasonStreamRestart, discs[0].Reason)
	assert.True(t, restarted)
}

func TestResequencerBackwardJumpIgnored(t *testing.T) {
	// A 1-sample backward RTP jump accompanying a seq gap must never be
	// interpreted as a ~4GiB forward jump (spec.md §8 wrap-safety
	// property, §9#4): naive unsigned arithmetic on ts-1 wraps to near
	// 2^32 and would misfire a stream_restart.
	var discs []Discontinuity
	var restarted bool
	r := NewResequencer(samplesPerPacket, 16000, zerolog.Nop())
	r.OnDiscontinuity = func(d Discontinuity) { discs = append(discs, d) }
	r.OnStreamRestart = func() { restarted = true }

	r.Feed(rtpdemux.Packet{Seq: 10, TS: 1000, Payload: payloadOf(samplesPerPacket)})
	r.Feed(rtpdemux.Packet{Seq: 12, TS: 999, Payload: payloadOf(samplesPerPacket)}) // ahead by 1, ts went backward by 1: held
	r.Feed(rtpdemux.Packet{Seq: 13, TS: 1200, Payload: payloadOf(samplesPerPacket)})

	assert.False(t, restarted, "1-sample backward RTP jump must not trigger stream restart")
	assert.Len(t, discs, 0)
}

package channel

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mijahauan/signal-recorder-sub001/rtpdemux"
)

// TestResequencerWrapSafeInOrder exercises the signed-delta sequence
// arithmetic (spec.md §9#3/#4) across uint16 seq and uint32 RTP timestamp
// wraparound: an in-order run starting anywhere, including right at the
// boundary, must always be accepted as in-order with zero discontinuities.
func TestResequencerWrapSafeInOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		startSeq := uint16(rapid.Uint16().Draw(t, "startSeq"))
		startTS := uint32(rapid.Uint32().Draw(t, "startTS"))
		n := rapid.IntRange(1, 20).Draw(t, "n")

		var chunks []Chunk
		var discs []Discontinuity
		r := NewResequencer(samplesPerPacket, 16000, zerolog.Nop())
		r.OnChunk = func(c Chunk) { chunks = append(chunks, c) }
		r.OnDiscontinuity = func(d Discontinuity) { discs = append(discs, d) }

		seq := startSeq
		ts := startTS
		for i := 0; i < n; i++ {
			r.Feed(rtpdemux.Packet{Seq: seq, TS: ts, Payload: payloadOf(samplesPerPacket)})
			seq++
			ts += samplesPerPacket
		}

		require.Empty(t, discs)
		require.Len(t, chunks, n)
	})
}

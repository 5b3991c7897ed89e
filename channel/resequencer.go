// Package channel implements the per-channel actor: a resequencer feeding
// a minute writer, run as a single-goroutine pipeline so that within one
// channel all processing is strictly serialized (spec.md §5).
package channel

import (
	"github.com/rs/zerolog"

	"github.com/mijahauan/signal-recorder-sub001/rtpdemux"
)

// DiscontinuityReason mirrors spec.md §3's Discontinuity.reason enum.
type DiscontinuityReason string

const (
	ReasonSeqGap             DiscontinuityReason = "seq_gap"
	ReasonStreamRestart      DiscontinuityReason = "stream_restart"
	ReasonTimeSnapCorrection DiscontinuityReason = "time_snap_correction"
)

// Discontinuity is the immutable record created whenever the resequencer
// fills (spec.md §3).
type Discontinuity struct {
	RTPBefore     uint32
	RTPAfter      uint32
	SampleIndex   uint32
	SamplesFilled uint32
	Reason        DiscontinuityReason
}

// Chunk is a run of in-order complex samples starting at RTP timestamp TS.
// Fill is true when Samples is a zero-fill emitted to close a gap rather
// than real payload, so a writer can count received vs. filled samples
// separately (spec.md §6.1 packets_received/gaps_filled).
type Chunk struct {
	TS      uint32
	Samples []complex64
	Fill    bool
}

// maxPacketGap is a cap on the missing-packet count of a zero-filled
// seq_gap. It lies above the 16-bit sequence range, so the check against
// it never rejects a gap; what classifies a jump as a fill or a stream
// restart is spec.md §4.2's tolerance check on the RTP delta.
const maxPacketGap = 1 << 20

// Resequencer reorders packets for one SSRC, detects sequence gaps, and
// computes zero-fill sizes from RTP timestamps (spec.md §4.2).
//
// The signed-delta, wrap-aware sequence tracking is grounded on
// media/rtp_sequencer.go's RTPExtendedSequenceNumber from the teacher,
// generalized here to drive gap-fill sizing instead of RTCP loss stats.
// One packet of out-of-order tolerance is kept (a single late arrival is
// buffered and re-ordered rather than treated as a gap); spec.md §9's
// "avoid timers on the write path" guidance rules out a wall-clock
// reorder window, so resolution happens on receipt of the very next
// packet instead of after a timeout.
type Resequencer struct {
	samplesPerPacket int
	sampleRate       uint32

	initialized bool
	lastSeq     uint16
	lastTS      uint32

	// held is a single packet that arrived ahead of the expected sequence,
	// kept in case the missing one arrives on the next call.
	held     *rtpdemux.Packet
	heldSeen bool

	log zerolog.Logger

	OnChunk         func(Chunk)
	OnDiscontinuity func(Discontinuity)
	OnStreamRestart func()
}

func NewResequencer(samplesPerPacket int, sampleRate uint32, log zerolog.Logger) *Resequencer {
	return &Resequencer{
		samplesPerPacket: samplesPerPacket,
		sampleRate:       sampleRate,
		log:              log,
	}
}

// Feed processes one incoming RTP packet. It is the only entry point and
// must be called from a single goroutine per channel.
func (r *Resequencer) Feed(pkt rtpdemux.Packet) {
	if !r.initialized {
		r.initialized = true
		r.lastSeq = pkt.Seq
		r.lastTS = pkt.TS
		r.emitChunk(pkt)
		return
	}

	if r.heldSeen {
		r.resolveWithHeld(pkt)
		return
	}

	expected := r.lastSeq + 1
	delta := int16(pkt.Seq - expected) // wrap-safe: unsigned wraparound reinterpreted as signed

	switch {
	case delta == 0:
		r.checkInOrder(pkt)
	case delta < 0:
		// Behind what we already advanced past: late/duplicate, drop.
		if logEvt := r.log.Debug(); logEvt.Enabled() {
			logEvt.Uint16("seq", pkt.Seq).Uint16("expected", expected).Msg("dropping late/duplicate packet")
		}
	default:
		// Ahead: hold it one round in case the missing packet(s) were
		// merely reordered and arrive next.
		held := pkt
		r.held = &held
		r.heldSeen = true
	}
}

// resolveWithHeld is called when a packet was held pending possible
// reordering and another packet has now arrived.
func (r *Resequencer) resolveWithHeld(pkt rtpdemux.Packet) {
	held := *r.held
	r.held = nil
	r.heldSeen = false

	if pkt.Seq == r.lastSeq+1 {
		// The missing packet arrived; process it, then the held one.
		r.accept(pkt)
		r.Feed(held)
		return
	}

	// Reordering did not resolve the gap; classify it against held.
	r.resolveGap(held)
	// Now re-evaluate pkt against the new lastSeq/lastTS.
	r.Feed(pkt)
}

func (r *Resequencer) accept(pkt rtpdemux.Packet) {
	r.emitChunk(pkt)
	r.lastSeq = pkt.Seq
	r.lastTS = pkt.TS
}

// checkInOrder handles a packet whose sequence number is exactly the one
// expected. A contiguous sequence normally means a contiguous RTP clock
// too, but an upstream stream restart can keep sequence numbers running
// while jumping the RTP origin (spec.md §8 scenario 4 describes exactly
// this: a large |Δrtp| with no accompanying seq gap). Detect that case
// here rather than only inside the seq-gap path.
func (r *Resequencer) checkInOrder(pkt rtpdemux.Packet) {
	expectedRTPDelta := int64(r.samplesPerPacket)
	observedRTPDelta := int64(int32(pkt.TS - r.lastTS)) // signed-32 per spec.md §9#4
	epsilon := int64(r.samplesPerPacket)

	diff := observedRTPDelta - expectedRTPDelta
	if diff < 0 {
		diff = -diff
	}
	if diff <= epsilon {
		r.accept(pkt)
		return
	}

	if observedRTPDelta > expectedRTPDelta {
		// Contiguous sequence but the RTP clock jumped far beyond
		// tolerance: the upstream SSRC origin restarted.
		if r.OnStreamRestart != nil {
			r.OnStreamRestart()
		}
		if r.OnDiscontinuity != nil {
			r.OnDiscontinuity(Discontinuity{
				RTPBefore: r.lastTS,
				RTPAfter:  pkt.TS,
				Reason:    ReasonStreamRestart,
			})
		}
	}
	// Otherwise the RTP clock moved backward or stalled despite a
	// contiguous sequence number: jitter/reordering noise, not a gap to
	// fill. Accept as-is either way; there are no missing samples to
	// account for since no sequence numbers were skipped.
	r.accept(pkt)
}

// resolveGap classifies a forward jump as a tolerable seq_gap (zero-fill)
// or a stream_restart per spec.md §4.2 step 3.
func (r *Resequencer) resolveGap(pkt rtpdemux.Packet) {
	expected := r.lastSeq + 1
	gapPackets := pkt.Seq - expected // missing packet count, wrap-safe
	expectedRTPDelta := int64(gapPackets+1) * int64(r.samplesPerPacket)

	observedRTPDelta := int64(int32(pkt.TS - r.lastTS)) // signed-32 per spec.md §4.2/§9#4
	epsilon := int64(r.samplesPerPacket)                // one-packet tolerance

	diff := observedRTPDelta - expectedRTPDelta
	if diff < 0 {
		diff = -diff
	}

	switch {
	case observedRTPDelta >= 0 && diff <= epsilon && uint32(gapPackets) < maxPacketGap:
		r.fillGap(pkt, int64(gapPackets)*int64(r.samplesPerPacket))
	case observedRTPDelta > epsilon:
		// Large positive jump beyond tolerance: stream restart.
		if r.OnStreamRestart != nil {
			r.OnStreamRestart()
		}
		if r.OnDiscontinuity != nil {
			r.OnDiscontinuity(Discontinuity{
				RTPBefore: r.lastTS,
				RTPAfter:  pkt.TS,
				Reason:    ReasonStreamRestart,
			})
		}
		r.lastSeq = pkt.Seq
		r.lastTS = pkt.TS
		r.emitChunk(pkt)
	default:
		// Negative jump beyond tolerance: ignore (duplicate/old noise).
	}
}

func (r *Resequencer) fillGap(pkt rtpdemux.Packet, fillSamples int64) {
	if fillSamples > 0 {
		zeros := make([]complex64, fillSamples)
		fillStartTS := r.lastTS + uint32(r.samplesPerPacket)
		if r.OnChunk != nil {
			r.OnChunk(Chunk{TS: fillStartTS, Samples: zeros, Fill: true})
		}
		if r.OnDiscontinuity != nil {
			r.OnDiscontinuity(Discontinuity{
				RTPBefore:     r.lastTS,
				RTPAfter:      pkt.TS,
				SamplesFilled: uint32(fillSamples),
				Reason:        ReasonSeqGap,
			})
		}
	}
	r.lastSeq = pkt.Seq
	r.lastTS = pkt.TS
	r.emitChunk(pkt)
}

func (r *Resequencer) emitChunk(pkt rtpdemux.Packet) {
	if len(pkt.Payload) == 0 {
		return
	}
	samples := rtpdemux.DecodeIQ(pkt.Payload)
	if r.OnChunk != nil {
		r.OnChunk(Chunk{TS: pkt.TS, Samples: samples})
	}
}

// Flush forces resolution of any held packet, used at shutdown so a
// trailing reordered packet does not get lost silently.
func (r *Resequencer) Flush() {
	if !r.heldSeen {
		return
	}
	held := *r.held
	r.held = nil
	r.heldSeen = false
	r.resolveGap(held)
}

package channel

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mijahauan/signal-recorder-sub001/archive"
	"github.com/mijahauan/signal-recorder-sub001/ntpcache"
)

// RecorderVersion is stamped into every archive record's metadata.
const RecorderVersion = "sub001-1.0"

// TimeSnap is the anchor a timesnap detector hands the writer: the RTP
// timestamp that corresponds to a known UTC instant (spec.md §4.3).
type TimeSnap struct {
	RTP        uint32
	UTC        time.Time
	Source     string
	Confidence float64
	Station    string
}

// Writer accumulates one channel's samples into exact SR*60 minute
// buffers and emits archive.Record values as each minute closes
// (spec.md §4.4). It owns no goroutine of its own; Feed/FlushPartial are
// called from the owning channel actor's single goroutine.
//
// Grounded on audio/wav_writer.go's accumulate-then-finalize shape from
// the teacher, generalized from a fixed-duration WAV file to a rolling
// RTP-clock-indexed minute buffer.
type Writer struct {
	channelName      string
	frequencyHz      float64
	sampleRate       uint32
	samplesPerPacket uint32
	samplesPerMinute int

	ntp *ntpcache.Cache
	log zerolog.Logger

	anchor     TimeSnap
	haveAnchor bool

	buf           []complex64
	packetsSeen   uint32
	packetsLost   uint32
	gaps          archive.Gaps
	gapsFilled    uint32
	minuteRTP     uint32 // RTP timestamp of sample 0 of the in-progress minute
	minuteActive  bool

	OnRecord func(*archive.Record, time.Time)

	// OnMinuteSamples is called with the raw finalized minute buffer right
	// before it's handed off as an archive.Record, so the timesnap
	// detector can evaluate it as a correction candidate (spec.md §4.3)
	// without the writer needing to know anything about tone detection.
	OnMinuteSamples func(rtpTS uint32, samples []complex64)
}

func NewWriter(channelName string, frequencyHz float64, sampleRate uint32, samplesPerPacket uint32, ntp *ntpcache.Cache, log zerolog.Logger) *Writer {
	spm := int(sampleRate) * 60
	return &Writer{
		channelName:      channelName,
		frequencyHz:      frequencyHz,
		sampleRate:       sampleRate,
		samplesPerPacket: samplesPerPacket,
		samplesPerMinute: spm,
		ntp:              ntp,
		log:              log,
		buf:              make([]complex64, 0, spm),
	}
}

// SetAnchor installs or replaces the RTP-to-UTC anchor. A replacement
// mid-minute (spec.md §4.3's continuous correction) does not retroactively
// relabel the samples already buffered; it only changes which minute
// boundary future samples land in.
func (w *Writer) SetAnchor(ts TimeSnap) {
	w.anchor = ts
	w.haveAnchor = true
}

// minuteIndex returns which minute-of-the-anchor rtpTS falls in, and the
// sample offset within that minute, using the wrap-safe delta spec.md
// §9#4 requires.
func (w *Writer) minuteIndex(rtpTS uint32) (minute int64, offset int) {
	delta := int64(int32(rtpTS - w.anchor.RTP))
	totalSamples := delta // one RTP tick == one I/Q sample for this payload format
	spm := int64(w.samplesPerMinute)
	minute = totalSamples / spm
	offset = int(((totalSamples % spm) + spm) % spm)
	return minute, offset
}

// minuteStartRTP returns the RTP timestamp of sample 0 of the minute that
// rtpTS belongs to.
func (w *Writer) minuteStartRTP(rtpTS uint32) uint32 {
	minute, offset := w.minuteIndex(rtpTS)
	_ = minute
	return rtpTS - uint32(offset)
}

// Feed appends one resequencer chunk's samples to the current minute
// buffer, closing and emitting minutes as their boundary is crossed. Must
// be called with chunk.TS/Samples already gap-filled and in RTP order.
func (w *Writer) Feed(chunk Chunk) {
	if !w.haveAnchor {
		// Nothing to index samples against yet; drop until the timesnap
		// detector (or an NTP fallback anchor) establishes one.
		return
	}

	ts := chunk.TS
	for len(chunk.Samples) > 0 {
		if !w.minuteActive {
			w.minuteRTP = w.minuteStartRTP(ts)
			w.buf = w.buf[:0]
			w.packetsSeen = 0
			w.packetsLost = 0
			w.gaps = archive.Gaps{}
			w.gapsFilled = 0
			w.minuteActive = true
		}

		_, offset := w.minuteIndex(ts)
		room := w.samplesPerMinute - offset
		n := len(chunk.Samples)
		if n > room {
			n = room
		}

		// offset must equal len(w.buf); a gap in the middle of a minute
		// without a corresponding Discontinuity would violate that, so
		// pad defensively to keep the sample-count invariant even if the
		// caller ever races ahead of an OnDiscontinuity callback.
		for len(w.buf) < offset {
			w.buf = append(w.buf, 0)
		}
		w.buf = append(w.buf, chunk.Samples[:n]...)
		if !chunk.Fill {
			w.packetsSeen++
		}

		if len(w.buf) >= w.samplesPerMinute {
			w.closeMinute()
		}

		chunk.Samples = chunk.Samples[n:]
		ts += uint32(n)
	}
}

// OnDiscontinuity records a resequencer-reported gap against the
// in-progress minute's provenance arrays (spec.md §6.1 gaps_*).
func (w *Writer) OnDiscontinuity(d Discontinuity) {
	if !w.minuteActive || d.SamplesFilled == 0 {
		return
	}
	_, offset := w.minuteIndex(d.RTPBefore + 1)
	lost := d.SamplesFilled / w.samplesPerPacket
	w.gaps.RTPTimestamps = append(w.gaps.RTPTimestamps, d.RTPBefore)
	w.gaps.SampleIndices = append(w.gaps.SampleIndices, uint32(offset))
	w.gaps.SamplesFilled = append(w.gaps.SamplesFilled, d.SamplesFilled)
	w.gaps.PacketsLost = append(w.gaps.PacketsLost, lost)
	w.gapsFilled += d.SamplesFilled
	w.packetsLost += lost
}

func (w *Writer) closeMinute() {
	if len(w.buf) > w.samplesPerMinute {
		w.buf = w.buf[:w.samplesPerMinute]
	}
	for len(w.buf) < w.samplesPerMinute {
		w.buf = append(w.buf, 0)
	}

	iq := make([]complex64, w.samplesPerMinute)
	copy(iq, w.buf)

	if w.OnMinuteSamples != nil {
		w.OnMinuteSamples(w.minuteRTP, iq)
	}

	snap := w.ntp.Get()
	now := time.Now()
	boundaryUTC := w.anchor.UTC.Add(time.Duration(w.minuteRTP-w.anchor.RTP) * time.Second / time.Duration(w.sampleRate))

	completeness := 100.0
	if w.samplesPerMinute > 0 {
		completeness = 100.0 * (1.0 - float64(w.gapsFilled)/float64(w.samplesPerMinute))
	}

	rec := &archive.Record{
		IQ:            iq,
		RTPTimestamp:  w.minuteRTP,
		SampleRate:    w.sampleRate,
		FrequencyHz:   w.frequencyHz,
		ChannelName:   w.channelName,
		UnixTimestamp: float64(boundaryUTC.UnixNano()) / 1e9,

		TimeSnapRTP:        w.anchor.RTP,
		TimeSnapUTC:        float64(w.anchor.UTC.UnixNano()) / 1e9,
		TimeSnapSource:     w.anchor.Source,
		TimeSnapConfidence: w.anchor.Confidence,
		TimeSnapStation:    w.anchor.Station,

		TonePower1000HzDb: archive.ToneSentinel,
		TonePower1200HzDb: archive.ToneSentinel,

		NTPWallClockTime: float64(now.UnixNano()) / 1e9,
		NTPOffsetMs:      snap.OffsetMs,

		GapsCount:       uint32(w.gaps.Count()),
		GapsFilled:      w.gapsFilled,
		PacketsReceived: w.packetsSeen,
		PacketsExpected: w.packetsSeen + w.packetsLost,
		Gaps:            w.gaps,
		CompletenessPct: completeness,

		RecorderVersion:  RecorderVersion,
		CreatedTimestamp: float64(now.UnixNano()) / 1e9,
	}

	w.minuteActive = false
	if w.OnRecord != nil {
		w.OnRecord(rec, boundaryUTC)
	}
}

// FlushPartial closes whatever has accumulated in the current minute even
// though it has not reached SR*60 samples, zero-filling the remainder and
// marking it in gaps. Used at shutdown so a partial final minute is not
// silently lost (spec.md §5 graceful shutdown).
func (w *Writer) FlushPartial() {
	if !w.minuteActive || len(w.buf) == 0 {
		return
	}
	missing := w.samplesPerMinute - len(w.buf)
	if missing > 0 {
		rtpBefore := w.minuteRTP + uint32(len(w.buf))
		lost := uint32(missing) / w.samplesPerPacket
		w.gaps.RTPTimestamps = append(w.gaps.RTPTimestamps, rtpBefore)
		w.gaps.SampleIndices = append(w.gaps.SampleIndices, uint32(len(w.buf)))
		w.gaps.SamplesFilled = append(w.gaps.SamplesFilled, uint32(missing))
		w.gaps.PacketsLost = append(w.gaps.PacketsLost, lost)
		w.gapsFilled += uint32(missing)
		w.packetsLost += lost
		for i := 0; i < missing; i++ {
			w.buf = append(w.buf, 0)
		}
	}
	w.closeMinute()
}

// String is used in log fields identifying which channel a writer belongs
// to.
func (w *Writer) String() string {
	return fmt.Sprintf("%s@%.0fHz", w.channelName, w.frequencyHz)
}

// Package timesnap establishes and maintains the per-channel RTP-to-UTC
// anchor by matched-filtering the WWV/WWVH/CHU minute tone against a
// rolling startup capture buffer (spec.md §4.3).
package timesnap

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/mijahauan/signal-recorder-sub001/channel"
	"github.com/mijahauan/signal-recorder-sub001/dsp"
	"github.com/mijahauan/signal-recorder-sub001/ntpcache"
)

// minSNRDb is the detection threshold (spec.md §4.3).
const minSNRDb = 6.0

type toneDef struct {
	station string
	freqHz  float64
	durS    float64
}

var tones = []toneDef{
	{station: "WWV", freqHz: 1000, durS: 0.8},
	{station: "WWVH", freqHz: 1200, durS: 0.8},
	{station: "CHU", freqHz: 1000, durS: 0.5},
}

// Detector owns one channel's rolling startup buffer and, after the
// first anchor is established, evaluates later minutes for corrections.
type Detector struct {
	sampleRate   float64
	bufferSecs   int
	correctionMs int
	minIntervalS int

	templates map[string]*dsp.ToneTemplate

	buf          []complex64
	bufStartRTP  uint32
	bufStartWall time.Time
	haveBufStart bool

	lastCorrection time.Time
	haveAnchor     bool
	currentAnchor  channel.TimeSnap

	ntp *ntpcache.Cache
	log zerolog.Logger

	OnAnchor        func(channel.TimeSnap)
	OnDiscontinuity func(channel.Discontinuity)
}

func NewDetector(sampleRate uint32, bufferSecs, correctionMs, minIntervalS int, ntp *ntpcache.Cache, log zerolog.Logger) *Detector {
	d := &Detector{
		sampleRate:   float64(sampleRate),
		bufferSecs:   bufferSecs,
		correctionMs: correctionMs,
		minIntervalS: minIntervalS,
		templates:    make(map[string]*dsp.ToneTemplate),
		ntp:          ntp,
		log:          log,
	}
	for _, t := range tones {
		// Two channels never share a template, but stations do share a
		// frequency/duration (WWV and CHU both use 1000 Hz); keyed by
		// station name rather than frequency so each keeps its own
		// duration.
		d.templates[t.station] = dsp.NewToneTemplate(t.freqHz, t.durS, d.sampleRate)
	}
	return d
}

// Feed appends samples to the rolling startup buffer (pre-anchor) or, once
// an anchor exists, evaluates them as a correction candidate. rtpTS is the
// RTP timestamp of samples[0].
//
// Post-anchor, the caller is expected to hand one completed minute's
// worth of samples at a time (the channel actor's writer does this via
// Actor.OnMinuteSamples) rather than per-packet slivers: a tone occupies
// the first second of a minute, so a full minute's buffer is guaranteed to
// contain it. Anything shorter than one second of samples can't possibly
// contain a whole tone template and is skipped rather than gated on the
// much larger startup bufferSecs, which previously made this path
// unreachable for any per-packet caller.
func (d *Detector) Feed(rtpTS uint32, samples []complex64) {
	if !d.haveAnchor {
		if !d.haveBufStart {
			d.bufStartRTP = rtpTS
			d.bufStartWall = time.Now().UTC()
			d.haveBufStart = true
		}
		d.buf = append(d.buf, samples...)
		if len(d.buf) >= int(d.sampleRate)*d.bufferSecs {
			d.searchInitial()
		}
		return
	}

	if len(samples) < int(d.sampleRate) {
		return
	}
	d.searchCorrection(rtpTS, samples)
}

func (d *Detector) magnitude(samples []complex64) []float64 {
	mag := make([]float64, len(samples))
	var mean float64
	for i, s := range samples {
		m := math.Hypot(float64(real(s)), float64(imag(s)))
		mag[i] = m
		mean += m
	}
	mean /= float64(len(mag))
	for i := range mag {
		mag[i] -= mean // DC removal
	}
	return mag
}

type candidate struct {
	station string
	offset  int
	subOff  float64
	mag     float64
	snr     float64
}

func (d *Detector) bestCandidate(mag []float64) (candidate, bool) {
	var best candidate
	found := false
	for station, tmpl := range d.templates {
		offset, peak, snr := tmpl.Scan(mag)
		if snr < minSNRDb2Linear(minSNRDb) {
			continue
		}
		if !found || peak > best.mag {
			sub := refineOffset(tmpl, mag, offset)
			best = candidate{station: station, offset: offset, subOff: sub, mag: peak, snr: snr}
			found = true
		}
	}
	return best, found
}

// minSNRDb2Linear converts the dB-defined threshold into the
// linear peak/median ratio dsp.Scan already returns, since Scan's SNR is
// peak/median, not expressed in dB. 20*log10(ratio) >= 6dB  <=> ratio >=
// 10^(6/20).
func minSNRDb2Linear(db float64) float64 {
	return math.Pow(10, db/20)
}

func refineOffset(tmpl *dsp.ToneTemplate, mag []float64, offset int) float64 {
	if offset <= 0 || offset+1 >= len(mag)-tmpl.Len() {
		return float64(offset)
	}
	before := tmpl.CorrelateAt(mag, offset-1)
	peak := tmpl.CorrelateAt(mag, offset)
	after := tmpl.CorrelateAt(mag, offset+1)
	return dsp.SubSampleOffset(before, peak, after, offset)
}

// searchInitial runs the first-ever tone search over the filled startup
// buffer and establishes the anchor, falling back to NTP or wall clock
// per spec.md §4.3's ordered fallback list.
func (d *Detector) searchInitial() {
	mag := d.magnitude(d.buf)
	cand, found := d.bestCandidate(mag)

	if found {
		d.emitToneAnchor(cand, d.bufStartRTP, d.bufStartWall)
		d.haveAnchor = true
		return
	}

	snap := d.ntp.Get()
	now := time.Now()
	if snap.Synced {
		d.emit(channel.TimeSnap{
			RTP: d.bufStartRTP, UTC: now, Source: "ntp", Confidence: 0.7, Station: "NTP",
		})
	} else {
		d.emit(channel.TimeSnap{
			RTP: d.bufStartRTP, UTC: now, Source: "wall", Confidence: 0.3, Station: "WALL",
		})
	}
	d.haveAnchor = true
	d.lastCorrection = now
}

// emitToneAnchor converts a tone-search candidate into a TimeSnap. The
// candidate's sample offset is relative to baseRTP, the RTP timestamp of
// sample 0 of the buffer that was searched (spec.md §9#5's published
// pitfall: never anchor relative to buffer middle); baseWall is the best
// known wall-clock instant corresponding to that same sample 0, so the
// tone's UTC is derived from where in the search buffer it actually fell
// rather than from wall-clock time at search completion, which for a
// multi-second buffer can be a full tone period removed from the true
// instant.
func (d *Detector) emitToneAnchor(cand candidate, baseRTP uint32, baseWall time.Time) {
	rtpAtTone := baseRTP + uint32(math.Round(cand.subOff))

	offsetFromBase := time.Duration(cand.subOff / d.sampleRate * float64(time.Second))
	// The tone's rising edge is UTC second :00 of some minute; baseWall
	// plus the tone's offset into the searched buffer should land within a
	// fraction of a second of that boundary, so round (not truncate) to
	// the nearest minute to absorb baseWall's own small measurement jitter
	// without biasing the result toward the earlier minute.
	utcAtTone := baseWall.Add(offsetFromBase).Round(time.Minute)

	confidence := confidenceFromSNR(cand.snr)
	d.emit(channel.TimeSnap{
		RTP: rtpAtTone, UTC: utcAtTone, Source: stationSource(cand.station),
		Confidence: confidence, Station: cand.station,
	})
}

func stationSource(station string) string {
	switch station {
	case "WWV":
		return "wwv"
	case "WWVH":
		return "wwvh"
	case "CHU":
		return "chu"
	default:
		return "wall"
	}
}

func confidenceFromSNR(snrLinear float64) float64 {
	db := 20 * math.Log10(snrLinear)
	switch {
	case db >= 12:
		return 0.95
	case db >= 6:
		return 0.7 + 0.25*(db-6)/6
	default:
		return 0.5
	}
}

// searchCorrection evaluates a later minute's samples as a candidate
// correction to the existing anchor, applying spec.md §4.3's "only if
// |implied_error| > threshold and min_interval_s elapsed" rule, and
// reports the correction as a Discontinuity so it is visible in the same
// provenance trail a seq-gap or stream-restart produces (spec.md §3).
func (d *Detector) searchCorrection(rtpTS uint32, samples []complex64) {
	mag := d.magnitude(samples)
	cand, found := d.bestCandidate(mag)
	if !found {
		return
	}
	if time.Since(d.lastCorrection) < time.Duration(d.minIntervalS)*time.Second {
		return
	}

	errorMs := math.Abs(cand.subOff) / d.sampleRate * 1000
	if errorMs <= float64(d.correctionMs) {
		return
	}

	// baseWall is derived from the currently active anchor rather than
	// wall-clock "now", so the correction's own accuracy doesn't depend on
	// how promptly this search ran after the window closed.
	deltaSamples := int64(int32(rtpTS - d.currentAnchor.RTP))
	baseWall := d.currentAnchor.UTC.Add(time.Duration(float64(deltaSamples) / d.sampleRate * float64(time.Second)))

	prevRTP := d.currentAnchor.RTP
	d.lastCorrection = time.Now()
	d.emitToneAnchor(cand, rtpTS, baseWall)

	if d.OnDiscontinuity != nil {
		d.OnDiscontinuity(channel.Discontinuity{
			RTPBefore: prevRTP,
			RTPAfter:  d.currentAnchor.RTP,
			Reason:    channel.ReasonTimeSnapCorrection,
		})
	}
}

func (d *Detector) emit(ts channel.TimeSnap) {
	d.currentAnchor = ts
	if d.OnAnchor != nil {
		d.OnAnchor(ts)
	}
}

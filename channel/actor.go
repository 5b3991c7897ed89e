package channel

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mijahauan/signal-recorder-sub001/archive"
	"github.com/mijahauan/signal-recorder-sub001/ntpcache"
	"github.com/mijahauan/signal-recorder-sub001/rtpdemux"
)

// State is the per-channel lifecycle (spec.md §4.13).
type State int

const (
	StateInit State = iota
	StateBuffering
	StateArmed
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateBuffering:
		return "buffering"
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// queueDepth bounds the per-channel inbound packet queue; when full,
// incoming packets are dropped rather than blocking the demultiplexer's
// shared read loop (spec.md §5's isolation requirement — one stalled
// channel must never stall another).
const queueDepth = 4096

// diskRetryBackoffBase/diskMaxRetries bound the "retry with bounded
// backoff" spec.md §4.14 requires for a minute archive write failure,
// grounded on rtpdemux/demux.go's socket-reopen backoff. spoolDepth bounds
// the in-memory queue a persistently failing write falls back to; each
// entry holds a full minute of samples, so this stays small.
const (
	diskRetryBackoffBase = 200 * time.Millisecond
	diskMaxRetries       = 3
	spoolDepth           = 16
)

// spooledRecord is a minute archive that could not be written to disk,
// held in memory until a later write succeeds (spec.md §4.14).
type spooledRecord struct {
	rec         *archive.Record
	boundaryUTC time.Time
}

// Actor runs one channel's entire pipeline — resequence, timesnap anchor
// tracking, minute accumulation, archive write — serialized on a single
// goroutine, so within a channel nothing needs its own locking. Channels
// run fully in parallel with each other (spec.md §5).
type Actor struct {
	Name string

	resequencer *Resequencer
	writer      *Writer

	queue chan rtpdemux.Packet

	state State
	log   zerolog.Logger

	samplesPerPacket uint32

	packetsDropped uint64

	spool        []spooledRecord
	spoolDropped uint64

	OnArchive       func(rec *archive.Record, path string)
	OnMinuteSamples func(rtpTS uint32, samples []complex64)
	archiveDir      func() string
}

// NewActor wires a resequencer and minute writer together for one
// channel. archiveDir is a callback rather than a fixed string so the
// caller's config lookup (which may depend on runtime mode) stays the
// single source of truth.
func NewActor(name string, sampleRate uint32, samplesPerPacket uint32, frequencyHz float64, ntp *ntpcache.Cache, archiveDir func() string, log zerolog.Logger) *Actor {
	a := &Actor{
		Name:             name,
		queue:            make(chan rtpdemux.Packet, queueDepth),
		state:            StateInit,
		log:              log,
		samplesPerPacket: samplesPerPacket,
		archiveDir:       archiveDir,
	}

	a.resequencer = NewResequencer(int(samplesPerPacket), sampleRate, log)
	a.writer = NewWriter(name, frequencyHz, sampleRate, samplesPerPacket, ntp, log)

	a.resequencer.OnChunk = a.writer.Feed
	a.resequencer.OnDiscontinuity = func(d Discontinuity) {
		a.writer.OnDiscontinuity(d)
		a.log.Info().
			Uint32("rtp_before", d.RTPBefore).
			Uint32("rtp_after", d.RTPAfter).
			Uint32("samples_filled", d.SamplesFilled).
			Str("reason", string(d.Reason)).
			Msg("discontinuity")
	}
	a.resequencer.OnStreamRestart = func() {
		a.log.Warn().Msg("stream restart detected, RTP origin reset upstream")
	}

	a.writer.OnRecord = a.handleRecord
	a.writer.OnMinuteSamples = func(rtpTS uint32, samples []complex64) {
		if a.OnMinuteSamples != nil {
			a.OnMinuteSamples(rtpTS, samples)
		}
	}

	return a
}

// RecordDiscontinuity logs a discontinuity that did not originate from
// the resequencer — currently only a timesnap correction (spec.md §4.3,
// §3's Discontinuity.reason=time_snap_correction) — through the same
// structured log line the resequencer's own discontinuities use.
func (a *Actor) RecordDiscontinuity(d Discontinuity) {
	a.log.Info().
		Uint32("rtp_before", d.RTPBefore).
		Uint32("rtp_after", d.RTPAfter).
		Uint32("samples_filled", d.SamplesFilled).
		Str("reason", string(d.Reason)).
		Msg("discontinuity")
}

// SetAnchor installs the channel's current RTP-to-UTC anchor, normally
// called by the timesnap detector when it establishes or corrects a
// time-of-arrival fix (spec.md §4.3).
func (a *Actor) SetAnchor(ts TimeSnap) {
	a.writer.SetAnchor(ts)
	if a.state == StateBuffering || a.state == StateInit {
		a.state = StateArmed
	}
}

// State returns the current lifecycle state.
func (a *Actor) State() State { return a.state }

// Enqueue hands one packet to this channel's queue. Called from the
// demultiplexer's dispatch; never blocks — a full queue means this
// channel is falling behind and the packet is dropped and counted. The
// payload is copied before queueing, since the demultiplexer reuses the
// buffer it points into.
func (a *Actor) Enqueue(pkt rtpdemux.Packet) {
	pkt.Payload = append([]byte(nil), pkt.Payload...)
	select {
	case a.queue <- pkt:
	default:
		a.packetsDropped++
		if a.packetsDropped%100 == 1 {
			a.log.Warn().Uint64("dropped_total", a.packetsDropped).Msg("channel queue full, dropping packet")
		}
	}
}

// Run drains the queue on the calling goroutine until ctx is cancelled,
// feeding every packet through the resequencer in arrival order. One
// goroutine per Actor; this is the "single-goroutine serialized pipeline
// per channel" of spec.md §5.
func (a *Actor) Run(ctx context.Context) {
	if a.state == StateInit {
		a.state = StateBuffering
	}
	for {
		select {
		case <-ctx.Done():
			a.resequencer.Flush()
			a.writer.FlushPartial()
			return
		case pkt := <-a.queue:
			if a.state == StateArmed {
				a.state = StateRecording
			}
			a.resequencer.Feed(pkt)
		}
	}
}

// handleRecord is the writer's OnRecord callback: it atomically writes
// the minute archive to disk, retrying on failure and spooling in memory
// if every retry fails, then forwards the result for status/metrics
// reporting (spec.md §4.4, §4.14, §6.6).
func (a *Actor) handleRecord(rec *archive.Record, boundaryUTC time.Time) {
	a.drainSpool()

	path, err := a.writeWithRetry(rec, boundaryUTC)
	if err != nil {
		a.log.Error().Err(err).Msg("minute archive write failed after retries, spooling in memory")
		a.spoolRecord(rec, boundaryUTC)
		return
	}

	a.log.Info().Str("path", path).Float64("completeness_pct", rec.CompletenessPct).Msg("minute archive written")
	if a.OnArchive != nil {
		a.OnArchive(rec, path)
	}
}

// writeWithRetry attempts archive.WriteAtomic once and then retries it up
// to diskMaxRetries more times with doubling backoff before giving up
// (spec.md §4.14).
func (a *Actor) writeWithRetry(rec *archive.Record, boundaryUTC time.Time) (string, error) {
	backoff := diskRetryBackoffBase
	var lastErr error
	for attempt := 0; attempt <= diskMaxRetries; attempt++ {
		path, err := archive.WriteAtomic(a.archiveDir(), rec, boundaryUTC)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if attempt == diskMaxRetries {
			break
		}
		a.log.Warn().Err(err).Int("attempt", attempt+1).Dur("retry_in", backoff).Msg("minute archive write failed, retrying")
		time.Sleep(backoff)
		backoff *= 2
	}
	return "", lastErr
}

// spoolRecord holds a record that disk writes keep rejecting, dropping
// the oldest spooled record (and counting it) once the bounded queue is
// full rather than growing without limit (spec.md §4.14).
func (a *Actor) spoolRecord(rec *archive.Record, boundaryUTC time.Time) {
	if len(a.spool) >= spoolDepth {
		a.spool = a.spool[1:]
		a.spoolDropped++
		a.log.Warn().Uint64("dropped_total", a.spoolDropped).Msg("archive spool full, dropping oldest record")
	}
	a.spool = append(a.spool, spooledRecord{rec: rec, boundaryUTC: boundaryUTC})
}

// drainSpool retries every spooled record before handling the minute that
// just closed, so a transient disk failure self-heals as soon as writes
// start succeeding again instead of requiring a restart.
func (a *Actor) drainSpool() {
	if len(a.spool) == 0 {
		return
	}
	remaining := a.spool[:0]
	for _, s := range a.spool {
		path, err := archive.WriteAtomic(a.archiveDir(), s.rec, s.boundaryUTC)
		if err != nil {
			remaining = append(remaining, s)
			continue
		}
		a.log.Info().Str("path", path).Msg("spooled minute archive written")
		if a.OnArchive != nil {
			a.OnArchive(s.rec, path)
		}
	}
	a.spool = remaining
}

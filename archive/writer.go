package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// metadata is everything in Record except the array-shaped fields, which
// are stored as sibling .npy entries in the zip.
type metadata struct {
	RTPTimestamp  uint32  `json:"rtp_timestamp"`
	RTPSSRC       uint32  `json:"rtp_ssrc"`
	SampleRate    uint32  `json:"sample_rate"`
	FrequencyHz   float64 `json:"frequency_hz"`
	ChannelName   string  `json:"channel_name"`
	UnixTimestamp float64 `json:"unix_timestamp"`

	TimeSnapRTP        uint32  `json:"time_snap_rtp"`
	TimeSnapUTC        float64 `json:"time_snap_utc"`
	TimeSnapSource     string  `json:"time_snap_source"`
	TimeSnapConfidence float64 `json:"time_snap_confidence"`
	TimeSnapStation    string  `json:"time_snap_station"`

	TonePower1000HzDb       float64 `json:"tone_power_1000_hz_db"`
	TonePower1200HzDb       float64 `json:"tone_power_1200_hz_db"`
	WWVHDifferentialDelayMs float64 `json:"wwvh_differential_delay_ms"`

	NTPWallClockTime float64 `json:"ntp_wall_clock_time"`
	NTPOffsetMs      float64 `json:"ntp_offset_ms"`

	GapsCount       uint32 `json:"gaps_count"`
	GapsFilled      uint32 `json:"gaps_filled"`
	PacketsReceived uint32 `json:"packets_received"`
	PacketsExpected uint32 `json:"packets_expected"`

	CompletenessPct float64 `json:"completeness_pct"`

	RecorderVersion  string  `json:"recorder_version"`
	CreatedTimestamp float64 `json:"created_timestamp"`
}

func toMetadata(r *Record) metadata {
	return metadata{
		RTPTimestamp: r.RTPTimestamp, RTPSSRC: r.RTPSSRC, SampleRate: r.SampleRate,
		FrequencyHz: r.FrequencyHz, ChannelName: r.ChannelName, UnixTimestamp: r.UnixTimestamp,
		TimeSnapRTP: r.TimeSnapRTP, TimeSnapUTC: r.TimeSnapUTC, TimeSnapSource: r.TimeSnapSource,
		TimeSnapConfidence: r.TimeSnapConfidence, TimeSnapStation: r.TimeSnapStation,
		TonePower1000HzDb: r.TonePower1000HzDb, TonePower1200HzDb: r.TonePower1200HzDb,
		WWVHDifferentialDelayMs: r.WWVHDifferentialDelayMs,
		NTPWallClockTime:        r.NTPWallClockTime, NTPOffsetMs: r.NTPOffsetMs,
		GapsCount: r.GapsCount, GapsFilled: r.GapsFilled,
		PacketsReceived: r.PacketsReceived, PacketsExpected: r.PacketsExpected,
		CompletenessPct: r.CompletenessPct, RecorderVersion: r.RecorderVersion,
		CreatedTimestamp: r.CreatedTimestamp,
	}
}

// Marshal serializes a Record into an in-memory .npz (zip-of-.npy + JSON
// metadata sidecar) buffer.
func Marshal(r *Record) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := addZipFile(zw, "iq.npy", encodeComplex64NPY(r.IQ)); err != nil {
		return nil, err
	}
	if err := addZipFile(zw, "gap_rtp_timestamps.npy", encodeUint32NPY(r.Gaps.RTPTimestamps)); err != nil {
		return nil, err
	}
	if err := addZipFile(zw, "gap_sample_indices.npy", encodeUint32NPY(r.Gaps.SampleIndices)); err != nil {
		return nil, err
	}
	if err := addZipFile(zw, "gap_samples_filled.npy", encodeUint32NPY(r.Gaps.SamplesFilled)); err != nil {
		return nil, err
	}
	if err := addZipFile(zw, "gap_packets_lost.npy", encodeUint32NPY(r.Gaps.PacketsLost)); err != nil {
		return nil, err
	}

	metaJSON, err := json.MarshalIndent(toMetadata(r), "", "  ")
	if err != nil {
		return nil, err
	}
	if err := addZipFile(zw, "metadata.json", metaJSON); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal reads a .npz buffer back into a Record, for the archive
// watcher and analytics pipeline.
func Unmarshal(data []byte) (*Record, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive zip: %w", err)
	}

	files := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		files[f.Name] = b
	}

	var meta metadata
	if err := json.Unmarshal(files["metadata.json"], &meta); err != nil {
		return nil, fmt.Errorf("decode metadata.json: %w", err)
	}

	iq, err := decodeComplex64NPY(files["iq.npy"])
	if err != nil {
		return nil, fmt.Errorf("decode iq.npy: %w", err)
	}
	gapRTP, _ := decodeUint32NPY(files["gap_rtp_timestamps.npy"])
	gapIdx, _ := decodeUint32NPY(files["gap_sample_indices.npy"])
	gapFilled, _ := decodeUint32NPY(files["gap_samples_filled.npy"])
	gapLost, _ := decodeUint32NPY(files["gap_packets_lost.npy"])

	return &Record{
		IQ: iq, RTPTimestamp: meta.RTPTimestamp, RTPSSRC: meta.RTPSSRC, SampleRate: meta.SampleRate,
		FrequencyHz: meta.FrequencyHz, ChannelName: meta.ChannelName, UnixTimestamp: meta.UnixTimestamp,
		TimeSnapRTP: meta.TimeSnapRTP, TimeSnapUTC: meta.TimeSnapUTC, TimeSnapSource: meta.TimeSnapSource,
		TimeSnapConfidence: meta.TimeSnapConfidence, TimeSnapStation: meta.TimeSnapStation,
		TonePower1000HzDb: meta.TonePower1000HzDb, TonePower1200HzDb: meta.TonePower1200HzDb,
		WWVHDifferentialDelayMs: meta.WWVHDifferentialDelayMs,
		NTPWallClockTime:        meta.NTPWallClockTime, NTPOffsetMs: meta.NTPOffsetMs,
		GapsCount: meta.GapsCount, GapsFilled: meta.GapsFilled,
		PacketsReceived: meta.PacketsReceived, PacketsExpected: meta.PacketsExpected,
		CompletenessPct: meta.CompletenessPct, RecorderVersion: meta.RecorderVersion,
		CreatedTimestamp: meta.CreatedTimestamp,
		Gaps: Gaps{RTPTimestamps: gapRTP, SampleIndices: gapIdx, SamplesFilled: gapFilled, PacketsLost: gapLost},
	}, nil
}

// FileName returns the spec.md §6.5 archive filename for a record whose
// sample-0 UTC boundary is boundaryUTC.
func FileName(boundaryUTC time.Time, frequencyHz float64) string {
	return fmt.Sprintf("%sZ_%.0f_iq.npz", boundaryUTC.UTC().Format("20060102T150405"), frequencyHz)
}

// decimatedMetadata is the sidecar for a decimated analytics product: just
// enough to identify the minute and rate, unlike the full Record metadata
// a primary archive carries.
type decimatedMetadata struct {
	ChannelName   string  `json:"channel_name"`
	SampleRate    uint32  `json:"sample_rate"`
	UnixTimestamp float64 `json:"unix_timestamp"`
}

// DecimatedFileName returns the filename for a decimated analytics
// product (the {data_root}/analytics/{channel}/decimated output spec.md
// §6.5 names) whose sample-0 UTC boundary is boundaryUTC.
func DecimatedFileName(boundaryUTC time.Time, rateHz uint32) string {
	return fmt.Sprintf("%sZ_%dhz.npz", boundaryUTC.UTC().Format("20060102T150405"), rateHz)
}

// WriteDecimatedAtomic serializes a decimated I/Q product as a minimal
// npz (just iq.npy plus an identifying metadata.json) and writes it with
// the same tmpfile-then-rename pattern WriteAtomic uses for primary
// archives, so a reader never observes a partial file.
func WriteDecimatedAtomic(dir string, iq []complex64, sampleRate uint32, channelName string, boundaryUTC time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	name := DecimatedFileName(boundaryUTC, sampleRate)
	finalPath := filepath.Join(dir, name)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := addZipFile(zw, "iq.npy", encodeComplex64NPY(iq)); err != nil {
		return "", fmt.Errorf("encode decimated iq: %w", err)
	}
	metaJSON, err := json.MarshalIndent(decimatedMetadata{
		ChannelName:   channelName,
		SampleRate:    sampleRate,
		UnixTimestamp: float64(boundaryUTC.UnixNano()) / 1e9,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal decimated metadata: %w", err)
	}
	if err := addZipFile(zw, "metadata.json", metaJSON); err != nil {
		return "", fmt.Errorf("encode decimated metadata: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("close decimated zip: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+name+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp decimated archive: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write temp decimated archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("sync temp decimated archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close temp decimated archive: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename temp decimated archive: %w", err)
	}
	return finalPath, nil
}

// WriteAtomic serializes r and writes it to dir/FileName(...) using the
// tmpfile-then-rename pattern spec.md §6.6 mandates for status files and
// which this writer applies to archives too, so a reader never observes a
// partially written file. Grounded on audio/wav_writer.go's header-then-
// data pattern, adapted here to a whole-buffer-then-rename write since
// npz needs the zip central directory written only once, at the end.
func WriteAtomic(dir string, r *Record, boundaryUTC time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	name := FileName(boundaryUTC, r.FrequencyHz)
	finalPath := filepath.Join(dir, name)

	data, err := Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal archive: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+name+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write temp archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("sync temp archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close temp archive: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename temp archive: %w", err)
	}
	return finalPath, nil
}

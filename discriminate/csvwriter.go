package discriminate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// csvHeader is the fixed column schema of spec.md §6.3.
var csvHeader = []string{
	"timestamp_utc", "minute_timestamp", "minute_number",
	"wwv_detected", "wwvh_detected",
	"wwv_power_db", "wwvh_power_db", "power_ratio_db",
	"differential_delay_ms",
	"tone_440hz_wwv_detected", "tone_440hz_wwv_power_db",
	"tone_440hz_wwvh_detected", "tone_440hz_wwvh_power_db",
	"dominant_station", "confidence",
	"tick_windows",
	"bcd_wwv_amplitude", "bcd_wwvh_amplitude", "bcd_differential_delay_ms", "bcd_correlation_quality",
	"bcd_windows",
}

// CSVWriter appends/replaces per-minute discrimination rows in
// {dir}/{channel}_discrimination_{YYYYMMDD}.csv (spec.md §4.12, §6.5),
// grounded on src/log.go's daily-named CSV convention from the direwolf
// reference, generalized here to support idempotent upsert-by-key instead
// of append-only writes.
type CSVWriter struct {
	dir     string
	channel string
}

func NewCSVWriter(dir, channel string) *CSVWriter {
	return &CSVWriter{dir: dir, channel: channel}
}

func (w *CSVWriter) pathFor(day time.Time) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_discrimination_%s.csv", w.channel, day.UTC().Format("20060102")))
}

// Write upserts rec into its day's file keyed by MinuteTimestamp,
// rewriting the whole file atomically so a concurrent reader never sees
// a half-written row (spec.md §6.6's tmpfile+rename pattern, applied here
// too). Reprocessing the same minute twice yields one row with identical
// content (spec.md §8 idempotence property).
func (w *CSVWriter) Write(rec Record) error {
	day := time.Unix(rec.MinuteTimestamp, 0).UTC()
	path := w.pathFor(day)

	rows, err := readExisting(path)
	if err != nil {
		return fmt.Errorf("read existing discrimination csv: %w", err)
	}

	key := strconv.FormatInt(rec.MinuteTimestamp, 10)
	rows[key] = toRow(rec)

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", w.dir, err)
	}
	return writeAtomicCSV(path, rows)
}

func readExisting(path string) (map[string][]string, error) {
	rows := make(map[string][]string)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return rows, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	for i, row := range all {
		if i == 0 || len(row) < 2 {
			continue // header
		}
		rows[row[1]] = row
	}
	return rows, nil
}

func writeAtomicCSV(path string, rows map[string][]string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-discrimination-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	keys := sortedKeys(rows)
	for _, k := range keys {
		if err := w.Write(rows[k]); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func sortedKeys(rows map[string][]string) []string {
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	// minute_timestamp keys are numeric strings; comparing them as
	// integers (lessTimestamp) keeps rows in chronological order whatever
	// their string length.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && lessTimestamp(keys[j], keys[j-1]); j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func lessTimestamp(a, b string) bool {
	na, _ := strconv.ParseInt(a, 10, 64)
	nb, _ := strconv.ParseInt(b, 10, 64)
	return na < nb
}

func toRow(rec Record) []string {
	tickJSON, _ := json.Marshal(rec.TickWindows)
	bcdJSON, _ := json.Marshal(rec.BCDWindows)

	return []string{
		formatFloat(rec.TimestampUTC),
		strconv.FormatInt(rec.MinuteTimestamp, 10),
		strconv.Itoa(rec.MinuteNumber),
		strconv.FormatBool(rec.WWVDetected),
		strconv.FormatBool(rec.WWVHDetected),
		formatFloat(rec.WWVPowerDb),
		formatFloat(rec.WWVHPowerDb),
		formatFloat(rec.PowerRatioDb),
		formatFloat(rec.DifferentialDelayMs),
		strconv.FormatBool(rec.Tone440WWVDetected),
		formatFloat(rec.Tone440WWVPowerDb),
		strconv.FormatBool(rec.Tone440WWVHDetected),
		formatFloat(rec.Tone440WWVHPowerDb),
		string(rec.DominantStation),
		string(rec.Confidence),
		string(tickJSON),
		formatFloat(rec.BCDWWVAmplitude),
		formatFloat(rec.BCDWWVHAmplitude),
		formatFloat(rec.BCDDifferentialDelayMs),
		formatFloat(rec.BCDCorrelationQuality),
		string(bcdJSON),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

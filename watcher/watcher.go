// Package watcher polls the archive directory for new minute records and
// dispatches them, in filename (minute-boundary UTC) order, to the analytics pipeline
// (spec.md §4.6).
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/mijahauan/signal-recorder-sub001/archive"
)

// PollInterval matches spec.md §4.6's "≈10 s".
const PollInterval = 10 * time.Second

// processedRetention bounds how many recently processed filenames are
// remembered across restarts, so the state file stays small while still
// covering many hours of per-minute archives per channel.
const processedRetention = 720

// state is the persisted watcher state. ProcessedIDs, not just a single
// high-water mark, is what spec.md §4.6 requires a late-arriving record
// to be checked against: a file that sorts before LastProcessedRecordID
// must still be processed once if it isn't already in this set.
type state struct {
	LastProcessedRecordID string   `json:"last_processed_record_id"`
	ProcessedIDs          []string `json:"processed_ids"`
}

// Watcher polls one channel's archive directory.
type Watcher struct {
	archiveDir string
	statePath  string
	log        zerolog.Logger

	lastID    string
	processed map[string]bool
	order     []string // processed IDs in the order they were marked, for retention trimming

	OnRecord func(rec *archive.Record, path string)
}

func New(archiveDir, statePath string, log zerolog.Logger) *Watcher {
	return &Watcher{archiveDir: archiveDir, statePath: statePath, log: log, processed: make(map[string]bool)}
}

// Run polls until ctx is cancelled, loading persisted state on entry and
// saving it after every batch processed.
func (w *Watcher) Run(ctx context.Context) {
	w.loadState()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	w.pollOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

func (w *Watcher) loadState() {
	data, err := os.ReadFile(w.statePath)
	if err != nil {
		return // no prior state: first run, or file genuinely absent
	}
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		w.log.Warn().Err(err).Msg("corrupt watcher state file, starting from empty")
		return
	}
	w.lastID = s.LastProcessedRecordID
	w.processed = make(map[string]bool, len(s.ProcessedIDs))
	w.order = append([]string(nil), s.ProcessedIDs...)
	for _, id := range s.ProcessedIDs {
		w.processed[id] = true
	}
}

func (w *Watcher) saveState() {
	data, err := json.Marshal(state{LastProcessedRecordID: w.lastID, ProcessedIDs: w.order})
	if err != nil {
		return
	}
	dir := filepath.Dir(w.statePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.log.Warn().Err(err).Msg("failed to create watcher state dir")
		return
	}
	tmp, err := os.CreateTemp(dir, ".tmp-watcher-state-*")
	if err != nil {
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return
	}
	tmp.Close()
	os.Rename(tmpPath, w.statePath)
}

// pollOnce lists the archive directory and dispatches every file not yet
// marked processed. Unlike filtering on a single lexical high-water mark,
// this lets a late-arriving record whose timestamp-prefixed name sorts
// before one already processed still reach OnRecord exactly once, logged
// as out-of-order rather than silently skipped forever (spec.md §4.6).
func (w *Watcher) pollOnce() {
	entries, err := os.ReadDir(w.archiveDir)
	if err != nil {
		if !os.IsNotExist(err) {
			w.log.Warn().Err(err).Msg("failed to list archive directory")
		}
		return
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".npz" {
			continue
		}
		if w.processed[e.Name()] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names) // filenames carry a UTC timestamp prefix: lexical == chronological

	for _, name := range names {
		path := filepath.Join(w.archiveDir, name)
		rec, err := w.readRecord(path)
		if err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("failed to read archive record, skipping")
			continue
		}

		if w.lastID != "" && name < w.lastID {
			w.log.Info().Str("path", path).Msg("processing out-of-order late archive arrival")
		}

		if w.OnRecord != nil {
			w.OnRecord(rec, path)
		}
		w.markProcessed(name)
		w.saveState()
	}
}

// markProcessed records name as handled and trims the retained set back
// to processedRetention, dropping the oldest entry first.
func (w *Watcher) markProcessed(name string) {
	w.processed[name] = true
	w.order = append(w.order, name)
	if name > w.lastID {
		w.lastID = name
	}
	if len(w.order) > processedRetention {
		drop := w.order[0]
		w.order = w.order[1:]
		delete(w.processed, drop)
	}
}

func (w *Watcher) readRecord(path string) (*archive.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return archive.Unmarshal(data)
}

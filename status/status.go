// Package status implements the atomic status-file exposition contract
// (spec.md §6.6) and a Prometheus lifecycle-state gauge; the named
// counters appear only in the status file, grounded on the teacher's atomic-write idiom from
// archive/writer.go's WriteAtomic and, for the metrics registry shape, on
// the prometheus/client_golang pack dependency.
package status

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the JSON shape written every WriteInterval (spec.md §6.6).
type Snapshot struct {
	Component    string            `json:"component"`
	RunID        string            `json:"run_id"`
	UptimeS      float64           `json:"uptime_s"`
	LastEventTS  float64           `json:"last_event_ts"`
	Counters     map[string]uint64 `json:"counters"`
	CurrentState string            `json:"current_state"`
}

// WriteInterval matches spec.md §6.6.
const WriteInterval = 10 * time.Second

// Reporter owns one component's status file and metrics counters.
type Reporter struct {
	component string
	runID     string
	path      string
	startedAt time.Time

	mu           sync.Mutex
	counters     map[string]uint64
	currentState string
	lastEventTS  time.Time

	metrics map[string]prometheus.Counter
	stateGauge *prometheus.GaugeVec
}

// NewReporter creates a Reporter that writes to {statusDir}/{component}-status.json.
// runID is a fresh UUID per process start, so an operator correlating
// status snapshots across a restart can tell apart two runs that happen
// to overlap in uptime.
func NewReporter(component, statusDir string, registry *prometheus.Registry) *Reporter {
	r := &Reporter{
		component:    component,
		runID:        uuid.NewString(),
		path:         filepath.Join(statusDir, component+"-status.json"),
		startedAt:    time.Now(),
		counters:     make(map[string]uint64),
		currentState: "init",
		metrics:      make(map[string]prometheus.Counter),
	}

	r.stateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "signal_recorder",
		Subsystem: component,
		Name:      "state",
		Help:      "Current lifecycle state, one gauge per state name set to 1 for the active state.",
	}, []string{"state"})
	if registry != nil {
		registry.MustRegister(r.stateGauge)
	}

	return r
}

// IncCounter increments a named counter by delta in the status snapshot.
// No Prometheus counter is created for it; only the state gauge is
// registered.
func (r *Reporter) IncCounter(name string, delta uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += delta
	r.lastEventTS = time.Now()
}

// SetState updates the lifecycle state gauge (one per state name, only
// the current one set to 1).
func (r *Reporter) SetState(state string) {
	r.mu.Lock()
	prev := r.currentState
	r.currentState = state
	r.mu.Unlock()

	if r.stateGauge != nil {
		if prev != "" {
			r.stateGauge.WithLabelValues(prev).Set(0)
		}
		r.stateGauge.WithLabelValues(state).Set(1)
	}
}

// Run writes the status file every WriteInterval until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(WriteInterval)
	defer ticker.Stop()

	r.write()
	for {
		select {
		case <-ctx.Done():
			r.write()
			return
		case <-ticker.C:
			r.write()
		}
	}
}

func (r *Reporter) write() {
	r.mu.Lock()
	snap := Snapshot{
		Component:    r.component,
		RunID:        r.runID,
		UptimeS:      time.Since(r.startedAt).Seconds(),
		LastEventTS:  float64(r.lastEventTS.UnixNano()) / 1e9,
		Counters:     copyCounters(r.counters),
		CurrentState: r.currentState,
	}
	r.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	tmp, err := os.CreateTemp(dir, ".tmp-status-*")
	if err != nil {
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return
	}
	os.Rename(tmpPath, r.path)
}

func copyCounters(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Package telemetry samples harness and store health and optionally
// publishes it to an MQTT broker for external dashboards. The sampler
// is independent of the publisher so the console status line can use
// the same snapshots without a broker configured.
package telemetry

import (
	"runtime"
	"time"
)

// StatsSource provides runtime data for snapshots. Implemented by the
// harness; the concrete adapter is wired in main to keep this package
// decoupled from the agent loop.
type StatsSource interface {
	// Processing reports whether a chat request is in flight.
	Processing() bool
	// ProcessingAge returns how long the current request has run.
	ProcessingAge() time.Duration
	// QueueDepth returns the number of undelivered outcomes.
	QueueDepth() int
	// LastGeneration returns the wall time of the last completed
	// generation, or zero if none has completed.
	LastGeneration() time.Duration
}

// CountsSource reports store row counts. Implemented by *store.Store.
type CountsSource interface {
	FastCounts() (memoryRows, kbDocs int)
}

// Snapshot is one point-in-time sample of process health.
type Snapshot struct {
	Processing     bool          `json:"processing"`
	ProcessingAge  time.Duration `json:"processing_age"`
	QueueDepth     int           `json:"queue_depth"`
	LastGeneration time.Duration `json:"last_generation"`
	Goroutines     int           `json:"goroutines"`
	MemoryRows     int           `json:"memory_rows"`
	KBDocs         int           `json:"kb_docs"`
	Uptime         time.Duration `json:"uptime"`
	Version        string        `json:"version"`
}

// Sampler builds snapshots from a stats source and a counts source.
type Sampler struct {
	stats   StatsSource
	counts  CountsSource
	version string
	started time.Time
}

// NewSampler creates a sampler. counts may be nil when no store is
// shared with the foreground process.
func NewSampler(stats StatsSource, counts CountsSource, version string) *Sampler {
	return &Sampler{stats: stats, counts: counts, version: version, started: time.Now()}
}

// Sample takes one snapshot. It never fails; unavailable counts read
// as zero.
func (s *Sampler) Sample() Snapshot {
	snap := Snapshot{
		Processing:     s.stats.Processing(),
		ProcessingAge:  s.stats.ProcessingAge(),
		QueueDepth:     s.stats.QueueDepth(),
		LastGeneration: s.stats.LastGeneration(),
		Goroutines:     runtime.NumGoroutine(),
		Uptime:         time.Since(s.started),
		Version:        s.version,
	}
	if s.counts != nil {
		snap.MemoryRows, snap.KBDocs = s.counts.FastCounts()
	}
	return snap
}

package telemetry

import (
	"testing"
	"time"
)

type fakeStats struct {
	processing bool
	age        time.Duration
	depth      int
	lastGen    time.Duration
}

func (f *fakeStats) Processing() bool              { return f.processing }
func (f *fakeStats) ProcessingAge() time.Duration  { return f.age }
func (f *fakeStats) QueueDepth() int               { return f.depth }
func (f *fakeStats) LastGeneration() time.Duration { return f.lastGen }

type fakeCounts struct {
	mem, kb int
}

func (f *fakeCounts) FastCounts() (int, int) { return f.mem, f.kb }

func TestSample(t *testing.T) {
	stats := &fakeStats{
		processing: true,
		age:        3 * time.Second,
		depth:      2,
		lastGen:    1500 * time.Millisecond,
	}
	s := NewSampler(stats, &fakeCounts{mem: 42, kb: 7}, "1.2.3")

	snap := s.Sample()

	if !snap.Processing {
		t.Error("expected processing flag set")
	}
	if snap.ProcessingAge != 3*time.Second {
		t.Errorf("unexpected age %s", snap.ProcessingAge)
	}
	if snap.QueueDepth != 2 {
		t.Errorf("unexpected depth %d", snap.QueueDepth)
	}
	if snap.LastGeneration != 1500*time.Millisecond {
		t.Errorf("unexpected last generation %s", snap.LastGeneration)
	}
	if snap.MemoryRows != 42 || snap.KBDocs != 7 {
		t.Errorf("unexpected counts %d/%d", snap.MemoryRows, snap.KBDocs)
	}
	if snap.Version != "1.2.3" {
		t.Errorf("unexpected version %q", snap.Version)
	}
	if snap.Goroutines <= 0 {
		t.Error("expected positive goroutine count")
	}
}

func TestSampleWithoutCounts(t *testing.T) {
	s := NewSampler(&fakeStats{}, nil, "dev")
	snap := s.Sample()
	if snap.MemoryRows != 0 || snap.KBDocs != 0 {
		t.Errorf("expected zero counts with nil source, got %d/%d", snap.MemoryRows, snap.KBDocs)
	}
}

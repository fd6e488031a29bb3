package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/thelocalai/thelocalai/internal/chat"
	"github.com/thelocalai/thelocalai/internal/store"
)

// --- fakes ---

type nopStore struct{}

func (nopStore) ExtractFacts(string) ([]store.StoredFact, error) { return nil, nil }
func (nopStore) LatestPerKey() (string, error)                   { return "", nil }
func (nopStore) ListKeys() ([]string, error)                     { return nil, nil }
func (nopStore) LastTopic() (string, error)                      { return "", nil }
func (nopStore) SetLastTopic(string) error                       { return nil }
func (nopStore) ClearDocuments() error                           { return nil }
func (nopStore) Close() error                                    { return nil }

type fakeReplier struct {
	mu      sync.Mutex
	calls   int
	reply   string
	err     error
	started chan struct{} // closed-ish signal per call
	release chan struct{} // blocks the reply until closed
}

func (f *fakeReplier) GenerateReply(ctx context.Context, st chat.FactStore, req chat.Request) (*chat.ChatResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &chat.ChatResult{Assistant: f.reply}, nil
}

func (f *fakeReplier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLister struct {
	models []string
}

func (f *fakeLister) ListModels(ctx context.Context, timeout time.Duration) []string {
	return f.models
}

type recordingRenderer struct {
	mu       sync.Mutex
	results  []*chat.ChatResult
	errs     []error
	models   [][]string
	timeouts int
	busy     []bool
}

func (r *recordingRenderer) RenderResult(res *chat.ChatResult, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recordingRenderer) RenderError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingRenderer) RenderModels(models []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append(r.models, models)
}

func (r *recordingRenderer) RenderTimeout(elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts++
}

func (r *recordingRenderer) SetBusy(busy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = append(r.busy, busy)
}

func newTestHarness(replier Replier, lister ModelLister, renderer Renderer) *Harness {
	openStore := func() (WorkerStore, error) { return nopStore{}, nil }
	return New(Config{
		MaxUserChars:    100,
		WatchdogTimeout: time.Hour,
	}, replier, lister, openStore, renderer, nil)
}

// waitForOutcome polls until the harness queue holds at least one item.
func waitForOutcome(t *testing.T, h *Harness) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.QueueDepth() > 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("no outcome arrived on the queue")
}

// --- validation ---

func TestSendValidation(t *testing.T) {
	r := &recordingRenderer{}
	replier := &fakeReplier{reply: "ok"}
	h := newTestHarness(replier, &fakeLister{}, r)

	if err := h.Send(chat.Request{Message: ""}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if err := h.Send(chat.Request{Message: strings.Repeat("x", 101)}); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}
	if replier.callCount() != 0 {
		t.Error("validation failures must not spawn workers")
	}
	if h.Processing() {
		t.Error("validation failures must not set the processing flag")
	}
}

func TestSendAfterClose(t *testing.T) {
	h := newTestHarness(&fakeReplier{}, &fakeLister{}, &recordingRenderer{})
	h.Close()
	if err := h.Send(chat.Request{Message: "hello"}); !errors.Is(err, ErrClosing) {
		t.Errorf("expected ErrClosing, got %v", err)
	}
}

// --- single flight ---

func TestSingleFlight(t *testing.T) {
	r := &recordingRenderer{}
	replier := &fakeReplier{
		reply:   "done",
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	h := newTestHarness(replier, &fakeLister{}, r)

	if err := h.Send(chat.Request{Message: "first"}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	<-replier.started

	if err := h.Send(chat.Request{Message: "second"}); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	if replier.callCount() != 1 {
		t.Errorf("expected exactly one worker, got %d", replier.callCount())
	}

	close(replier.release)
	waitForOutcome(t, h)
	h.drain()

	if h.Processing() {
		t.Error("expected idle after drain")
	}
	if len(r.results) != 1 || r.results[0].Assistant != "done" {
		t.Errorf("expected one rendered result, got %v", r.results)
	}

	// The harness accepts new work again.
	if err := h.Send(chat.Request{Message: "third"}); err != nil {
		t.Errorf("expected send accepted after unlock, got %v", err)
	}
}

func TestWorkerErrorRenderedAndUnlocks(t *testing.T) {
	r := &recordingRenderer{}
	pipelineErr := errors.New("ollama: failed after retries: boom")
	h := newTestHarness(&fakeReplier{err: pipelineErr}, &fakeLister{}, r)

	if err := h.Send(chat.Request{Message: "hello"}); err != nil {
		t.Fatal(err)
	}
	waitForOutcome(t, h)
	h.drain()

	if len(r.errs) != 1 || !errors.Is(r.errs[0], pipelineErr) {
		t.Errorf("expected the pipeline error rendered, got %v", r.errs)
	}
	if h.Processing() {
		t.Error("expected unlock after error")
	}
}

// --- watchdog ---

func TestWatchdogUnlocksAndLateResultRenders(t *testing.T) {
	r := &recordingRenderer{}
	replier := &fakeReplier{
		reply:   "late",
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	h := newTestHarness(replier, &fakeLister{}, r)
	h.cfg.WatchdogTimeout = 10 * time.Millisecond

	if err := h.Send(chat.Request{Message: "slow one"}); err != nil {
		t.Fatal(err)
	}
	<-replier.started

	// Backdate the dispatch so the ceiling is exceeded.
	h.startedAt.Store(time.Now().Add(-time.Minute).UnixNano())
	h.checkWatchdog()

	if r.timeouts != 1 {
		t.Fatalf("expected one timeout render, got %d", r.timeouts)
	}
	if h.Processing() {
		t.Error("expected UI unlocked after watchdog")
	}

	// The worker was not cancelled; its late result still renders.
	close(replier.release)
	waitForOutcome(t, h)
	h.drain()

	if len(r.results) != 1 || r.results[0].Assistant != "late" {
		t.Errorf("expected the late result rendered, got %v", r.results)
	}
}

func TestWatchdogIgnoresIdleHarness(t *testing.T) {
	r := &recordingRenderer{}
	h := newTestHarness(&fakeReplier{}, &fakeLister{}, r)
	h.cfg.WatchdogTimeout = time.Nanosecond

	h.checkWatchdog()
	if r.timeouts != 0 {
		t.Error("watchdog must not fire while idle")
	}
}

// --- model refresh ---

func TestRefreshModelsIndependentOfFlag(t *testing.T) {
	r := &recordingRenderer{}
	h := newTestHarness(&fakeReplier{}, &fakeLister{models: []string{"a", "b"}}, r)

	// Simulate an in-flight request; the refresh must still run and
	// must not clear the flag.
	h.processing.Store(true)

	h.RefreshModels(context.Background())
	waitForOutcome(t, h)
	h.drain()

	if len(r.models) != 1 || len(r.models[0]) != 2 {
		t.Errorf("expected model list rendered, got %v", r.models)
	}
	if !h.Processing() {
		t.Error("model refresh must not clear the processing flag")
	}
}

func TestRefreshModelsEmptyCatalogRendersError(t *testing.T) {
	r := &recordingRenderer{}
	h := newTestHarness(&fakeReplier{}, &fakeLister{}, r)
	h.processing.Store(true)

	h.RefreshModels(context.Background())
	waitForOutcome(t, h)
	h.drain()

	if len(r.errs) != 1 {
		t.Fatalf("expected one rendered error, got %v", r.errs)
	}
	if !h.Processing() {
		t.Error("a failed refresh must not clear the processing flag")
	}
}

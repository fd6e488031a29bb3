// Package agent owns the request-orchestration harness: the
// single-flight processing flag, the per-request worker goroutines,
// the shared outcome queue drained on a fixed cadence by the
// foreground loop, and the watchdog that unlocks the UI when a
// request runs too long.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/thelocalai/thelocalai/internal/chat"
)

// Send rejection reasons. ErrBusy is the single-flight no-op; the
// other two are synchronous input validation, reported to the user
// before any worker is spawned.
var (
	ErrBusy           = errors.New("a request is already in flight")
	ErrClosing        = errors.New("shutting down")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message too long")
)

// WorkerStore is the store handle a worker opens for the duration of
// one request and releases when done, success or failure.
type WorkerStore interface {
	chat.FactStore
	Close() error
}

// Replier runs the reply pipeline. Implemented by *chat.Pipeline.
type Replier interface {
	GenerateReply(ctx context.Context, st chat.FactStore, req chat.Request) (*chat.ChatResult, error)
}

// ModelLister fetches the generation backend's model catalog.
type ModelLister interface {
	ListModels(ctx context.Context, timeout time.Duration) []string
}

// Renderer is the presentation layer's view of the harness. All
// methods are invoked from the foreground loop only.
type Renderer interface {
	RenderResult(res *chat.ChatResult, elapsed time.Duration)
	RenderError(err error)
	RenderModels(models []string)
	RenderTimeout(elapsed time.Duration)
	SetBusy(busy bool)
}

// Config holds the harness cadences and limits.
type Config struct {
	MaxUserChars    int
	PollInterval    time.Duration // outcome-queue drain cadence
	PollBatch       int           // max outcomes drained per tick
	WatchdogTick    time.Duration
	WatchdogTimeout time.Duration // processing-age ceiling
	QueueDepth      int
}

// Harness coordinates workers against a single foreground consumer.
//
// State machine: Idle → Processing → Idle. The transition into
// Processing is guarded by an atomic flag; everything else (rendering,
// flag clearing, watchdog checks) happens on the foreground loop, so
// the flag and the queue are the only cross-goroutine shared state.
type Harness struct {
	cfg       Config
	replier   Replier
	models    ModelLister
	openStore func() (WorkerStore, error)
	renderer  Renderer
	logger    *slog.Logger

	outcomes   chan Outcome
	processing atomic.Bool
	closing    atomic.Bool
	startedAt  atomic.Int64 // unix nanos of dispatch; 0 when idle
	lastLLMms  atomic.Int64 // duration of the last completed generation
}

// New creates a harness. openStore is called once per worker so each
// request gets its own store connection.
func New(cfg Config, replier Replier, models ModelLister, openStore func() (WorkerStore, error), renderer Renderer, logger *slog.Logger) *Harness {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 80 * time.Millisecond
	}
	if cfg.PollBatch <= 0 {
		cfg.PollBatch = 10
	}
	if cfg.WatchdogTick <= 0 {
		cfg.WatchdogTick = time.Second
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{
		cfg:       cfg,
		replier:   replier,
		models:    models,
		openStore: openStore,
		renderer:  renderer,
		logger:    logger,
		outcomes:  make(chan Outcome, cfg.QueueDepth),
	}
}

// Processing reports whether a chat request is in flight.
func (h *Harness) Processing() bool {
	return h.processing.Load()
}

// ProcessingAge returns how long the current request has been running,
// or zero when idle.
func (h *Harness) ProcessingAge() time.Duration {
	start := h.startedAt.Load()
	if start == 0 {
		return 0
	}
	return time.Since(time.Unix(0, start))
}

// QueueDepth returns the number of undelivered outcomes.
func (h *Harness) QueueDepth() int {
	return len(h.outcomes)
}

// LastGeneration returns the wall time of the most recently completed
// generation, or zero if none has completed yet.
func (h *Harness) LastGeneration() time.Duration {
	return time.Duration(h.lastLLMms.Load()) * time.Millisecond
}

// Send validates the message and dispatches a worker for it.
//
// Validation failures and the single-flight rejection happen
// synchronously, before any goroutine is spawned. On success exactly
// one Outcome will eventually appear on the queue, even if the
// watchdog unlocks the UI first.
func (h *Harness) Send(req chat.Request) error {
	if h.closing.Load() {
		return ErrClosing
	}

	message := req.Message
	if len(message) == 0 {
		return ErrEmptyMessage
	}
	if h.cfg.MaxUserChars > 0 && len(message) > h.cfg.MaxUserChars {
		return fmt.Errorf("%w (max %d)", ErrMessageTooLong, h.cfg.MaxUserChars)
	}

	if !h.processing.CompareAndSwap(false, true) {
		return ErrBusy
	}

	h.startedAt.Store(time.Now().UnixNano())
	h.renderer.SetBusy(true)

	id := uuid.New()
	go h.runWorker(id, req)
	return nil
}

// runWorker executes one request. It opens its own store connection,
// runs the pipeline, and pushes exactly one outcome, releasing the
// connection regardless of how the pipeline ended.
func (h *Harness) runWorker(id uuid.UUID, req chat.Request) {
	start := time.Now()

	st, err := h.openStore()
	if err != nil {
		h.logger.Error("worker: open store failed", "request", id, "error", err)
		h.outcomes <- Error{ID: id, Err: fmt.Errorf("open store: %w", err)}
		return
	}
	defer st.Close()

	res, err := h.replier.GenerateReply(context.Background(), st, req)
	if err != nil {
		h.logger.Error("worker: pipeline failed", "request", id, "error", err)
		h.outcomes <- Error{ID: id, Err: err}
		return
	}

	h.outcomes <- Result{ID: id, Res: res, Elapsed: time.Since(start)}
}

// RefreshModels dispatches a model-catalog refresh. It uses the same
// worker/queue pattern but runs independently of the processing flag,
// so a refresh may legitimately overlap an in-flight generation.
func (h *Harness) RefreshModels(ctx context.Context) {
	if h.closing.Load() {
		return
	}
	go func() {
		models := h.models.ListModels(ctx, 5*time.Second)
		if len(models) == 0 {
			h.outcomes <- ModelList{Err: errors.New("could not load models from Ollama (is it running?)")}
			return
		}
		h.outcomes <- ModelList{Models: models}
	}()
}

// Run drives the foreground loop: a fixed-cadence drain of the outcome
// queue and the watchdog tick. It returns when ctx is cancelled.
func (h *Harness) Run(ctx context.Context) {
	poll := time.NewTicker(h.cfg.PollInterval)
	defer poll.Stop()
	watchdog := time.NewTicker(h.cfg.WatchdogTick)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closing.Store(true)
			return
		case <-poll.C:
			h.drain()
		case <-watchdog.C:
			h.checkWatchdog()
		}
	}
}

// drain consumes up to the batch limit of outcomes. Chat results and
// chat errors clear the processing flag; model-list items do not.
// A result arriving after a watchdog timeout is rendered normally;
// the flag is simply cleared again.
func (h *Harness) drain() {
	for i := 0; i < h.cfg.PollBatch; i++ {
		select {
		case item := <-h.outcomes:
			switch o := item.(type) {
			case Result:
				if o.Res != nil {
					h.lastLLMms.Store(o.Elapsed.Milliseconds())
				}
				h.renderer.RenderResult(o.Res, o.Elapsed)
				h.unlock()
			case Error:
				h.renderer.RenderError(o.Err)
				h.unlock()
			case ModelList:
				if o.Err != nil {
					h.renderer.RenderError(o.Err)
					continue
				}
				h.renderer.RenderModels(o.Models)
			}
		default:
			return
		}
	}
}

// checkWatchdog force-unlocks the UI when the in-flight request has
// exceeded the ceiling. This is a UI-level unlock only: the worker is
// neither cancelled nor joined, and its late outcome will still be
// drained and rendered.
func (h *Harness) checkWatchdog() {
	if !h.processing.Load() {
		return
	}
	start := h.startedAt.Load()
	if start == 0 {
		return
	}
	elapsed := time.Since(time.Unix(0, start))
	if elapsed <= h.cfg.WatchdogTimeout {
		return
	}

	h.logger.Error("watchdog: generation exceeded ceiling, unlocking UI",
		"elapsed", elapsed, "ceiling", h.cfg.WatchdogTimeout)
	h.renderer.RenderTimeout(elapsed)
	h.unlock()
}

// unlock returns the harness to Idle and resets busy indicators.
func (h *Harness) unlock() {
	h.processing.Store(false)
	h.startedAt.Store(0)
	h.renderer.SetBusy(false)
}

// Close marks the harness as shutting down; subsequent sends are
// rejected. In-flight workers are not joined; their outcomes are
// simply never drained once Run has returned.
func (h *Harness) Close() {
	h.closing.Store(true)
}

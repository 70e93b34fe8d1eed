// Package poller repeatedly fetches a job's status on a fixed cadence until
// the job reaches a terminal state, a fetch fails, or polling is cancelled.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Reality-Reimagined/TruthScope/pkg/models"
)

// DefaultInterval is the cadence used when Options.Interval is zero.
const DefaultInterval = time.Second

// ErrSuperseded is the cancellation cause when a newer Start replaces a handle.
var ErrSuperseded = errors.New("poller superseded by a newer job")

// ErrStopped is the cancellation cause of an explicit Stop.
var ErrStopped = errors.New("poller stopped")

// Fetcher returns the current snapshot of a job.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (models.Snapshot, error)
}

// State is the lifecycle of one polling handle.
type State string

const (
	StatePolling     State = "polling"
	StateSettled     State = "settled"
	StateInterrupted State = "interrupted"
	StateCancelled   State = "cancelled"
)

// Options configures a Poller.
type Options struct {
	Interval time.Duration
	// SkipInitial delays the first fetch by one interval. By default the
	// first fetch happens as soon as Start is called.
	SkipInitial bool
	// OnSnapshot receives every successfully fetched snapshot, including the
	// terminal one, together with the handle that fetched it.
	OnSnapshot func(h *Handle, snap models.Snapshot)
	// OnFailure receives the fetch error that ended polling.
	OnFailure func(h *Handle, err error)
	Logger    *slog.Logger
}

// Poller owns at most one active polling handle at a time.
type Poller struct {
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger

	mu      sync.Mutex
	current *Handle
}

// New creates a Poller.
func New(f Fetcher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{fetcher: f, opts: opts, logger: logger.With("component", "poller")}
}

// Start begins polling job id and returns its handle. Any handle started
// earlier is stopped first, so at most one job is polled at a time.
func (p *Poller) Start(ctx context.Context, id string) *Handle {
	ctx, cancel := context.WithCancelCause(ctx)
	h := &Handle{
		id:      id,
		fetcher: p.fetcher,
		opts:    p.opts,
		logger:  p.logger.With("job_id", id),
		cancel:  cancel,
		state:   StatePolling,
		done:    make(chan struct{}),
	}

	p.mu.Lock()
	prev := p.current
	p.current = h
	p.mu.Unlock()

	if prev != nil {
		prev.stop(ErrSuperseded)
	}

	go h.run(ctx)
	return h
}

// Stop stops the active handle, if any.
func (p *Poller) Stop() {
	p.mu.Lock()
	h := p.current
	p.current = nil
	p.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}

// Current returns the most recently started handle, or nil.
func (p *Poller) Current() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Handle is a running (or finished) polling task for one job.
type Handle struct {
	id      string
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger
	cancel  context.CancelCauseFunc

	// fetchMu is held from the stopped check through the end of a Fetch, so
	// once Stop returns no fetch is running and none will start.
	fetchMu sync.Mutex
	// mu serializes deliveries against Stop: once Stop returns, no callback
	// is running and none will run again.
	mu      sync.Mutex
	stopped bool
	state   State
	err     error
	fetches int

	done chan struct{}
}

// ID returns the polled job id.
func (h *Handle) ID() string { return h.id }

// Done is closed when the polling goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the polling goroutine has exited or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the fetch error for an interrupted handle or the cancellation
// cause for a cancelled one.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Fetches returns how many fetches have completed.
func (h *Handle) Fetches() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fetches
}

// Stop cancels polling. It cancels the context of an in-flight fetch and
// waits for that fetch to return; after Stop no fetch or delivery happens.
// It is idempotent and safe to call from any goroutine except from inside
// an OnSnapshot or OnFailure callback.
func (h *Handle) Stop() {
	h.stop(ErrStopped)
}

func (h *Handle) stop(cause error) {
	h.cancel(cause)

	h.fetchMu.Lock()
	defer h.fetchMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.stopped {
		h.stopped = true
		if h.state == StatePolling {
			h.state = StateCancelled
			h.err = cause
		}
	}
}

func (h *Handle) run(ctx context.Context) {
	defer close(h.done)
	defer h.cancel(nil)

	if !h.opts.SkipInitial {
		if !h.poll(ctx) {
			return
		}
	}

	ticker := time.NewTicker(h.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.markCancelled(ctx)
			return
		case <-ticker.C:
			// select picks randomly when a tick and cancellation are both ready.
			if ctx.Err() != nil {
				h.markCancelled(ctx)
				return
			}
			if !h.poll(ctx) {
				return
			}
			// A fetch slower than the interval skips the ticks it overlapped.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// poll performs one fetch and delivers it. It returns false once polling
// must end.
func (h *Handle) poll(ctx context.Context) bool {
	snap, ok, err := h.fetch(ctx)
	if !ok {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}
	if ctx.Err() != nil {
		h.markCancelledLocked(ctx)
		return false
	}
	h.fetches++

	if err != nil {
		h.stopped = true
		h.state = StateInterrupted
		h.err = err
		h.logger.Warn("status fetch failed, polling stopped", "error", err, "fetches", h.fetches)
		if h.opts.OnFailure != nil {
			h.opts.OnFailure(h, err)
		}
		return false
	}

	h.logger.Debug("status fetched",
		"status", snap.State.Status,
		"progress", snap.State.Progress,
	)
	if h.opts.OnSnapshot != nil {
		h.opts.OnSnapshot(h, snap)
	}

	if snap.State.Status.IsTerminal() {
		h.stopped = true
		h.state = StateSettled
		h.logger.Info("job settled", "status", snap.State.Status, "fetches", h.fetches)
		return false
	}
	return true
}

// fetch issues one Fetch unless the handle was stopped or cancelled first.
func (h *Handle) fetch(ctx context.Context) (models.Snapshot, bool, error) {
	h.fetchMu.Lock()
	defer h.fetchMu.Unlock()

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return models.Snapshot{}, false, nil
	}
	if ctx.Err() != nil {
		h.markCancelledLocked(ctx)
		h.mu.Unlock()
		return models.Snapshot{}, false, nil
	}
	h.mu.Unlock()

	snap, err := h.fetcher.Fetch(ctx, h.id)
	return snap, true, err
}

// markCancelled records cancellation by the parent context, which is how a
// session teardown ends polling.
func (h *Handle) markCancelled(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.markCancelledLocked(ctx)
}

func (h *Handle) markCancelledLocked(ctx context.Context) {
	if h.stopped {
		return
	}
	h.stopped = true
	h.state = StateCancelled
	h.err = context.Cause(ctx)
	h.logger.Debug("polling cancelled", "cause", h.err)
}

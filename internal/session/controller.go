// Package session owns the state of one analysis session: what was
// submitted, what the backend last reported, and whether polling is active.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Reality-Reimagined/TruthScope/internal/analyzer"
	"github.com/Reality-Reimagined/TruthScope/internal/poller"
	"github.com/Reality-Reimagined/TruthScope/internal/steps"
	"github.com/Reality-Reimagined/TruthScope/pkg/models"
)

const (
	uploadingFileMessage = "Uploading video..."
	uploadingURLMessage  = "Processing YouTube URL..."
	initialProgress      = 0.1

	// URLTitle is the display title of URL submissions.
	URLTitle = "YouTube Video"

	subscriberBuffer = 16
	recordQueue      = 64
	recordTimeout    = 5 * time.Second
)

var (
	// ErrBusy is returned when a submission arrives while a job is in flight.
	ErrBusy = errors.New("an analysis is already in progress")
	// ErrSuperseded is returned by a submission that a Reset overtook.
	ErrSuperseded = errors.New("submission superseded by a reset")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// Options configures a Controller.
type Options struct {
	// Interval between status fetches; poller.DefaultInterval when zero.
	Interval time.Duration
	Recorder Recorder
	Logger   *slog.Logger
	// Now is the clock used for local timestamps.
	Now func() time.Time
}

// Controller serializes every transition of a session's State.
type Controller struct {
	client   analyzer.Client
	poller   *poller.Poller
	tracker  *steps.Tracker
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	ctx         context.Context
	cancel      context.CancelFunc
	records     chan record
	recordsDone chan struct{}

	mu           sync.Mutex
	state        State
	gen          uint64
	handle       *poller.Handle
	tracked      bool
	cancelSubmit context.CancelFunc
	subs         map[uint64]chan State
	nextSub      uint64
	closed       bool
}

type record struct {
	submission *models.Submission
	snapshot   *models.Snapshot
}

// New creates an idle Controller. Call Close to stop polling and flush
// pending records.
func New(client analyzer.Client, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = NopRecorder{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		client:      client,
		tracker:     steps.NewTracker(),
		recorder:    recorder,
		logger:      logger.With("component", "session"),
		now:         now,
		ctx:         ctx,
		cancel:      cancel,
		records:     make(chan record, recordQueue),
		recordsDone: make(chan struct{}),
		subs:        make(map[uint64]chan State),
	}
	c.state = State{Phase: PhaseIdle, UpdatedAt: now()}
	c.poller = poller.New(client, poller.Options{
		Interval:    opts.Interval,
		SkipInitial: true,
		OnSnapshot:  c.onSnapshot,
		OnFailure:   c.onFailure,
		Logger:      logger,
	})

	go c.runRecorder()
	return c
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// SubmitFile uploads a local video and starts tracking it. It returns once
// the backend accepted the upload and the first status arrived.
func (c *Controller) SubmitFile(ctx context.Context, name string, body io.Reader) (State, error) {
	video := models.Video{Title: name, Source: models.SourceUpload}
	return c.submit(ctx, analyzer.FileInput{Name: name, Body: body}, video, uploadingFileMessage, true)
}

// SubmitURL submits a video-sharing URL and starts tracking it.
func (c *Controller) SubmitURL(ctx context.Context, rawURL string) (State, error) {
	video := models.Video{Title: URLTitle, Source: models.SourceYouTube, URL: analyzer.EmbedURL(rawURL)}
	return c.submit(ctx, analyzer.URLInput{URL: rawURL}, video, uploadingURLMessage, false)
}

func (c *Controller) submit(ctx context.Context, in analyzer.Input, video models.Video, message string, tracked bool) (State, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{}, ErrClosed
	}
	if c.state.Busy() {
		st := c.state.Clone()
		c.mu.Unlock()
		return st, ErrBusy
	}
	c.gen++
	gen := c.gen
	c.tracked = tracked
	prev := c.handle
	c.handle = nil
	submitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelSubmit = cancel

	job := models.Job{
		Status:    models.StatusUploading,
		Progress:  initialProgress,
		Message:   message,
		Timestamp: c.timestamp(),
	}
	if tracked {
		job = job.WithSteps(c.tracker.Begin())
	}
	c.state = State{Phase: PhaseSubmitting, UpdatedAt: c.now(), job: job, hasJob: true}
	c.publishLocked()
	c.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	id, err := c.client.Submit(submitCtx, in)
	if err != nil {
		return c.failSubmission(gen, tracked, err)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return State{}, ErrSuperseded
	}
	c.state.JobID = id
	c.state.video, c.state.hasVideo = video, true
	if tracked {
		c.state.job = c.state.job.WithSteps(c.tracker.MarkUploaded())
	}
	c.state.UpdatedAt = c.now()
	c.enqueueLocked(record{submission: &models.Submission{JobID: id, Video: video, SubmittedAt: c.now()}})
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("analysis submitted", "job_id", id, "source", video.Source)

	snap, err := c.client.Fetch(submitCtx, id)
	if err != nil {
		return c.failSubmission(gen, tracked, err)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return State{}, ErrSuperseded
	}
	c.applyLocked(snap)
	if snap.State.Status.IsTerminal() {
		c.settleLocked()
		c.cancelSubmit = nil
		st := c.state.Clone()
		c.publishLocked()
		c.mu.Unlock()
		return st, nil
	}
	c.state.Phase = PhasePolling
	c.cancelSubmit = nil
	c.publishLocked()
	c.mu.Unlock()

	// Start may stop an older handle whose callback is waiting on c.mu, so
	// it must run unlocked.
	h := c.poller.Start(c.ctx, id)

	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		h.Stop()
		return State{}, ErrSuperseded
	}
	if c.handle == nil {
		c.handle = h
	}
	st := c.state.Clone()
	c.mu.Unlock()
	return st, nil
}

// failSubmission surfaces a submission-time error: every step fails, the
// job reads as errored, and no job id is kept.
func (c *Controller) failSubmission(gen uint64, tracked bool, err error) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return State{}, ErrSuperseded
	}

	msg := err.Error()
	job := models.Job{
		Status:    models.StatusError,
		Progress:  0,
		Message:   msg,
		Timestamp: c.timestamp(),
	}
	if tracked {
		job = job.WithSteps(c.tracker.MarkFailed())
	}
	c.state = State{Phase: PhaseFailed, Error: msg, UpdatedAt: c.now(), job: job, hasJob: true}
	c.cancelSubmit = nil
	c.publishLocked()

	c.logger.Warn("submission failed", "error", err)
	return c.state.Clone(), err
}

// Reset abandons the current job and returns to idle. Polling for the
// previous job has stopped when Reset returns.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.tracked = false
	h := c.handle
	c.handle = nil
	if c.cancelSubmit != nil {
		c.cancelSubmit()
		c.cancelSubmit = nil
	}
	c.state = State{Phase: PhaseIdle, UpdatedAt: c.now()}
	c.publishLocked()
	c.mu.Unlock()

	if h != nil {
		h.Stop()
	}
	c.logger.Info("session reset")
}

// Close stops polling, closes every subscription, and waits for pending
// records to be written.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	h := c.handle
	c.handle = nil
	if c.cancelSubmit != nil {
		c.cancelSubmit()
		c.cancelSubmit = nil
	}
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	close(c.records)
	c.mu.Unlock()

	if h != nil {
		h.Stop()
	}
	c.poller.Stop()
	c.cancel()
	<-c.recordsDone
}

// Subscribe streams a copy of the state after every transition, starting
// with the current one. A slow reader only loses intermediate states, never
// the latest. Call the returned func to unsubscribe.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBuffer)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.state.Clone()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// Wait blocks until the session is no longer busy and returns that state.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return c.State(), ctx.Err()
		case st, ok := <-ch:
			if !ok {
				return c.State(), ErrClosed
			}
			if !st.Busy() {
				return st, nil
			}
		}
	}
}

func (c *Controller) onSnapshot(h *poller.Handle, snap models.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ownsLocked(h) {
		c.logger.Debug("discarding status from superseded poller", "job_id", h.ID())
		return
	}
	c.applyLocked(snap)
	if snap.State.Status.IsTerminal() {
		c.settleLocked()
		c.handle = nil
	}
	c.publishLocked()
}

func (c *Controller) onFailure(h *poller.Handle, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ownsLocked(h) {
		return
	}
	c.state.Phase = PhaseInterrupted
	c.state.Error = analyzer.DefaultFetchMessage
	c.state.UpdatedAt = c.now()
	c.handle = nil
	c.publishLocked()

	c.logger.Warn("status polling stopped", "job_id", h.ID(), "error", err)
}

// ownsLocked reports whether h polls the job this session is waiting on.
// A handle can deliver before submit records it, so an unrecorded handle
// for the current job is adopted.
func (c *Controller) ownsLocked(h *poller.Handle) bool {
	if c.closed || c.state.Phase != PhasePolling || c.state.JobID != h.ID() {
		return false
	}
	if c.handle == nil {
		c.handle = h
	}
	return c.handle == h
}

// applyLocked overwrites the visible job with a backend snapshot. For file
// uploads the local checklist replaces whatever steps the backend reports;
// URL submissions show the backend's steps, if any.
func (c *Controller) applyLocked(snap models.Snapshot) {
	next := snap.State.Clone()
	if c.state.hasJob {
		prev := c.state.job
		if !prev.Status.CanTransition(next.Status) {
			c.logger.Warn("backend status moved backwards",
				"job_id", c.state.JobID, "from", prev.Status, "to", next.Status)
		}
	}
	if c.tracked {
		next = next.WithSteps(c.tracker.Steps())
	}
	c.state.job, c.state.hasJob = next, true
	if results, ok := snap.Results(); ok {
		c.state.results, c.state.hasResults = results, true
	}
	c.state.UpdatedAt = c.now()
	c.enqueueLocked(record{snapshot: &snap})
}

func (c *Controller) settleLocked() {
	c.state.Phase = PhaseSettled
	if c.state.job.Status == models.StatusError {
		c.state.Error = c.state.job.Message
	}
	c.logger.Info("analysis settled", "job_id", c.state.JobID, "status", c.state.job.Status)
}

func (c *Controller) publishLocked() {
	st := c.state.Clone()
	for _, ch := range c.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		// Full: drop the oldest pending state to make room for the newest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

func (c *Controller) enqueueLocked(r record) {
	if c.closed {
		return
	}
	if _, nop := c.recorder.(NopRecorder); nop {
		return
	}
	select {
	case c.records <- r:
	default:
		c.logger.Warn("record queue full, dropping record", "job_id", c.state.JobID)
	}
}

func (c *Controller) runRecorder() {
	defer close(c.recordsDone)
	for r := range c.records {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		var err error
		switch {
		case r.submission != nil:
			err = c.recorder.RecordSubmission(ctx, *r.submission)
		case r.snapshot != nil:
			err = c.recorder.RecordSnapshot(ctx, *r.snapshot)
		}
		cancel()
		if err != nil {
			c.logger.Error("failed to record analysis", "error", err)
		}
	}
}

func (c *Controller) timestamp() string {
	return c.now().UTC().Format(time.RFC3339)
}

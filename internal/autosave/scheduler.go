// Package autosave persists the open note after the user stops typing.
package autosave

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/puffnotes/internal/note"
)

// DefaultInterval is the quiet period before a write.
const DefaultInterval = 750 * time.Millisecond

// State is what the scheduler inspects when the quiet period ends.
type State struct {
	SessionID        string
	Saved            bool
	DirectoryGranted bool
	ProposalActive   bool
	Name             string
	Body             string
}

// Eligible reports whether State may be written, and if not, why.
func (s State) Eligible() (bool, string) {
	switch {
	case !s.Saved:
		return false, "note has never been saved"
	case !s.DirectoryGranted:
		return false, "no directory granted"
	case strings.TrimSpace(s.Name) == "":
		return false, "blank name"
	case s.ProposalActive:
		return false, "rewrite proposal awaiting review"
	}
	return true, ""
}

// Source supplies the current editor state.
type Source interface {
	AutosaveState() State
}

// Writer overwrites a store entry.
type Writer interface {
	Write(ctx context.Context, name, text string) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithFailureHandler is called with every failed write. Failures are
// otherwise only logged.
func WithFailureHandler(fn func(State, error)) Option {
	return func(s *Scheduler) { s.onFailure = fn }
}

// WithSavedHandler is called after every successful write.
func WithSavedHandler(fn func(State)) Option {
	return func(s *Scheduler) { s.onSaved = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler is a cancellable delayed write, re-armed on every change so
// only the last state in a burst reaches the store.
type Scheduler struct {
	interval time.Duration
	src      Source
	w        Writer
	logger   *slog.Logger

	onFailure func(State, error)
	onSaved   func(State)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
	running sync.WaitGroup

	writeMu sync.Mutex
}

// New returns an idle scheduler. Nothing happens until Touch is called.
func New(interval time.Duration, src Source, w Writer, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		interval: interval,
		src:      src,
		w:        w,
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Touch (re)starts the quiet period.
func (s *Scheduler) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.interval, func() { s.fire(gen) })
}

// Cancel drops a pending write without stopping the scheduler.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// Pending reports whether a write is scheduled.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Stop cancels any pending write and waits for one in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.mu.Unlock()

	s.cancel()
	s.running.Wait()
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		// A newer change re-armed the timer.
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	s.flush()
}

func (s *Scheduler) flush() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	st := s.src.AutosaveState()
	if ok, reason := st.Eligible(); !ok {
		s.logger.Debug("autosave: skipped", slog.String("reason", reason))
		return
	}

	entry := note.FileName(st.Name)
	if err := s.w.Write(s.ctx, entry, st.Body); err != nil {
		s.logger.Warn("autosave: write failed",
			slog.String("name", entry),
			slog.String("error", err.Error()))
		if s.onFailure != nil {
			s.onFailure(st, err)
		}
		return
	}
	s.logger.Debug("autosave: written", slog.String("name", entry), slog.Int("bytes", len(st.Body)))
	if s.onSaved != nil {
		s.onSaved(st)
	}
}

// Package rewrite stages AI rewrites of a note for review before they touch
// the draft.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/puffnotes/internal/apperr"
)

// DefaultTimeout bounds a single rewrite call.
const DefaultTimeout = 90 * time.Second

// Outcome describes what an Invoke or Regenerate call did.
type Outcome int

const (
	// Ignored means the request was dropped: blank input, or another call
	// is already in flight.
	Ignored Outcome = iota
	// Proposed means a result is now staged for review.
	Proposed
	// Discarded means the call completed after the proposal was cleared
	// (new note, another file opened); its result was dropped.
	Discarded
)

func (o Outcome) String() string {
	switch o {
	case Proposed:
		return "proposed"
	case Discarded:
		return "discarded"
	default:
		return "ignored"
	}
}

// Snapshot is a copy of the proposal state.
type Snapshot struct {
	Phase        Phase  `json:"phase"`
	OriginalBody string `json:"original_body,omitempty"`
	ProposedBody string `json:"proposed_body,omitempty"`
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithFallbackKey sets the owner-supplied key used when the user has none.
func WithFallbackKey(key string) Option {
	return func(w *Workflow) { w.fallback = strings.TrimSpace(key) }
}

// WithTimeout bounds each call. Expiry is reported as a generic failure.
func WithTimeout(d time.Duration) Option {
	return func(w *Workflow) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// WithObserver registers fn to be called after every phase change, outside
// the workflow's lock. err is the classified error when a call failed.
// fn must not block.
func WithObserver(fn func(s Snapshot, err error)) Option {
	return func(w *Workflow) { w.observer = fn }
}

// Workflow is the proposal state machine for one editor. At most one call
// is in flight at a time.
type Workflow struct {
	svc      Service
	keys     KeySource
	fallback string
	timeout  time.Duration
	logger   *slog.Logger
	observer func(Snapshot, error)

	mu       sync.Mutex
	phase    Phase
	original string
	proposed string
	epoch    uint64
}

// New returns an idle workflow.
func New(svc Service, keys KeySource, opts ...Option) *Workflow {
	w := &Workflow{
		svc:     svc,
		keys:    keys,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Snapshot returns the current proposal state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot()
}

func (w *Workflow) snapshot() Snapshot {
	return Snapshot{Phase: w.phase, OriginalBody: w.original, ProposedBody: w.proposed}
}

func (w *Workflow) notify(s Snapshot, err error) {
	if w.observer != nil {
		w.observer(s, err)
	}
}

// Active reports whether a proposal is pending or staged. While it is, the
// draft is read-only and autosave is suspended.
func (w *Workflow) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase == Pending || w.phase == Staged
}

// Staged returns the proposal text when one awaits review.
func (w *Workflow) Staged() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase != Staged {
		return "", false
	}
	return w.proposed, true
}

// Call is a request that has already moved the workflow to Pending.
type Call struct {
	epoch  uint64
	key    string
	kind   KeyKind
	source string
}

// Invoke snapshots body as the original and requests a rewrite of it.
// Blank bodies and calls made while a proposal exists are ignored.
func (w *Workflow) Invoke(ctx context.Context, body string) (Outcome, error) {
	c, err := w.Begin(ctx, body)
	if c == nil {
		return Ignored, err
	}
	return w.Run(ctx, c)
}

// Begin snapshots body as the original and moves to Pending without
// calling the service. Callers that guard body with their own lock hold it
// across Begin, so no edit can land between the snapshot and the phase
// change. A nil Call means the request was ignored or refused.
func (w *Workflow) Begin(ctx context.Context, body string) (*Call, error) {
	w.mu.Lock()
	if strings.TrimSpace(body) == "" || w.phase != Idle {
		w.mu.Unlock()
		return nil, nil
	}
	key, kind, err := w.selectKey(ctx)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	if err := w.move(evInvoke); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	w.original = body
	w.proposed = ""
	c := &Call{epoch: w.epoch, key: key, kind: kind, source: body}
	snap := w.snapshot()
	w.mu.Unlock()

	w.notify(snap, nil)
	return c, nil
}

// Run performs a call started by Begin and stages its result. A Reset in
// between makes the result Discarded.
func (w *Workflow) Run(ctx context.Context, c *Call) (Outcome, error) {
	return w.call(ctx, c.epoch, c.key, c.kind, c.source)
}

// Regenerate re-requests a rewrite of the original snapshot, never of the
// staged text.
func (w *Workflow) Regenerate(ctx context.Context) (Outcome, error) {
	w.mu.Lock()
	if w.phase != Staged || strings.TrimSpace(w.original) == "" {
		w.mu.Unlock()
		return Ignored, nil
	}
	key, kind, err := w.selectKey(ctx)
	if err != nil {
		// The staged proposal stays reviewable.
		w.mu.Unlock()
		return Ignored, err
	}
	if err := w.move(evRegenerate); err != nil {
		w.mu.Unlock()
		return Ignored, err
	}
	source := w.original
	w.proposed = ""
	epoch := w.epoch
	snap := w.snapshot()
	w.mu.Unlock()

	w.notify(snap, nil)
	return w.call(ctx, epoch, key, kind, source)
}

// Accept clears a staged proposal and returns its text for the caller to
// commit to the draft. It is a no-op unless a proposal is staged.
func (w *Workflow) Accept() (string, bool) {
	w.mu.Lock()
	if w.phase != Staged {
		w.mu.Unlock()
		return "", false
	}
	text := w.proposed
	_ = w.move(evAccept)
	w.clear()
	snap := w.snapshot()
	w.mu.Unlock()

	w.notify(snap, nil)
	return text, true
}

// Reject drops a staged proposal. It is a no-op unless one is staged.
func (w *Workflow) Reject() bool {
	w.mu.Lock()
	if w.phase != Staged {
		w.mu.Unlock()
		return false
	}
	_ = w.move(evReject)
	w.clear()
	snap := w.snapshot()
	w.mu.Unlock()

	w.notify(snap, nil)
	return true
}

// Reset clears any proposal. A call still in flight resolves into nothing.
func (w *Workflow) Reset() {
	w.mu.Lock()
	was := w.phase
	_ = w.move(evReset)
	w.clear()
	w.epoch++
	snap := w.snapshot()
	w.mu.Unlock()

	if was != Idle {
		w.notify(snap, nil)
	}
}

func (w *Workflow) call(ctx context.Context, epoch uint64, key string, kind KeyKind, source string) (Outcome, error) {
	cctx, cancel := context.WithTimeout(ctx, w.timeout)
	text, callErr := w.svc.Rewrite(cctx, key, source)
	cancel()

	w.mu.Lock()
	if w.epoch != epoch || w.phase != Pending {
		w.mu.Unlock()
		w.logger.Info("rewrite: result dropped, proposal was cleared")
		return Discarded, nil
	}

	if callErr != nil {
		_ = w.move(evFail)
		w.proposed = ""
		err := classify(callErr, kind)
		_ = w.move(evReport)
		w.clear()
		snap := w.snapshot()
		w.mu.Unlock()

		w.logger.Warn("rewrite: request failed",
			slog.String("key", kind.String()),
			slog.String("error", callErr.Error()))
		w.notify(snap, err)
		return Ignored, err
	}

	_ = w.move(evSucceed)
	w.proposed = text
	snap := w.snapshot()
	w.mu.Unlock()

	w.notify(snap, nil)
	return Proposed, nil
}

// selectKey prefers the user's key and falls back to the owner's.
// Caller holds w.mu.
func (w *Workflow) selectKey(ctx context.Context) (string, KeyKind, error) {
	if w.keys != nil {
		key, err := w.keys.UserKey(ctx)
		if err != nil {
			w.logger.Warn("rewrite: reading user key failed", slog.String("error", err.Error()))
		} else if key = strings.TrimSpace(key); key != "" {
			return key, UserKey, nil
		}
	}
	if w.fallback != "" {
		return w.fallback, FallbackKey, nil
	}
	return "", FallbackKey, apperr.ErrNoCredential
}

func (w *Workflow) move(ev event) error {
	to, err := next(w.phase, ev)
	if err != nil {
		return err
	}
	w.phase = to
	return nil
}

func (w *Workflow) clear() {
	w.original = ""
	w.proposed = ""
}

// authOrRateLimiter is implemented by service errors that carry an HTTP
// status, such as *llm.APIError.
type authOrRateLimiter interface {
	AuthOrRateLimit() bool
}

func classify(err error, kind KeyKind) error {
	var ar authOrRateLimiter
	if errors.As(err, &ar) && ar.AuthOrRateLimit() {
		if kind == FallbackKey {
			return fmt.Errorf("%w: %w", apperr.ErrFallbackKeyRejected, err)
		}
		return fmt.Errorf("%w: %w", apperr.ErrUserKeyRejected, err)
	}
	return fmt.Errorf("%w: %w", apperr.ErrRewriteFailed, err)
}

// Package watch reports changes to notes in the granted folder.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/puffnotes/internal/note"
)

// DefaultDebounce coalesces the event bursts produced by a single save.
const DefaultDebounce = 100 * time.Millisecond

// Kind is the type of change to a note entry.
type Kind string

const (
	Created Kind = "created"
	Updated Kind = "updated"
	Removed Kind = "removed"
)

// Change is one debounced change to a note entry.
type Change struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

// Watcher follows one folder at a time. The folder can be swapped while
// Run is active.
type Watcher struct {
	logger   *slog.Logger
	debounce time.Duration
	onChange func(Change)
	rootCh   chan string
}

// New returns a Watcher that calls onChange from the Run goroutine.
func New(logger *slog.Logger, debounce time.Duration, onChange func(Change)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		logger:   logger,
		debounce: debounce,
		onChange: onChange,
		rootCh:   make(chan string, 1),
	}
}

// SetRoot switches the watched folder. Only the latest call is honoured if
// several arrive before Run picks them up. An empty root stops watching.
func (w *Watcher) SetRoot(root string) {
	for {
		select {
		case w.rootCh <- root:
			return
		default:
			select {
			case <-w.rootCh:
			default:
			}
		}
	}
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		fw     *fsnotify.Watcher
		events <-chan fsnotify.Event
		errs   <-chan error
		root   string
	)
	stop := func() {
		if fw != nil {
			fw.Close()
		}
		fw, events, errs = nil, nil, nil
	}
	defer stop()

	pending := make(map[string]Kind)
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case next := <-w.rootCh:
			stop()
			clear(pending)
			root = next
			if root == "" {
				continue
			}
			nw, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			if err := nw.Add(root); err != nil {
				nw.Close()
				w.logger.Warn("watcher: cannot watch folder",
					slog.String("root", root),
					slog.String("error", err.Error()))
				continue
			}
			fw, events, errs = nw, nw.Events, nw.Errors
			w.logger.Info("watcher: started", slog.String("root", root))

		case ev, ok := <-events:
			if !ok {
				stop()
				continue
			}
			if filepath.Clean(ev.Name) == filepath.Clean(root) {
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					w.logger.Warn("watcher: folder went away", slog.String("root", root))
					stop()
				}
				continue
			}
			name, ok := entryName(ev.Name)
			if !ok {
				continue
			}

			kind := Updated
			switch {
			case ev.Op&fsnotify.Create != 0:
				kind = Created
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				kind = Removed
			case ev.Op&fsnotify.Write == 0:
				continue
			}
			pending[name] = merge(pending[name], kind)

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			for name, kind := range pending {
				if w.onChange != nil {
					w.onChange(Change{Kind: kind, Name: name})
				}
			}
			clear(pending)

		case err, ok := <-errs:
			if !ok {
				continue
			}
			w.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// merge folds a new event into what is already pending for an entry.
func merge(prev, next Kind) Kind {
	switch {
	case prev == "":
		return next
	case next == Removed:
		return Removed
	case prev == Removed:
		// Deleted then recreated within the window.
		return Updated
	case prev == Created:
		return Created
	}
	return next
}

// entryName maps a path to a note display name, skipping temp files and
// non-note entries.
func entryName(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, note.Ext) {
		return "", false
	}
	return note.DisplayName(base), true
}

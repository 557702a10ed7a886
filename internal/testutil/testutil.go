// Package testutil provides shared fixtures for editor tests.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/starford/puffnotes/internal/prefs"
	"github.com/starford/puffnotes/internal/sse"
	"github.com/starford/puffnotes/internal/storage"
)

// MemFolder returns a handle on an empty in-memory folder.
func MemFolder(t *testing.T) (*storage.Handle, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("/notes", 0o755); err != nil {
		t.Fatal(err)
	}
	h, err := storage.NewHandle(fsys, "/notes")
	if err != nil {
		t.Fatal(err)
	}
	return h, fsys
}

// GrantedStore returns a store already holding an in-memory folder.
func GrantedStore(t *testing.T) (*storage.Store, afero.Fs) {
	t.Helper()
	h, fsys := MemFolder(t)
	s := storage.NewStore()
	s.Grant(h)
	return s, fsys
}

// Prefs opens a settings database in a temp dir.
func Prefs(t *testing.T) *prefs.DB {
	t.Helper()
	db, err := prefs.Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Picker always grants h.
func Picker(h *storage.Handle) storage.Picker {
	return storage.PickerFunc(func(context.Context) (*storage.Handle, error) { return h, nil })
}

// CancelPicker behaves like a user dismissing the folder dialog.
func CancelPicker() storage.Picker {
	return storage.PickerFunc(func(context.Context) (*storage.Handle, error) {
		return nil, storage.ErrPickCancelled
	})
}

// RewriteCall records one request made to a Rewriter.
type RewriteCall struct {
	Key  string
	Text string
}

// Rewriter is a scripted rewrite.Service. With no Reply it echoes the input
// prefixed with "rewritten: ". A non-nil Gate holds calls until it is closed.
type Rewriter struct {
	Reply func(n int, key, text string) (string, error)
	Gate  chan struct{}

	mu    sync.Mutex
	calls []RewriteCall
}

// Rewrite implements rewrite.Service.
func (r *Rewriter) Rewrite(ctx context.Context, key, text string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, RewriteCall{Key: key, Text: text})
	n := len(r.calls)
	gate := r.Gate
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if r.Reply != nil {
		return r.Reply(n, key, text)
	}
	return "rewritten: " + text, nil
}

// Calls returns the requests made so far.
func (r *Rewriter) Calls() []RewriteCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RewriteCall(nil), r.calls...)
}

// Events records published events.
type Events struct {
	mu     sync.Mutex
	events []sse.Event
	lists  []string
}

func (e *Events) Publish(ev sse.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *Events) PublishNotesChanged(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lists = append(e.lists, name)
}

// Types returns the event types in publish order.
func (e *Events) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Type
	}
	return out
}

// Count returns how many events of typ were published.
func (e *Events) Count(typ string) int {
	n := 0
	for _, t := range e.Types() {
		if t == typ {
			n++
		}
	}
	return n
}

// Last returns the most recent event of typ.
func (e *Events) Last(typ string) (sse.Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.events) - 1; i >= 0; i-- {
		if e.events[i].Type == typ {
			return e.events[i], true
		}
	}
	return sse.Event{}, false
}

// NotesChanged returns the names passed to PublishNotesChanged.
func (e *Events) NotesChanged() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.lists...)
}

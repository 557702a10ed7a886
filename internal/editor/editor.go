// Package editor coordinates the note session, directory store, autosave,
// rewrite workflow and exporter. Every user-facing surface (HTTP, MCP, CLI)
// drives the application through an Editor.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/puffnotes/internal/apperr"
	"github.com/starford/puffnotes/internal/autosave"
	"github.com/starford/puffnotes/internal/export"
	"github.com/starford/puffnotes/internal/note"
	"github.com/starford/puffnotes/internal/parser"
	"github.com/starford/puffnotes/internal/rewrite"
	"github.com/starford/puffnotes/internal/sse"
	"github.com/starford/puffnotes/internal/storage"
)

// Publisher receives editor events.
type Publisher interface {
	Publish(sse.Event)
	PublishNotesChanged(name string)
}

// Settings persists user preferences.
type Settings interface {
	UserKey(ctx context.Context) (string, error)
	SetUserKey(ctx context.Context, key string) error
	Theme(ctx context.Context) (string, error)
	SetTheme(ctx context.Context, name string) error
	SetLastDirectory(ctx context.Context, dir string) error
}

// Deps are the collaborators of an Editor. Store and Rewriter are required.
type Deps struct {
	Store            *storage.Store
	Rewriter         rewrite.Service
	FallbackKey      string
	RewriteTimeout   time.Duration
	AutosaveInterval time.Duration
	Exporter         *export.Exporter
	Theme            export.Theme
	Settings         Settings
	Events           Publisher
	Logger           *slog.Logger
	// OnDirectory is called with the new root after a folder is granted.
	OnDirectory func(root string)
}

// State is a read-only view of the whole editor.
type State struct {
	Session   note.Snapshot    `json:"session"`
	Rewrite   rewrite.Snapshot `json:"rewrite"`
	Directory string           `json:"directory"`
	Root      string           `json:"root,omitempty"`
	Exporting bool             `json:"exporting"`
}

// Entry is one note in the folder listing.
type Entry struct {
	Name string `json:"name"`
	parser.Summary
}

// Editor is safe for concurrent use.
type Editor struct {
	store       *storage.Store
	workflow    *rewrite.Workflow
	autosave    *autosave.Scheduler
	exporter    *export.Exporter
	theme       export.Theme
	settings    Settings
	events      Publisher
	logger      *slog.Logger
	onDirectory func(string)

	exporting atomic.Bool

	mu      sync.Mutex
	session *note.Session
}

// New returns an Editor holding a fresh untitled note.
func New(d Deps) *Editor {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	theme := d.Theme
	if theme.Name == "" {
		theme = export.Default
	}
	exporter := d.Exporter
	if exporter == nil {
		exporter = export.New(export.DefaultOptions(), logger)
	}

	e := &Editor{
		store:       d.Store,
		exporter:    exporter,
		theme:       theme,
		settings:    d.Settings,
		events:      d.Events,
		logger:      logger,
		onDirectory: d.OnDirectory,
		session:     note.New(),
	}

	var keys rewrite.KeySource
	if d.Settings != nil {
		keys = d.Settings
	}
	e.workflow = rewrite.New(d.Rewriter, keys,
		rewrite.WithFallbackKey(d.FallbackKey),
		rewrite.WithTimeout(d.RewriteTimeout),
		rewrite.WithLogger(logger),
		rewrite.WithObserver(e.rewriteChanged),
	)
	e.autosave = autosave.New(d.AutosaveInterval, e, d.Store,
		autosave.WithLogger(logger),
		autosave.WithSavedHandler(e.autosaved),
		autosave.WithFailureHandler(e.autosaveFailed),
	)
	return e
}

// Close stops autosave and waits for an in-progress write.
func (e *Editor) Close() {
	e.autosave.Stop()
}

// State returns the current editor state.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Editor) stateLocked() State {
	return State{
		Session:   e.session.Snapshot(),
		Rewrite:   e.workflow.Snapshot(),
		Directory: e.store.State().String(),
		Root:      e.store.Root(),
		Exporting: e.exporting.Load(),
	}
}

// NewNote replaces the session with an empty untitled note and drops any
// proposal.
func (e *Editor) NewNote() State {
	e.mu.Lock()
	e.autosave.Cancel()
	e.workflow.Reset()
	e.session = note.New()
	st := e.stateLocked()
	e.mu.Unlock()

	e.publish(sse.SessionChanged, st)
	return st
}

// Open loads name from the folder. On failure the current session is kept
// and the error wraps apperr.ErrLoad.
func (e *Editor) Open(ctx context.Context, name string) (State, error) {
	entry := note.FileName(name)
	text, err := e.store.Read(ctx, entry)
	if err != nil {
		e.checkRevoked(err)
		return State{}, fmt.Errorf("%w: %s: %w", apperr.ErrLoad, note.DisplayName(entry), err)
	}

	e.mu.Lock()
	e.autosave.Cancel()
	e.workflow.Reset()
	e.session = note.Opened(entry, text)
	st := e.stateLocked()
	e.mu.Unlock()

	e.logger.Info("editor: opened", slog.String("name", st.Session.Name))
	e.publish(sse.SessionChanged, st)
	return st, nil
}

// Edit replaces the draft. It is refused while a proposal is pending or
// staged, since the proposal is what the user is looking at.
func (e *Editor) Edit(text string) bool {
	e.mu.Lock()
	if e.workflow.Active() {
		e.mu.Unlock()
		return false
	}
	e.session.SetBody(text)
	e.mu.Unlock()

	e.autosave.Touch()
	return true
}

// Rename changes the note name without writing.
func (e *Editor) Rename(name string) State {
	e.mu.Lock()
	e.session.SetName(name)
	st := e.stateLocked()
	e.mu.Unlock()

	e.autosave.Touch()
	e.publish(sse.SessionChanged, st)
	return st
}

// Save writes the draft under its name. Without a granted folder, picker is
// asked for one first; a cancelled pick returns (false, nil) and changes
// nothing.
func (e *Editor) Save(ctx context.Context, picker storage.Picker) (bool, error) {
	if !e.store.Granted() {
		ok, err := e.GrantDirectory(ctx, picker)
		if err != nil || !ok {
			return false, err
		}
	}

	e.mu.Lock()
	id, name, body := e.session.ID(), e.session.Name(), e.session.Body()
	e.mu.Unlock()

	if err := note.ValidateName(name); err != nil {
		return false, err
	}
	entry := note.FileName(name)
	if err := e.store.Write(ctx, entry, body); err != nil {
		e.checkRevoked(err)
		return false, err
	}

	e.mu.Lock()
	if e.session.ID() == id {
		if err := e.session.MarkSaved(body); err != nil {
			e.mu.Unlock()
			return false, err
		}
	}
	e.mu.Unlock()

	e.logger.Info("editor: saved", slog.String("name", entry), slog.Int("bytes", len(body)))
	e.publish(sse.NoteSaved, map[string]any{"name": note.DisplayName(entry), "autosave": false})
	e.notesChanged(note.DisplayName(entry))
	return true, nil
}

// GrantDirectory asks picker for a folder and makes it the store's root.
// A cancelled pick returns (false, nil).
func (e *Editor) GrantDirectory(ctx context.Context, picker storage.Picker) (bool, error) {
	if picker == nil {
		return false, apperr.ErrNoDirectoryGranted
	}
	h, err := picker.Pick(ctx)
	if errors.Is(err, storage.ErrPickCancelled) {
		e.logger.Info("editor: folder pick cancelled")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.Grant(ctx, h)
	return true, nil
}

// Grant installs h as the store's folder.
func (e *Editor) Grant(ctx context.Context, h *storage.Handle) {
	e.store.Grant(h)
	root := h.Root()
	e.logger.Info("editor: folder granted", slog.String("root", root))

	if e.settings != nil {
		if err := e.settings.SetLastDirectory(ctx, root); err != nil {
			e.logger.Warn("editor: remember folder failed", slog.String("error", err.Error()))
		}
	}
	if e.onDirectory != nil {
		e.onDirectory(root)
	}
	e.publish(sse.DirectoryState, map[string]string{"state": e.store.State().String(), "root": root})
	e.notesChanged("")
}

// ListNotes returns the folder's notes sorted by name.
func (e *Editor) ListNotes(ctx context.Context) ([]Entry, error) {
	entries, err := e.store.List(ctx)
	if err != nil {
		e.checkRevoked(err)
		return nil, err
	}

	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		text, err := e.store.Read(ctx, entry)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			e.checkRevoked(err)
			return nil, err
		}
		out = append(out, Entry{Name: note.DisplayName(entry), Summary: parser.Summarize(text)})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a == b {
			return out[i].Name < out[j].Name
		}
		return a < b
	})
	return out, nil
}

// ReadNote returns the stored text of name without touching the session.
func (e *Editor) ReadNote(ctx context.Context, name string) (string, error) {
	text, err := e.store.Read(ctx, note.FileName(name))
	if err != nil {
		e.checkRevoked(err)
		return "", err
	}
	return text, nil
}

// Invoke asks for a rewrite of the current draft. It blocks until the
// result is staged, the call fails, or the result is discarded because the
// session changed meanwhile.
func (e *Editor) Invoke(ctx context.Context) (rewrite.Outcome, error) {
	e.mu.Lock()
	c, err := e.workflow.Begin(ctx, e.session.Body())
	e.mu.Unlock()
	if c == nil {
		return rewrite.Ignored, err
	}
	return e.workflow.Run(ctx, c)
}

// Regenerate asks again for a rewrite of the original snapshot.
func (e *Editor) Regenerate(ctx context.Context) (rewrite.Outcome, error) {
	return e.workflow.Regenerate(ctx)
}

// Accept commits the staged proposal into the draft.
func (e *Editor) Accept() (State, bool) {
	e.mu.Lock()
	text, ok := e.workflow.Accept()
	if ok {
		e.session.SetBody(text)
	}
	st := e.stateLocked()
	e.mu.Unlock()

	if ok {
		e.autosave.Touch()
		e.publish(sse.SessionChanged, st)
	}
	return st, ok
}

// Reject drops the staged proposal and keeps the draft as it was.
func (e *Editor) Reject() (State, bool) {
	ok := e.workflow.Reject()
	return e.State(), ok
}

// Export renders the staged proposal if there is one, else the draft. Only
// one export runs at a time.
func (e *Editor) Export(ctx context.Context) (*export.Document, string, error) {
	if !e.exporting.CompareAndSwap(false, true) {
		return nil, "", apperr.ErrExportInProgress
	}
	defer e.exporting.Store(false)

	e.mu.Lock()
	content := e.session.Body()
	if staged, ok := e.workflow.Staged(); ok {
		content = staged
	}
	filename := export.Filename(e.session.Name())
	e.mu.Unlock()

	doc, err := e.exporter.Export(ctx, content, e.Theme(ctx))
	if err != nil {
		return nil, "", err
	}
	return doc, filename, nil
}

// Theme returns the saved theme, or the configured default.
func (e *Editor) Theme(ctx context.Context) export.Theme {
	e.mu.Lock()
	fallback := e.theme
	e.mu.Unlock()

	if e.settings == nil {
		return fallback
	}
	name, err := e.settings.Theme(ctx)
	if err != nil {
		e.logger.Warn("editor: read theme failed", slog.String("error", err.Error()))
		return fallback
	}
	if t, ok := export.ThemeByName(name); ok {
		return t
	}
	return fallback
}

// SetTheme persists a built-in theme by name.
func (e *Editor) SetTheme(ctx context.Context, name string) (export.Theme, error) {
	t, ok := export.ThemeByName(name)
	if !ok {
		return export.Theme{}, fmt.Errorf("unknown theme %q", name)
	}
	if e.settings == nil {
		e.mu.Lock()
		e.theme = t
		e.mu.Unlock()
		return t, nil
	}
	if err := e.settings.SetTheme(ctx, t.Name); err != nil {
		return export.Theme{}, err
	}
	return t, nil
}

// SetUserKey stores the user's own API key. Blank input removes it; the
// returned bool reports whether a key is now stored.
func (e *Editor) SetUserKey(ctx context.Context, key string) (bool, error) {
	if e.settings == nil {
		return false, errors.New("editor: no settings store")
	}
	key = strings.TrimSpace(key)
	if err := e.settings.SetUserKey(ctx, key); err != nil {
		return false, err
	}
	e.logger.Info("editor: user key updated", slog.Bool("present", key != ""))
	return key != "", nil
}

// HasUserKey reports whether a user key is stored.
func (e *Editor) HasUserKey(ctx context.Context) bool {
	if e.settings == nil {
		return false
	}
	key, err := e.settings.UserKey(ctx)
	return err == nil && strings.TrimSpace(key) != ""
}

// AutosaveState implements autosave.Source.
func (e *Editor) AutosaveState() autosave.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return autosave.State{
		SessionID:        e.session.ID(),
		Saved:            e.session.Status() == note.Saved,
		DirectoryGranted: e.store.Granted(),
		ProposalActive:   e.workflow.Active(),
		Name:             e.session.Name(),
		Body:             e.session.Body(),
	}
}

func (e *Editor) autosaved(st autosave.State) {
	e.mu.Lock()
	if e.session.ID() == st.SessionID && e.session.Name() == note.DisplayName(st.Name) {
		_ = e.session.MarkSaved(st.Body)
	}
	e.mu.Unlock()

	name := note.DisplayName(st.Name)
	e.publish(sse.NoteSaved, map[string]any{"name": name, "autosave": true})
	e.notesChanged(name)
}

func (e *Editor) autosaveFailed(st autosave.State, err error) {
	e.checkRevoked(err)
	e.publish(sse.AutosaveFailed, map[string]string{
		"name":  note.DisplayName(st.Name),
		"error": err.Error(),
	})
}

func (e *Editor) rewriteChanged(s rewrite.Snapshot, err error) {
	if err != nil {
		e.publish(sse.RewriteFailed, map[string]string{"error": err.Error(), "hint": Hint(err)})
		return
	}
	switch s.Phase {
	case rewrite.Pending:
		e.publish(sse.RewritePending, s)
	case rewrite.Staged:
		e.publish(sse.RewriteStaged, s)
	default:
		e.publish(sse.RewriteResolved, s)
	}
}

func (e *Editor) checkRevoked(err error) {
	if errors.Is(err, apperr.ErrPermissionRevoked) {
		e.logger.Warn("editor: folder access lost", slog.String("error", err.Error()))
		e.publish(sse.DirectoryState, map[string]string{"state": e.store.State().String()})
	}
}

func (e *Editor) publish(typ string, data any) {
	if e.events != nil {
		e.events.Publish(sse.Event{Type: typ, Data: data})
	}
}

func (e *Editor) notesChanged(name string) {
	if e.events != nil {
		e.events.PublishNotesChanged(name)
	}
}

// Package note models the document being edited and its save lifecycle.
package note

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/starford/puffnotes/internal/checksum"
)

// Untitled is the name a fresh session starts with.
const Untitled = "untitled"

// Status is the persistence state of a session.
type Status int

const (
	Unsaved Status = iota
	Saved
)

func (s Status) String() string {
	if s == Saved {
		return "saved"
	}
	return "unsaved"
}

// statusTransitions is the only place status moves are defined. Nothing
// leads back to Unsaved; a new note is a new Session.
var statusTransitions = map[Status][]Status{
	Unsaved: {Saved},
	Saved:   {Saved},
}

// Session is the in-memory note. It is not safe for concurrent use; the
// editor serialises access.
type Session struct {
	id        ulid.ULID
	name      string
	body      string
	status    Status
	persisted string
}

// New returns an empty, unsaved session.
func New() *Session {
	return &Session{id: ulid.Make(), name: Untitled, status: Unsaved}
}

// Opened returns a session for text just read from the store under entry.
func Opened(entry, text string) *Session {
	return &Session{
		id:        ulid.Make(),
		name:      DisplayName(entry),
		body:      text,
		status:    Saved,
		persisted: checksum.Text(text),
	}
}

// ID identifies this session instance. Replacing the session changes it.
func (s *Session) ID() string { return s.id.String() }

func (s *Session) Name() string   { return s.name }
func (s *Session) Body() string   { return s.body }
func (s *Session) Status() Status { return s.status }

// SetBody replaces the draft text.
func (s *Session) SetBody(text string) { s.body = text }

// SetName changes the logical name. It does not write anything.
func (s *Session) SetName(name string) { s.name = DisplayName(name) }

// MarkSaved records that body is now what the store holds.
func (s *Session) MarkSaved(body string) error {
	if !allowed(s.status, Saved) {
		return fmt.Errorf("note: illegal status move %s → %s", s.status, Saved)
	}
	s.status = Saved
	s.persisted = checksum.Text(body)
	return nil
}

// Dirty reports whether the draft differs from the last persisted body.
// An unsaved session is always dirty.
func (s *Session) Dirty() bool {
	if s.status == Unsaved {
		return true
	}
	return checksum.Text(s.body) != s.persisted
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Body   string `json:"body"`
	Status string `json:"status"`
	Dirty  bool   `json:"dirty"`
}

// Snapshot copies the session's current state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:     s.ID(),
		Name:   s.name,
		Body:   s.body,
		Status: s.status.String(),
		Dirty:  s.Dirty(),
	}
}

func allowed(from, to Status) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

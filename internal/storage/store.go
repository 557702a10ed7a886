package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/starford/puffnotes/internal/apperr"
)

// State is the lifecycle of the directory capability.
type State int

const (
	NotGranted State = iota
	Granted
	Revoked
)

func (s State) String() string {
	switch s {
	case Granted:
		return "granted"
	case Revoked:
		return "revoked"
	default:
		return "not_granted"
	}
}

// transitions lists the legal capability moves. Only an explicit grant
// enters Granted; only a failed operation enters Revoked.
var transitions = map[State][]State{
	NotGranted: {Granted},
	Granted:    {Granted, Revoked},
	Revoked:    {Granted},
}

func canMove(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Store is the process-wide directory store. It holds at most one handle.
type Store struct {
	mu     sync.RWMutex
	handle *Handle
	state  State
}

// NewStore returns a store with no folder granted.
func NewStore() *Store {
	return &Store{state: NotGranted}
}

// Grant installs h as the current capability.
func (s *Store) Grant(h *Handle) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if canMove(s.state, Granted) {
		s.handle = h
		s.state = Granted
	}
}

// State returns the capability state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Granted reports whether a usable capability is held.
func (s *Store) Granted() bool { return s.State() == Granted }

// Root returns the granted folder, or "" when none is held.
func (s *Store) Root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.handle == nil {
		return ""
	}
	return s.handle.root
}

// List returns entry names ending in Ext.
func (s *Store) List(ctx context.Context) ([]string, error) {
	h, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	names, err := h.list()
	if err != nil {
		return nil, s.classify(h, "list", err)
	}
	return names, nil
}

// Read returns the named entry's text.
func (s *Store) Read(ctx context.Context, name string) (string, error) {
	h, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}
	text, err := h.read(name)
	if err != nil {
		return "", s.classify(h, "read "+name, err)
	}
	return text, nil
}

// Write creates or overwrites the named entry.
func (s *Store) Write(ctx context.Context, name, text string) error {
	h, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	if err := h.write(name, text); err != nil {
		return s.classify(h, "write "+name, err)
	}
	return nil
}

// acquire returns the current handle after confirming the folder is still
// reachable. Loss of access is detected here, at the point of use.
func (s *Store) acquire(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	h, state := s.handle, s.state
	s.mu.RUnlock()

	switch state {
	case NotGranted:
		return nil, apperr.ErrNoDirectoryGranted
	case Revoked:
		return nil, apperr.ErrPermissionRevoked
	}
	if err := h.alive(); err != nil {
		s.revoke(h)
		return nil, fmt.Errorf("storage: %s: %w: %w", h.root, apperr.ErrPermissionRevoked, err)
	}
	return h, nil
}

func (s *Store) classify(h *Handle, op string, err error) error {
	switch {
	case revoked(err):
		s.revoke(h)
		return fmt.Errorf("storage: %s: %w: %w", op, apperr.ErrPermissionRevoked, err)
	case errors.Is(err, fs.ErrNotExist):
		// The folder may have vanished between the liveness check and the call.
		if h.alive() != nil {
			s.revoke(h)
			return fmt.Errorf("storage: %s: %w: %w", op, apperr.ErrPermissionRevoked, err)
		}
		return fmt.Errorf("storage: %s: %w: %w", op, apperr.ErrNotFound, err)
	default:
		return fmt.Errorf("storage: %s: %w", op, err)
	}
}

// revoke marks h as unusable unless a newer grant already replaced it.
func (s *Store) revoke(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == h && canMove(s.state, Revoked) {
		s.state = Revoked
	}
}

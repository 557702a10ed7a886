package api

import (
	"github.com/starford/puffnotes/internal/editor"
	"github.com/starford/puffnotes/internal/rewrite"
)

// OpenRequest names the note to load into the session.
type OpenRequest struct {
	Name string `json:"name" example:"lecture-3" validate:"required"`
}

// BodyRequest replaces the draft text.
type BodyRequest struct {
	Body string `json:"body" example:"# Lecture 3\nEntropy is..."`
}

// NameRequest renames the open note.
type NameRequest struct {
	Name string `json:"name" example:"lecture-3"`
}

// DirectoryRequest grants a folder. On save it is only consulted when no
// folder is granted yet; a blank path acts as a cancelled pick.
type DirectoryRequest struct {
	Path string `json:"path" example:"/home/me/notes"`
}

// SaveResponse reports whether the draft was written.
type SaveResponse struct {
	Saved bool         `json:"saved"`
	State editor.State `json:"state"`
}

// RewriteResponse reports the outcome of an invoke or regenerate call.
type RewriteResponse struct {
	Outcome string       `json:"outcome" example:"proposed" enums:"ignored,proposed,discarded"`
	State   editor.State `json:"state"`
}

// ResolveResponse reports an accept or reject.
type ResolveResponse struct {
	Resolved bool         `json:"resolved"`
	State    editor.State `json:"state"`
}

// ThemeRequest selects a built-in export theme.
type ThemeRequest struct {
	Name string `json:"name" example:"galaxy" validate:"required"`
}

// CredentialRequest stores the user's own API key. Blank clears it.
type CredentialRequest struct {
	APIKey string `json:"api_key"`
}

// CredentialResponse never echoes the key.
type CredentialResponse struct {
	Present bool `json:"present"`
}

// NoteListResponse wraps the folder listing.
type NoteListResponse struct {
	Notes []editor.Entry `json:"notes" validate:"required"`
}

// NoteResponse is a stored note.
type NoteResponse struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func rewriteResponse(out rewrite.Outcome, st editor.State) RewriteResponse {
	return RewriteResponse{Outcome: out.String(), State: st}
}

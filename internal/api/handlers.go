package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/puffnotes/internal/editor"
	"github.com/starford/puffnotes/internal/storage"
)

const maxBody = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	ed *editor.Editor
}

// NewHandler creates a new Handler.
func NewHandler(ed *editor.Editor) *Handler {
	return &Handler{ed: ed}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body", ""))
		return false
	}
	return true
}

// noteName extracts the note name from the URL. Encoded names
// (e.g. "week%201") are unescaped.
func noteName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// State handles GET /api/state.
//
//	@Summary		Current session, proposal and folder state
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	editor.State
//	@Security		BearerAuth
//	@Router			/state [get]
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ed.State())
}

// NewNote handles POST /api/session/new.
//
//	@Summary		Start an untitled note
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	editor.State
//	@Security		BearerAuth
//	@Router			/session/new [post]
func (h *Handler) NewNote(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ed.NewNote())
}

// Open handles POST /api/session/open.
//
//	@Summary		Load a note from the folder into the session
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenRequest	true	"Note to open"
//	@Success		200		{object}	editor.State
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/open [post]
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required", ""))
		return
	}
	st, err := h.ed.Open(r.Context(), req.Name)
	if err != nil {
		writeError(w, "open note", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Edit handles PUT /api/session/body.
//
//	@Summary		Replace the draft text
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BodyRequest	true	"New draft"
//	@Success		200		{object}	editor.State
//	@Failure		409		{object}	errResponse	"A rewrite proposal is under review"
//	@Security		BearerAuth
//	@Router			/session/body [put]
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	var req BodyRequest
	if !decode(w, r, &req) {
		return
	}
	if !h.ed.Edit(req.Body) {
		writeJSON(w, http.StatusConflict, errorBody("a rewrite proposal is under review",
			"Accept or reject the proposal before editing."))
		return
	}
	writeJSON(w, http.StatusOK, h.ed.State())
}

// Rename handles PUT /api/session/name.
//
//	@Summary		Rename the open note
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NameRequest	true	"New name"
//	@Success		200		{object}	editor.State
//	@Security		BearerAuth
//	@Router			/session/name [put]
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.ed.Rename(req.Name))
}

// Save handles POST /api/session/save.
//
//	@Summary		Write the draft to the folder
//	@Description	Without a granted folder the optional path is used as the picked folder.
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DirectoryRequest	false	"Folder to grant first"
//	@Success		200		{object}	SaveResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/save [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req DirectoryRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	saved, err := h.ed.Save(r.Context(), storage.DirPicker(req.Path))
	if err != nil {
		writeError(w, "save note", err)
		return
	}
	writeJSON(w, http.StatusOK, SaveResponse{Saved: saved, State: h.ed.State()})
}

// GrantDirectory handles POST /api/directory.
//
//	@Summary		Grant the notes folder
//	@Tags			directory
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DirectoryRequest	true	"Folder"
//	@Success		200		{object}	editor.State
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/directory [post]
func (h *Handler) GrantDirectory(w http.ResponseWriter, r *http.Request) {
	var req DirectoryRequest
	if !decode(w, r, &req) {
		return
	}
	ok, err := h.ed.GrantDirectory(r.Context(), storage.DirPicker(req.Path))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error(), "Choose an existing folder."))
		return
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required", ""))
		return
	}
	writeJSON(w, http.StatusOK, h.ed.State())
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes in the granted folder
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	NoteListResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.ed.ListNotes(r.Context())
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}

// GetNote handles GET /api/notes/{name}.
//
//	@Summary		Read a stored note without opening it
//	@Tags			notes
//	@Produce		json
//	@Param			name	path		string	true	"Note name"
//	@Success		200		{object}	NoteResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{name} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	name := noteName(r)
	text, err := h.ed.ReadNote(r.Context(), name)
	if err != nil {
		writeError(w, "read note", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteResponse{Name: name, Content: text})
}

// Rewrite handles POST /api/rewrite.
//
//	@Summary		Request a rewrite of the draft
//	@Description	Blocks until the proposal is staged or the call fails.
//	@Tags			rewrite
//	@Produce		json
//	@Success		200	{object}	RewriteResponse
//	@Failure		428	{object}	errResponse	"No API key available"
//	@Failure		429	{object}	errResponse	"Key rejected or rate-limited"
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rewrite [post]
func (h *Handler) Rewrite(w http.ResponseWriter, r *http.Request) {
	// A client that goes away does not cancel the call; the workflow's own
	// timeout bounds it.
	out, err := h.ed.Invoke(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, "rewrite", err)
		return
	}
	writeJSON(w, http.StatusOK, rewriteResponse(out, h.ed.State()))
}

// Regenerate handles POST /api/rewrite/regenerate.
//
//	@Summary		Rewrite the original text again
//	@Tags			rewrite
//	@Produce		json
//	@Success		200	{object}	RewriteResponse
//	@Security		BearerAuth
//	@Router			/rewrite/regenerate [post]
func (h *Handler) Regenerate(w http.ResponseWriter, r *http.Request) {
	out, err := h.ed.Regenerate(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, "regenerate", err)
		return
	}
	writeJSON(w, http.StatusOK, rewriteResponse(out, h.ed.State()))
}

// Accept handles POST /api/rewrite/accept.
//
//	@Summary		Replace the draft with the staged proposal
//	@Tags			rewrite
//	@Produce		json
//	@Success		200	{object}	ResolveResponse
//	@Security		BearerAuth
//	@Router			/rewrite/accept [post]
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	st, ok := h.ed.Accept()
	writeJSON(w, http.StatusOK, ResolveResponse{Resolved: ok, State: st})
}

// Reject handles POST /api/rewrite/reject.
//
//	@Summary		Drop the staged proposal
//	@Tags			rewrite
//	@Produce		json
//	@Success		200	{object}	ResolveResponse
//	@Security		BearerAuth
//	@Router			/rewrite/reject [post]
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	st, ok := h.ed.Reject()
	writeJSON(w, http.StatusOK, ResolveResponse{Resolved: ok, State: st})
}

// Export handles POST /api/export.
//
//	@Summary		Export the note (or staged proposal) as PDF
//	@Tags			export
//	@Produce		application/pdf
//	@Success		200	{file}		binary
//	@Failure		409	{object}	errResponse	"Export already running"
//	@Failure		422	{object}	errResponse	"Nothing to export"
//	@Security		BearerAuth
//	@Router			/export [post]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	doc, filename, err := h.ed.Export(r.Context())
	if err != nil {
		writeError(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.Header().Set("X-Page-Count", strconv.Itoa(doc.Pages))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

// GetTheme handles GET /api/theme.
//
//	@Summary		Current export theme
//	@Tags			export
//	@Produce		json
//	@Success		200	{object}	export.Theme
//	@Security		BearerAuth
//	@Router			/theme [get]
func (h *Handler) GetTheme(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ed.Theme(r.Context()))
}

// SetTheme handles PUT /api/theme.
//
//	@Summary		Select a built-in export theme
//	@Tags			export
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ThemeRequest	true	"Theme"
//	@Success		200		{object}	export.Theme
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/theme [put]
func (h *Handler) SetTheme(w http.ResponseWriter, r *http.Request) {
	var req ThemeRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.ed.SetTheme(r.Context(), req.Name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error(), ""))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetCredential handles GET /api/credentials.
//
//	@Summary		Whether a user API key is stored
//	@Tags			credentials
//	@Produce		json
//	@Success		200	{object}	CredentialResponse
//	@Security		BearerAuth
//	@Router			/credentials [get]
func (h *Handler) GetCredential(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CredentialResponse{Present: h.ed.HasUserKey(r.Context())})
}

// SetCredential handles PUT /api/credentials.
//
//	@Summary		Store or clear the user API key
//	@Tags			credentials
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CredentialRequest	true	"Key (blank clears)"
//	@Success		200		{object}	CredentialResponse
//	@Security		BearerAuth
//	@Router			/credentials [put]
func (h *Handler) SetCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if !decode(w, r, &req) {
		return
	}
	present, err := h.ed.SetUserKey(r.Context(), req.APIKey)
	if err != nil {
		writeError(w, "set credential", err)
		return
	}
	writeJSON(w, http.StatusOK, CredentialResponse{Present: present})
}

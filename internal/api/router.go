package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/puffnotes/internal/editor"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(ed *editor.Editor, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(ed)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/state", h.State)

	// Session.
	r.Post("/session/new", h.NewNote)
	r.Post("/session/open", h.Open)
	r.Put("/session/body", h.Edit)
	r.Put("/session/name", h.Rename)
	r.Post("/session/save", h.Save)

	// Folder.
	r.Post("/directory", h.GrantDirectory)
	r.Get("/notes", h.ListNotes)
	r.Get("/notes/{name}", h.GetNote)

	// Rewrite.
	r.Post("/rewrite", h.Rewrite)
	r.Post("/rewrite/regenerate", h.Regenerate)
	r.Post("/rewrite/accept", h.Accept)
	r.Post("/rewrite/reject", h.Reject)

	// Export.
	r.Post("/export", h.Export)
	r.Get("/theme", h.GetTheme)
	r.Put("/theme", h.SetTheme)

	r.Get("/credentials", h.GetCredential)
	r.Put("/credentials", h.SetCredential)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

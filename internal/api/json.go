package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/puffnotes/internal/apperr"
	"github.com/starford/puffnotes/internal/editor"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Hint  string `json:"hint,omitempty"`
}

func errorBody(msg, hint string) errResponse {
	return errResponse{Error: msg, Hint: hint}
}

// statusOf maps the error taxonomy onto HTTP status codes. Order matters:
// a load failure caused by a revoked folder reports the revocation.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrPermissionRevoked),
		errors.Is(err, apperr.ErrNoDirectoryGranted):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidName),
		errors.Is(err, apperr.ErrEmptyDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrNoCredential):
		return http.StatusPreconditionRequired
	case errors.Is(err, apperr.ErrAuthOrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, apperr.ErrRewriteFailed):
		return http.StatusBadGateway
	case errors.Is(err, apperr.ErrExportInProgress):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError reports err with its status and recovery hint. Unclassified
// errors are logged and hidden behind "internal error".
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && editor.Hint(err) == "" {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		msg = "internal error"
	}
	writeJSON(w, status, errorBody(msg, editor.Hint(err)))
}

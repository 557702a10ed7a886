package editor

import (
	"errors"

	"github.com/starford/puffnotes/internal/apperr"
	"github.com/starford/puffnotes/internal/export"
)

// Hint returns the recovery advice shown next to err.
func Hint(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNoDirectoryGranted):
		return "Choose a folder to keep your notes in."
	case errors.Is(err, apperr.ErrPermissionRevoked):
		return "Access to the notes folder was lost. Choose the folder again."
	case errors.Is(err, apperr.ErrInvalidName):
		return "Please enter a name for your note before saving."
	case errors.Is(err, apperr.ErrNoCredential):
		return "Enter your own API key to use rewrite."
	case errors.Is(err, apperr.ErrFallbackKeyRejected):
		return "The shared API key is exhausted or rate-limited. Enter your own key."
	case errors.Is(err, apperr.ErrUserKeyRejected):
		return "Your API key is invalid or exhausted. Update it and try again."
	case errors.Is(err, apperr.ErrRewriteFailed):
		return "The rewrite failed. Try again."
	case errors.Is(err, apperr.ErrExportInProgress):
		return "An export is already running."
	case errors.Is(err, apperr.ErrEmptyDocument):
		return "Nothing to export yet."
	case errors.Is(err, export.ErrTooLong):
		return "The note is too long to export as one PDF."
	case errors.Is(err, apperr.ErrExport), errors.Is(err, apperr.ErrRender):
		return "Failed to export PDF."
	case errors.Is(err, apperr.ErrLoad):
		return "Could not load the file. Folder permissions might have changed."
	}
	return ""
}

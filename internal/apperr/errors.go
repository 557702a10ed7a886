// Package apperr holds the error taxonomy shared by every editor surface.
package apperr

import (
	"errors"
	"fmt"
)

// Storage.
var (
	ErrNotFound           = errors.New("not found")
	ErrNoDirectoryGranted = errors.New("no directory granted")
	ErrPermissionRevoked  = errors.New("directory permission revoked")
	ErrLoad               = errors.New("load failed")
	ErrInvalidName        = errors.New("invalid note name")
)

// Rewrite. ErrFallbackKeyRejected and ErrUserKeyRejected both wrap ErrAuthOrRateLimit,
// so callers that only care about the class can test for that.
var (
	ErrNoCredential        = errors.New("no api key available")
	ErrAuthOrRateLimit     = errors.New("api key rejected or rate-limited")
	ErrFallbackKeyRejected = fmt.Errorf("%w: default key is exhausted, enter your own key", ErrAuthOrRateLimit)
	ErrUserKeyRejected     = fmt.Errorf("%w: your key is invalid or exhausted", ErrAuthOrRateLimit)
	ErrRewriteFailed       = errors.New("rewrite failed")
)

// Export.
var (
	ErrRender           = errors.New("render failed")
	ErrExport           = errors.New("export failed")
	ErrEmptyDocument    = errors.New("nothing to export")
	ErrExportInProgress = errors.New("export already in progress")
)

// Package storage implements the directory store: named text entries kept
// inside a single folder the user has granted access to.
package storage

import "context"

// Ext is the suffix every note entry carries on disk.
const Ext = ".md"

// Provider is the interface for directory store operations.
type Provider interface {
	// List returns the names of every note entry in the granted folder.
	// No ordering is guaranteed.
	List(ctx context.Context) ([]string, error)
	// Read returns the full text of the named entry.
	Read(ctx context.Context, name string) (string, error)
	// Write creates or fully replaces the named entry.
	Write(ctx context.Context, name, text string) error
}

var _ Provider = (*Store)(nil)

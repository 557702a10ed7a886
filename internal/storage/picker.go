package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrPickCancelled is returned by a Picker when the user dismissed the
// folder prompt. It is not a failure.
var ErrPickCancelled = errors.New("storage: directory pick cancelled")

// Picker asks the user for a folder and returns a handle to it.
type Picker interface {
	Pick(ctx context.Context) (*Handle, error)
}

// PickerFunc adapts a function to the Picker interface.
type PickerFunc func(ctx context.Context) (*Handle, error)

// Pick calls f(ctx).
func (f PickerFunc) Pick(ctx context.Context) (*Handle, error) { return f(ctx) }

// DirPicker grants a fixed folder. An empty path behaves like a dismissed
// prompt.
func DirPicker(root string) Picker {
	return PickerFunc(func(ctx context.Context) (*Handle, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(root) == "" {
			return nil, ErrPickCancelled
		}
		return OpenDir(root)
	})
}

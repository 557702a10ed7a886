package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// notePerm is the mode of every entry the store writes.
const notePerm os.FileMode = 0o644

// Handle is the capability for one folder. It is opaque to callers; only
// the store reads or writes through it.
type Handle struct {
	fs   afero.Fs
	root string
}

// OpenDir returns a handle for a folder on the local file system.
// The directory must already exist.
func OpenDir(root string) (*Handle, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	return NewHandle(afero.NewOsFs(), abs)
}

// NewHandle returns a handle for root on the given file system.
func NewHandle(fsys afero.Fs, root string) (*Handle, error) {
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", root)
	}
	return &Handle{fs: fsys, root: filepath.Clean(root)}, nil
}

// Root returns the folder the handle is scoped to.
func (h *Handle) Root() string { return h.root }

// alive reports an error when the folder behind the handle is gone or
// no longer readable.
func (h *Handle) alive() error {
	info, err := h.fs.Stat(h.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", h.root, fs.ErrNotExist)
	}
	return nil
}

// entryPath resolves a bare entry name inside the root and rejects anything
// that would leave it.
func (h *Handle) entryPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("storage: invalid entry name %q", name)
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("storage: entry name must not contain separators: %q", name)
	}
	return filepath.Join(h.root, name), nil
}

func (h *Handle) list() ([]string, error) {
	infos, err := afero.ReadDir(h.fs, h.root)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), Ext) {
			continue
		}
		out = append(out, info.Name())
	}
	return out, nil
}

func (h *Handle) read(name string) (string, error) {
	p, err := h.entryPath(name)
	if err != nil {
		return "", err
	}
	data, err := afero.ReadFile(h.fs, p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// write replaces the entry atomically: tmp file → fsync → rename. A reader
// sees either the previous content or the new one.
func (h *Handle) write(name, text string) error {
	p, err := h.entryPath(name)
	if err != nil {
		return err
	}

	tmp, err := afero.TempFile(h.fs, h.root, ".puffnotes-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = h.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(text); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := h.fs.Chmod(tmpName, notePerm); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := h.fs.Rename(tmpName, p); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	success = true
	return nil
}

// revoked reports whether err means the capability itself is gone, as
// opposed to a missing entry or an ordinary I/O failure.
func revoked(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, os.ErrPermission)
}

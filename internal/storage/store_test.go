package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/starford/puffnotes/internal/apperr"
)

func memStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("/notes", 0o755); err != nil {
		t.Fatal(err)
	}
	h, err := NewHandle(fsys, "/notes")
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	s := NewStore()
	s.Grant(h)
	return s, fsys
}

func TestWriteAndRead(t *testing.T) {
	s, _ := memStore(t)
	ctx := context.Background()
	content := "# Hello\nWorld\n"
	if err := s.Write(ctx, "note.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read(ctx, "note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != content {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestRoundTripExactBytes(t *testing.T) {
	s, _ := memStore(t)
	ctx := context.Background()

	cases := map[string]string{
		"empty.md":   "",
		"unicode.md": "héllo\r\n\tworld ✓\x00",
		"large.md":   strings.Repeat("0123456789abcdef", 256*1024),
	}
	for name, text := range cases {
		if err := s.Write(ctx, name, text); err != nil {
			t.Fatalf("Write %s: %v", name, err)
		}
		got, err := s.Read(ctx, name)
		if err != nil {
			t.Fatalf("Read %s: %v", name, err)
		}
		if got != text {
			t.Errorf("%s: round trip changed content (len %d → %d)", name, len(text), len(got))
		}
	}
}

func TestWriteOverwrites(t *testing.T) {
	s, fsys := memStore(t)
	ctx := context.Background()
	_ = s.Write(ctx, "atomic.md", "original content that is longer")
	if err := s.Write(ctx, "atomic.md", "updated"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read(ctx, "atomic.md")
	if got != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := afero.Glob(fsys, "/notes/.puffnotes-tmp-*")
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestListFiltersToNotes(t *testing.T) {
	s, fsys := memStore(t)
	ctx := context.Background()
	_ = s.Write(ctx, "a.md", "a")
	_ = s.Write(ctx, "b.md", "b")
	_ = afero.WriteFile(fsys, "/notes/readme.txt", []byte("not md"), 0o644)
	_ = fsys.MkdirAll("/notes/sub.md", 0o755)

	names, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "a.md" || names[1] != "b.md" {
		t.Errorf("names = %v, want [a.md b.md]", names)
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	s, _ := memStore(t)
	_, err := s.Read(context.Background(), "ghost.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if errors.Is(err, apperr.ErrPermissionRevoked) {
		t.Error("missing entry must not look like a revoked folder")
	}
	if !s.Granted() {
		t.Error("missing entry must not revoke the capability")
	}
}

func TestNoDirectoryGranted(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if _, err := s.List(ctx); !errors.Is(err, apperr.ErrNoDirectoryGranted) {
		t.Errorf("List err = %v", err)
	}
	if _, err := s.Read(ctx, "a.md"); !errors.Is(err, apperr.ErrNoDirectoryGranted) {
		t.Errorf("Read err = %v", err)
	}
	if err := s.Write(ctx, "a.md", "x"); !errors.Is(err, apperr.ErrNoDirectoryGranted) {
		t.Errorf("Write err = %v", err)
	}
}

func TestFolderRemovedRevokes(t *testing.T) {
	s, fsys := memStore(t)
	ctx := context.Background()
	_ = s.Write(ctx, "a.md", "a")
	if err := fsys.RemoveAll("/notes"); err != nil {
		t.Fatal(err)
	}

	_, err := s.Read(ctx, "a.md")
	if !errors.Is(err, apperr.ErrPermissionRevoked) {
		t.Fatalf("err = %v, want ErrPermissionRevoked", err)
	}
	if s.State() != Revoked {
		t.Errorf("state = %v, want revoked", s.State())
	}
	if err := s.Write(ctx, "a.md", "b"); !errors.Is(err, apperr.ErrPermissionRevoked) {
		t.Errorf("write after revoke err = %v", err)
	}
}

func TestPermissionDeniedRevokes(t *testing.T) {
	base := afero.NewMemMapFs()
	_ = base.MkdirAll("/ro", 0o755)
	_ = afero.WriteFile(base, "/ro/keep.md", []byte("kept"), 0o644)
	h, err := NewHandle(afero.NewReadOnlyFs(base), "/ro")
	if err != nil {
		t.Fatal(err)
	}
	s := NewStore()
	s.Grant(h)

	err = s.Write(context.Background(), "new.md", "x")
	if !errors.Is(err, apperr.ErrPermissionRevoked) {
		t.Fatalf("err = %v, want ErrPermissionRevoked", err)
	}
	if s.Granted() {
		t.Error("store should no longer report a usable grant")
	}
}

func TestRegrantAfterRevoke(t *testing.T) {
	s, fsys := memStore(t)
	_ = fsys.RemoveAll("/notes")
	_, _ = s.List(context.Background())
	if s.State() != Revoked {
		t.Fatalf("state = %v", s.State())
	}

	_ = fsys.MkdirAll("/again", 0o755)
	h, err := NewHandle(fsys, "/again")
	if err != nil {
		t.Fatal(err)
	}
	s.Grant(h)
	if err := s.Write(context.Background(), "x.md", "x"); err != nil {
		t.Fatalf("Write after regrant: %v", err)
	}
	if s.Root() != "/again" {
		t.Errorf("root = %q", s.Root())
	}
}

func TestTraversalBlocked(t *testing.T) {
	s, _ := memStore(t)
	ctx := context.Background()

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
		"sub/inner.md",
		"..",
		"",
	}
	for _, p := range cases {
		if _, err := s.Read(ctx, p); err == nil {
			t.Errorf("expected error for read %q", p)
		}
		if err := s.Write(ctx, p, "x"); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestOpenDir_NonExistentDir(t *testing.T) {
	_, err := OpenDir(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestOpenDir_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "puffnotes-test-*")
	_ = f.Close()
	if _, err := OpenDir(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestOpenDir_RealFolder(t *testing.T) {
	dir := t.TempDir()
	h, err := OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	s := NewStore()
	s.Grant(h)
	if err := s.Write(context.Background(), "disk.md", "on disk"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "disk.md"))
	if err != nil || string(data) != "on disk" {
		t.Errorf("disk content = %q, err = %v", data, err)
	}
}

func TestWriteLeavesReadableMode(t *testing.T) {
	dir := t.TempDir()
	h, err := OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	s := NewStore()
	s.Grant(h)
	if err := s.Write(context.Background(), "shared.md", "text"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "shared.md"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o644 {
		t.Errorf("mode = %o, want 644", got)
	}
}

func TestDirPicker(t *testing.T) {
	ctx := context.Background()
	if _, err := DirPicker("  ").Pick(ctx); !errors.Is(err, ErrPickCancelled) {
		t.Errorf("blank picker err = %v, want ErrPickCancelled", err)
	}
	h, err := DirPicker(t.TempDir()).Pick(ctx)
	if err != nil || h == nil {
		t.Fatalf("Pick: %v", err)
	}
}

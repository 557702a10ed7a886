package prefs

import (
	"context"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM settings`).Scan(&count); err != nil {
		t.Fatalf("settings table missing: %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	db := testDB(t)
	v, err := db.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "" {
		t.Errorf("Get = %q, want empty", v)
	}
}

func TestSetOverwrites(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.Set(ctx, "k", "one"); err != nil {
		t.Fatal(err)
	}
	if err := db.Set(ctx, "k", "two"); err != nil {
		t.Fatal(err)
	}
	v, _ := db.Get(ctx, "k")
	if v != "two" {
		t.Errorf("Get = %q, want %q", v, "two")
	}
}

func TestUserKeyTrimmedAndCleared(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.SetUserKey(ctx, "  gsk_abc \n"); err != nil {
		t.Fatalf("SetUserKey: %v", err)
	}
	got, err := db.UserKey(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != "gsk_abc" {
		t.Errorf("UserKey = %q, want %q", got, "gsk_abc")
	}

	if err := db.SetUserKey(ctx, "   "); err != nil {
		t.Fatalf("SetUserKey blank: %v", err)
	}
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM settings WHERE key = ?`, KeyUserAPIKey).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("blank key left %d rows", count)
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	ctx := context.Background()

	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SetTheme(ctx, "galaxy"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetLastDirectory(ctx, "/notes"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if theme, _ := db.Theme(ctx); theme != "galaxy" {
		t.Errorf("Theme = %q", theme)
	}
	if dir, _ := db.LastDirectory(ctx); dir != "/notes" {
		t.Errorf("LastDirectory = %q", dir)
	}
}

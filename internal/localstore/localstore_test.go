// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

package localstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func TestPutGet(t *testing.T) {
	s := newTestStore(t)

	type prefs struct {
		Theme string `json:"theme"`
		Trait string `json:"trait"`
	}
	if err := s.Put("prefs", prefs{Theme: "dark", Trait: "friendly"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var got prefs
	if err := s.Get("prefs", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Theme != "dark" || got.Trait != "friendly" {
		t.Errorf("got %+v", got)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := newTestStore(t)
	var v string
	if err := s.Get("nope", &v); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetCorruptValue(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(s.Dir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	var v map[string]string
	err := s.Get("bad", &v)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestPutOverwrites(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put("k", "first"); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("k", "second"); err != nil {
		t.Fatal(err)
	}
	var got string
	if err := s.Get("k", &got); err != nil {
		t.Fatal(err)
	}
	if got != "second" {
		t.Errorf("got %q, want second", got)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put("k", 42); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	var v int
	if err := s.Get("k", &v); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting again is a no-op.
	if err := s.Delete("k"); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	s.Put("a", 1)
	s.Put("b", 2)
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	var v int
	if err := s.Get("a", &v); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected empty store after clear, got %v", err)
	}
}

func TestKeySanitization(t *testing.T) {
	s := newTestStore(t)
	key := "conversations_user@example.com/../../etc"
	if err := s.Put(key, "safe"); err != nil {
		t.Fatal(err)
	}
	// The value must land inside the store directory.
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 file in store dir, got %d", len(entries))
	}
	var got string
	if err := s.Get(key, &got); err != nil || got != "safe" {
		t.Errorf("round-trip through sanitized key failed: %q, %v", got, err)
	}
}

func TestAccountKey(t *testing.T) {
	if got := AccountKey("conversations", "User@Example.COM"); got != "conversations_user@example.com" {
		t.Errorf("got %q", got)
	}
}

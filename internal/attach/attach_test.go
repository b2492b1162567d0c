// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name string
		want Kind
		ok   bool
	}{
		{"photo.png", KindImage, true},
		{"photo.JPG", KindImage, true},
		{"scan.pdf", KindDocument, true},
		{"notes.txt", KindDocument, true},
		{"video.mp4", "", false},
		{"archive.zip", "", false},
		{"noext", "", false},
	}
	for _, tt := range tests {
		got, ok := DetectKind(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("DetectKind(%q) = (%q, %v), want (%q, %v)", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pic.png")
	raw := []byte{0x89, 0x50, 0x4E, 0x47}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.Kind != KindImage || f.Name != "pic.png" {
		t.Errorf("unexpected file %+v", f)
	}
	decoded, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil || string(decoded) != string(raw) {
		t.Error("data should round-trip through base64")
	}
	if f.Preview != "" {
		t.Error("images carry no preview")
	}
}

func TestLoadDocumentPreview(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	content := strings.Repeat("abcde ", 200) // 1200 bytes
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Preview) != 500 {
		t.Errorf("preview length %d, want 500", len(f.Preview))
	}
	if !strings.HasPrefix(f.Preview, "abcde") {
		t.Errorf("unexpected preview %q", f.Preview[:20])
	}
}

func TestLoadUnsupportedType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.mp4")
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var unsupported *ErrUnsupportedType
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if unsupported.Name != "movie.mp4" {
		t.Errorf("got %q", unsupported.Name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.png")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPreviewSplitRune(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "utf8.txt")
	// 499 ASCII bytes then a multi-byte rune straddling the cut.
	content := strings.Repeat("a", 499) + "é" + strings.Repeat("b", 50)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(f.Preview, "a") {
		t.Errorf("split rune should be trimmed, preview ends %q", f.Preview[len(f.Preview)-3:])
	}
}

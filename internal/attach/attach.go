// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attach handles file attachment intake: type detection, data
// loading, and document previews. Attachments are ephemeral client-side
// state, cleared after each send.
package attach

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Kind classifies an attachment.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

// previewLen is how many bytes of a document become its preview.
const previewLen = 500

// MaxFileSize caps attachment size (10MB).
const MaxFileSize = 10 * 1024 * 1024

// ErrUnsupportedType is returned for files that are neither images nor
// documents we can preview.
type ErrUnsupportedType struct {
	Name string
}

func (e *ErrUnsupportedType) Error() string {
	return fmt.Sprintf("%s not supported. Use images or PDFs.", e.Name)
}

// File is one staged attachment.
type File struct {
	Kind Kind `json:"kind"`

	// Data is the base64-encoded file content.
	Data string `json:"data"`

	Name string `json:"name"`

	// Preview holds the first part of a document's text. Empty for
	// images.
	Preview string `json:"preview,omitempty"`
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".svg":  true,
}

var documentExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

// DetectKind classifies a filename by extension. Returns ("", false) for
// unsupported types.
func DetectKind(name string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case imageExtensions[ext]:
		return KindImage, true
	case documentExtensions[ext]:
		return KindDocument, true
	}
	return "", false
}

// Load reads a file from disk and stages it as an attachment.
func Load(path string) (*File, error) {
	name := filepath.Base(path)
	kind, ok := DetectKind(name)
	if !ok {
		return nil, &ErrUnsupportedType{Name: name}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%s exceeds the %dMB attachment limit", name, MaxFileSize/(1024*1024))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	file := &File{
		Kind: kind,
		Data: base64.StdEncoding.EncodeToString(data),
		Name: name,
	}
	if kind == KindDocument {
		file.Preview = preview(data)
	}
	return file, nil
}

// preview extracts the first previewLen bytes of readable text, trimmed
// back to a rune boundary. Binary documents yield a placeholder.
func preview(data []byte) string {
	cut := data
	if len(cut) > previewLen {
		cut = cut[:previewLen]
		// The cut may split a multi-byte rune; trim at most its tail.
		for i := 0; i < 3 && len(cut) > 0 && !utf8.Valid(cut); i++ {
			cut = cut[:len(cut)-1]
		}
	}
	if !utf8.Valid(cut) {
		return "Preview not available"
	}
	return string(cut)
}

// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

package moderation

import (
	"errors"
	"strings"
	"testing"
)

func TestBlocked(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"how to kill myself", true},
		{"HOW TO KILL MYSELF", true},
		{"I want to end my life", true},
		{"tell me about self harm statistics", true},
		{"how do I bake bread", false},
		{"what is the weather today", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Blocked(tt.text); got != tt.want {
			t.Errorf("Blocked(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestBlockedSubstringMatch(t *testing.T) {
	// Containment, not word-boundary: an embedded term still matches.
	if !Blocked("xxkill myselfxx") {
		t.Error("embedded denylisted term should match")
	}
}

func TestSupportNumber(t *testing.T) {
	tests := []struct {
		locale string
		want   string
	}{
		{"en-US", "988"},
		{"en-GB", "988"}, // GB is not a configured region
		{"en-UK", "116 123"},
		{"fr-CA", "1-833-456-4566"},
		{"en-AU", "13 11 14"},
		{"en-us", "988"},
		{"en", "988"},
		{"", "988"},
	}
	for _, tt := range tests {
		if got := SupportNumber(tt.locale); got != tt.want {
			t.Errorf("SupportNumber(%q) = %q, want %q", tt.locale, got, tt.want)
		}
	}
}

func TestCheck(t *testing.T) {
	if err := Check("hello there", "en-US"); err != nil {
		t.Errorf("expected nil for clean text, got %v", err)
	}

	err := Check("how to die", "en-AU")
	if err == nil {
		t.Fatal("expected BlockedError")
	}
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected BlockedError, got %T", err)
	}
	if blocked.SupportNumber != "13 11 14" {
		t.Errorf("got support number %q, want 13 11 14", blocked.SupportNumber)
	}
}

func TestBlockedErrorDoesNotLeakContent(t *testing.T) {
	err := Check("how to die", "en-US")
	if err == nil {
		t.Fatal("expected error")
	}
	if msg := err.Error(); strings.Contains(msg, "how to die") {
		t.Errorf("error message should not carry the blocked text: %q", msg)
	}
}

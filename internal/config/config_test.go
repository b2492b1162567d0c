// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zevy-cloud/zevy/internal/keys"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Backend.URL == "" {
		t.Error("expected default backend URL")
	}
	if cfg.Chat.Mode != "auto" {
		t.Errorf("expected default mode auto, got %q", cfg.Chat.Mode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should yield defaults, got %v", err)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("got %q", cfg.Server.Listen)
	}
}

func TestLoadFromPathParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[backend]
url = "https://api.zevy.cloud"

[chat]
mode = "vyra"
trait = "Playful"

[keys]
gemini = ["k1", "k2"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Backend.URL != "https://api.zevy.cloud" {
		t.Errorf("got %q", cfg.Backend.URL)
	}
	if cfg.Chat.Mode != "vyra" || cfg.Chat.Trait != "Playful" {
		t.Errorf("got %+v", cfg.Chat)
	}
	if pools := cfg.Keys.Pools(); len(pools[keys.ProviderGemini]) != 2 {
		t.Errorf("expected 2 gemini keys, got %v", pools[keys.ProviderGemini])
	}
	// Unset sections keep defaults.
	if cfg.Server.RateLimitBurst != 10 {
		t.Errorf("got burst %d", cfg.Server.RateLimitBurst)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ZEVY_API_URL", "https://env.zevy.cloud")
	t.Setenv("ZEVY_MODE", "astra")
	t.Setenv("ZEVY_JWT_SECRET", "hush")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.URL != "https://env.zevy.cloud" {
		t.Errorf("got %q", cfg.Backend.URL)
	}
	if cfg.Chat.Mode != "astra" {
		t.Errorf("got %q", cfg.Chat.Mode)
	}
	if cfg.Auth.JWTSecret != "hush" {
		t.Errorf("got %q", cfg.Auth.JWTSecret)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Backend.URL = "not a url"
	cfg.Chat.Mode = "gpt"
	cfg.Server.RateLimitBurst = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	var errs ValidateErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected ValidateErrors, got %T", err)
	}
	if len(errs) != 3 {
		t.Errorf("expected 3 errors, got %d: %v", len(errs), errs)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Chat.Trait = "Curious"
	cfg.Keys.Flux = []string{"fk"}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file permissions %o, want 0600", perm)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Chat.Trait != "Curious" || len(loaded.Keys.Flux) != 1 {
		t.Errorf("round trip lost data: %+v", loaded)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := Save(Default(), path); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got *Config
	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		got = cfg
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.debounce = 20 * time.Millisecond
	if err := w.Watch(); err != nil {
		t.Fatal(err)
	}

	updated := Default()
	updated.Chat.Trait = "Reloaded"
	if err := Save(updated, path); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		done := got != nil && got.Chat.Trait == "Reloaded"
		mu.Unlock()
		if done {
			return
		}
		select {
		case <-deadline:
			t.Fatal("watcher did not deliver reload in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWatcherSkipsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := Save(Default(), path); err != nil {
		t.Fatal(err)
	}

	var calls int
	var mu sync.Mutex
	w, err := NewWatcher(path, func(*Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.debounce = 20 * time.Millisecond
	if err := w.Watch(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("mode = [broken"), 0600); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("invalid config should not trigger the callback, got %d calls", calls)
	}
}

// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config manages the zevy configuration.
//
// Configuration is loaded with the following precedence (highest wins):
//  1. Environment variables (ZEVY_*)
//  2. ~/.zevy/config.toml
//  3. Built-in defaults
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/zevy-cloud/zevy/internal/keys"
)

// =============================================================================
// CONFIG STRUCTURE
// =============================================================================

// Config is the root configuration.
type Config struct {
	// Backend is the client-side view of the API service.
	Backend BackendConfig `toml:"backend" json:"backend"`

	// Server configures the API service itself.
	Server ServerConfig `toml:"server" json:"server"`

	// Auth configures login tokens and the privileged account.
	Auth AuthConfig `toml:"auth" json:"auth"`

	// Keys holds upstream credential pools per provider.
	Keys KeysConfig `toml:"keys" json:"keys"`

	// Storage locates local state on disk.
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Chat holds the default conversation settings.
	Chat ChatConfig `toml:"chat" json:"chat"`
}

// BackendConfig points the client at the API service.
type BackendConfig struct {
	// URL is the base URL of the chat backend.
	URL string `toml:"url" json:"url"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	// Listen is the bind address, host:port.
	Listen string `toml:"listen" json:"listen"`

	// RateLimitPerSecond caps requests per client IP.
	RateLimitPerSecond float64 `toml:"rate_limit_per_second" json:"rate_limit_per_second"`

	// RateLimitBurst is the bucket size for the per-IP limiter.
	RateLimitBurst int `toml:"rate_limit_burst" json:"rate_limit_burst"`

	// MaxBodyBytes caps request body size.
	MaxBodyBytes int64 `toml:"max_body_bytes" json:"max_body_bytes"`
}

// AuthConfig configures authentication.
type AuthConfig struct {
	// JWTSecret signs login tokens.
	// SECURITY: Must be configured via ZEVY_JWT_SECRET env var or this field.
	JWTSecret string `toml:"jwt_secret" json:"jwt_secret"`

	// TokenTTLHours is how long a login token stays valid.
	TokenTTLHours int `toml:"token_ttl_hours" json:"token_ttl_hours"`

	// PrivilegedEmail is served the first credential slot and bypasses
	// rotation.
	PrivilegedEmail string `toml:"privileged_email" json:"privileged_email"`
}

// KeysConfig holds credential pools. Environment slots take precedence
// over these entries when both are set.
type KeysConfig struct {
	Gemini []string `toml:"gemini" json:"gemini"`
	Groq   []string `toml:"groq" json:"groq"`
	Google []string `toml:"google" json:"google"`
	News   []string `toml:"news" json:"news"`
	Flux   []string `toml:"flux" json:"flux"`
}

// Pools converts the config entries into selector pools.
func (k KeysConfig) Pools() map[keys.Provider][]string {
	return map[keys.Provider][]string{
		keys.ProviderGemini: k.Gemini,
		keys.ProviderGroq:   k.Groq,
		keys.ProviderGoogle: k.Google,
		keys.ProviderNews:   k.News,
		keys.ProviderFlux:   k.Flux,
	}
}

// StorageConfig locates persistent state.
type StorageConfig struct {
	// LocalDir is the base directory for the client-side state store.
	LocalDir string `toml:"local_dir" json:"local_dir"`

	// DatabasePath is the SQLite file backing the durable store.
	DatabasePath string `toml:"database_path" json:"database_path"`
}

// ChatConfig holds default conversation settings.
type ChatConfig struct {
	// Trait is the default personality trait.
	Trait string `toml:"trait" json:"trait"`

	// Mode is the default persona: auto, astra, vyra, or nova.
	Mode string `toml:"mode" json:"mode"`

	// Locale drives support-number resolution, BCP 47 (e.g. "en-US").
	Locale string `toml:"locale" json:"locale"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".zevy")
	return &Config{
		Backend: BackendConfig{
			URL: "http://localhost:8080",
		},
		Server: ServerConfig{
			Listen:             ":8080",
			RateLimitPerSecond: 5,
			RateLimitBurst:     10,
			MaxBodyBytes:       1 << 20, // 1MB
		},
		Auth: AuthConfig{
			TokenTTLHours: 72,
		},
		Storage: StorageConfig{
			LocalDir:     filepath.Join(base, "state"),
			DatabasePath: filepath.Join(base, "zevy.db"),
		},
		Chat: ChatConfig{
			Trait:  "Straightforward",
			Mode:   "auto",
			Locale: "en-US",
		},
	}
}

// ConfigDir returns ~/.zevy.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".zevy"), nil
}

// ConfigPath returns the TOML config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the configuration: defaults, then the config file if present,
// then environment overrides, then validation.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads the configuration from an explicit file path. A
// missing file is not an error; defaults plus env overrides apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// SECURITY: Ensure permissions are correct even if file already existed
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# zevy configuration file")
	fmt.Fprintln(file, "# Generated by zevy - edit with care")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies ZEVY_* environment variables:
//   - ZEVY_API_URL: overrides backend.url
//   - ZEVY_LISTEN: overrides server.listen
//   - ZEVY_JWT_SECRET: overrides auth.jwt_secret
//   - ZEVY_PRIVILEGED_EMAIL: overrides auth.privileged_email
//   - ZEVY_DB_PATH: overrides storage.database_path
//   - ZEVY_STATE_DIR: overrides storage.local_dir
//   - ZEVY_TRAIT: overrides chat.trait
//   - ZEVY_MODE: overrides chat.mode
//   - ZEVY_LOCALE: overrides chat.locale
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ZEVY_API_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("ZEVY_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("ZEVY_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("ZEVY_PRIVILEGED_EMAIL"); v != "" {
		c.Auth.PrivilegedEmail = v
	}
	if v := os.Getenv("ZEVY_DB_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("ZEVY_STATE_DIR"); v != "" {
		c.Storage.LocalDir = v
	}
	if v := os.Getenv("ZEVY_TRAIT"); v != "" {
		c.Chat.Trait = v
	}
	if v := os.Getenv("ZEVY_MODE"); v != "" {
		c.Chat.Mode = v
	}
	if v := os.Getenv("ZEVY_LOCALE"); v != "" {
		c.Chat.Locale = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Backend.URL != "" {
		if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "backend.url",
				Message: fmt.Sprintf("invalid URL '%s'", c.Backend.URL),
			})
		}
	}

	validModes := map[string]bool{"auto": true, "astra": true, "vyra": true, "nova": true}
	if !validModes[strings.ToLower(c.Chat.Mode)] {
		errs = append(errs, ValidationError{
			Field:   "chat.mode",
			Message: fmt.Sprintf("invalid mode '%s', must be one of: auto, astra, vyra, nova", c.Chat.Mode),
		})
	}

	if c.Server.RateLimitPerSecond <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.rate_limit_per_second",
			Message: "must be positive",
		})
	}
	if c.Server.RateLimitBurst <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.rate_limit_burst",
			Message: "must be positive",
		})
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_bytes",
			Message: "must be positive",
		})
	}
	if c.Auth.TokenTTLHours <= 0 {
		errs = append(errs, ValidationError{
			Field:   "auth.token_ttl_hours",
			Message: "must be positive",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// GLOBAL ACCESS
// =============================================================================

var (
	globalConfig *Config
	globalMu     sync.RWMutex
)

// Global returns the process-wide configuration, loading it on first use.
// Falls back to defaults if loading fails.
func Global() *Config {
	globalMu.RLock()
	if globalConfig != nil {
		defer globalMu.RUnlock()
		return globalConfig
	}
	globalMu.RUnlock()

	cfg, err := Load()
	if err != nil {
		cfg = Default()
	}
	SetGlobal(cfg)
	return cfg
}

// SetGlobal replaces the process-wide configuration.
func SetGlobal(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = cfg
}

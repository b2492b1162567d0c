// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package keys manages upstream API credential pools and rotation.
package keys

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// =============================================================================
// PROVIDERS
// =============================================================================

// Provider identifies an upstream credential pool.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderGroq   Provider = "groq"
	ProviderGoogle Provider = "google"
	ProviderNews   Provider = "news"
	ProviderFlux   Provider = "flux"
)

// envSlots maps each provider to its environment variable names, in pool
// order. Unset or blank slots are skipped at load time.
var envSlots = map[Provider][]string{
	ProviderGemini: {"GEMINI_API_KEY_1", "GEMINI_API_KEY_2", "GEMINI_API_KEY_3", "GEMINI_API_KEY_4"},
	ProviderGroq:   {"GROQ_API_KEY_1", "GROQ_API_KEY_2", "GROQ_API_KEY_3", "GROQ_API_KEY_4"},
	ProviderGoogle: {"GOOGLE_API_KEY_1"},
	ProviderNews:   {"NEWS_API_KEY_1"},
	ProviderFlux:   {"FLUX_API_KEY_1"},
}

// =============================================================================
// SELECTOR
// =============================================================================

// Selector rotates through per-provider credential pools. Rotation state is
// owned by the instance, so independent selectors never share a cursor.
//
// SECURITY: credentials are held in memory only and are never logged.
type Selector struct {
	mu    sync.Mutex
	pools map[Provider][]string

	// cursor is shared across providers and advances on every Next call.
	// Each provider indexes it modulo its own pool size, so pools of
	// different lengths still rotate uniformly.
	cursor int
}

// NewSelector creates a selector over the given pools. Blank credentials
// are dropped; providers whose pools end up empty are omitted.
func NewSelector(pools map[Provider][]string) *Selector {
	clean := make(map[Provider][]string, len(pools))
	for provider, creds := range pools {
		kept := make([]string, 0, len(creds))
		for _, c := range creds {
			if strings.TrimSpace(c) != "" {
				kept = append(kept, c)
			}
		}
		if len(kept) > 0 {
			clean[provider] = kept
		}
	}
	return &Selector{pools: clean}
}

// FromEnv builds a selector from the process environment.
func FromEnv() *Selector {
	pools := make(map[Provider][]string, len(envSlots))
	for provider, vars := range envSlots {
		for _, name := range vars {
			pools[provider] = append(pools[provider], os.Getenv(name))
		}
	}
	return NewSelector(pools)
}

// Next returns the next credential for the provider and advances the
// rotation cursor. Returns ("", false) when the provider has no pool.
func (s *Selector) Next(provider Provider) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := s.pools[provider]
	if !ok || len(pool) == 0 {
		return "", false
	}
	cred := pool[s.cursor%len(pool)]
	s.cursor++
	return cred, true
}

// Select returns a credential for the provider on behalf of an account.
// The privileged account is always served the first pool slot and does not
// advance the cursor; every other account rotates through Next.
func (s *Selector) Select(provider Provider, account, privileged string) (string, bool) {
	if privileged != "" && strings.EqualFold(account, privileged) {
		s.mu.Lock()
		defer s.mu.Unlock()
		pool, ok := s.pools[provider]
		if !ok || len(pool) == 0 {
			return "", false
		}
		return pool[0], true
	}
	return s.Next(provider)
}

// PoolSize returns the number of usable credentials for a provider.
func (s *Selector) PoolSize(provider Provider) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pools[provider])
}

// SetPools atomically replaces all pools and resets the cursor. Used by the
// config watcher to hot-reload credentials without restarting.
func (s *Selector) SetPools(pools map[Provider][]string) {
	fresh := NewSelector(pools)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools = fresh.pools
	s.cursor = 0
}

// String describes the pool shape without exposing credentials.
func (s *Selector) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]string, 0, len(s.pools))
	for provider, pool := range s.pools {
		parts = append(parts, fmt.Sprintf("%s:%d", provider, len(pool)))
	}
	return "keys[" + strings.Join(parts, " ") + "]"
}

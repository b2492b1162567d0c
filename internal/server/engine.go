// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/zevy-cloud/zevy/internal/model"
	"github.com/zevy-cloud/zevy/internal/router"
	"github.com/zevy-cloud/zevy/internal/util"
)

// =============================================================================
// ENGINE INTERFACE
// =============================================================================

// EngineRequest is one generation request handed to an engine.
type EngineRequest struct {
	Message      string
	Trait        string
	SystemPrompt string
	WebSearch    bool
	History      []model.HistoryEntry

	// Credential is the upstream API key selected for this call.
	Credential string
}

// EngineResponse is an engine's completed generation.
type EngineResponse struct {
	Text      string
	Reasoning string
}

// Engine produces a response for one persona.
type Engine interface {
	Name() string
	Generate(ctx context.Context, req EngineRequest) (*EngineResponse, error)
}

// ErrNoEngine indicates no engine is registered for a persona.
var ErrNoEngine = errors.New("no engine registered for persona")

// =============================================================================
// REGISTRY
// =============================================================================

// EngineRegistry maps personas to engines.
type EngineRegistry struct {
	mu      sync.RWMutex
	engines map[router.Persona]Engine
}

// NewEngineRegistry creates an empty registry.
func NewEngineRegistry() *EngineRegistry {
	return &EngineRegistry{engines: make(map[router.Persona]Engine)}
}

// Register binds an engine to a persona, replacing any previous binding.
func (r *EngineRegistry) Register(persona router.Persona, engine Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[persona] = engine
}

// Resolve returns the engine for a persona. "auto" falls through to the
// general-conversation persona.
func (r *EngineRegistry) Resolve(persona router.Persona) (Engine, router.Persona, error) {
	if persona == router.PersonaAuto {
		persona = router.PersonaAstra
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	engine, ok := r.engines[persona]
	if !ok {
		return nil, persona, fmt.Errorf("%w: %s", ErrNoEngine, persona)
	}
	return engine, persona, nil
}

// =============================================================================
// UPSTREAM ENGINE
// =============================================================================

// upstreamTimeout bounds a single upstream generation call.
const upstreamTimeout = 55 * time.Second

// UpstreamEngine posts the request to a configurable completions URL with
// the selected credential as a bearer token.
type UpstreamEngine struct {
	name   string
	url    string
	client *http.Client
}

// NewUpstreamEngine creates an engine for the completions service at url.
func NewUpstreamEngine(name, url string) *UpstreamEngine {
	return &UpstreamEngine{
		name: name,
		url:  url,
		client: &http.Client{
			Timeout: upstreamTimeout,
		},
	}
}

// Name returns the engine name.
func (e *UpstreamEngine) Name() string { return e.name }

type upstreamRequest struct {
	Prompt       string               `json:"prompt"`
	SystemPrompt string               `json:"system_prompt,omitempty"`
	Trait        string               `json:"trait,omitempty"`
	WebSearch    bool                 `json:"web_search,omitempty"`
	History      []model.HistoryEntry `json:"history,omitempty"`
}

type upstreamResponse struct {
	Text      string `json:"text"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Generate posts the request upstream and decodes the completion.
func (e *UpstreamEngine) Generate(ctx context.Context, req EngineRequest) (*EngineResponse, error) {
	payload, err := json.Marshal(upstreamRequest{
		Prompt:       req.Message,
		SystemPrompt: req.SystemPrompt,
		Trait:        req.Trait,
		WebSearch:    req.WebSearch,
		History:      req.History,
	})
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", e.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxRequestBodySize))
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream %s returned status %d", e.name, resp.StatusCode)
	}

	var out upstreamResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}
	return &EngineResponse{Text: out.Text, Reasoning: out.Reasoning}, nil
}

// =============================================================================
// FALLBACK ENGINE
// =============================================================================

// FallbackEngine answers deterministically when no upstream is configured,
// echoing enough of the request to keep development and tests offline.
type FallbackEngine struct {
	persona string
}

// NewFallbackEngine creates a fallback engine for a persona.
func NewFallbackEngine(persona string) *FallbackEngine {
	return &FallbackEngine{persona: persona}
}

// Name returns the engine name.
func (e *FallbackEngine) Name() string { return e.persona + "-fallback" }

// Generate produces a canned acknowledgement of the prompt.
func (e *FallbackEngine) Generate(_ context.Context, req EngineRequest) (*EngineResponse, error) {
	summary := util.Truncate(req.Message, 60)
	return &EngineResponse{
		Text: fmt.Sprintf("[%s] I received your message about %q. No upstream engine is configured, so this is a locally generated reply.", e.persona, summary),
	}, nil
}

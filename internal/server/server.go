// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the zevy backend HTTP API.
//
// Endpoints:
//   - GET  /api/health        - Health check
//   - POST /api/chat          - One chat turn
//   - POST /api/auth/login    - Email/password login
//   - GET  /api/conversations - Saved conversations for the token's account
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/zevy-cloud/zevy/internal/config"
	"github.com/zevy-cloud/zevy/internal/database"
	"github.com/zevy-cloud/zevy/internal/keys"
	"github.com/zevy-cloud/zevy/internal/model"
	"github.com/zevy-cloud/zevy/internal/moderation"
	"github.com/zevy-cloud/zevy/internal/router"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxMessageLength caps a single message to prevent DoS.
	MaxMessageLength = 100000

	// MaxHistoryCount caps the history entries in a request.
	MaxHistoryCount = 100

	// MaxRequestBodySize caps the request body (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// Version is the server version.
	Version = "1.0.0"
)

// validRoles is the accepted set for history entries.
// SECURITY: Roles outside the whitelist are rejected to block injection.
var validRoles = map[string]bool{
	"user":      true,
	"assistant": true,
}

// providerFor maps each persona to its credential pool.
var providerFor = map[router.Persona]keys.Provider{
	router.PersonaAstra: keys.ProviderGemini,
	router.PersonaVyra:  keys.ProviderGroq,
	router.PersonaNova:  keys.ProviderFlux,
}

// ============================================================================
// WIRE TYPES
// ============================================================================

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	Message        string               `json:"message"`
	Trait          string               `json:"trait"`
	Mode           string               `json:"mode"`
	SystemPrompt   string               `json:"systemPrompt"`
	WebSearch      bool                 `json:"webSearch"`
	History        []model.HistoryEntry `json:"conversation_history"`
	UserID         string               `json:"user_id"`
	Email          string               `json:"email"`
	ConversationID string               `json:"conversation_id,omitempty"`
	Locale         string               `json:"locale,omitempty"`
}

// ChatResponse is the outbound chat payload.
type ChatResponse struct {
	Response  string `json:"response"`
	ModeUsed  string `json:"mode_used,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// LoginRequest is the inbound login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the successful login payload.
type LoginResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the zevy backend HTTP API.
type Server struct {
	cfg      *config.Config
	db       *database.DB
	selector *keys.Selector
	engines  *EngineRegistry
	tokens   *TokenIssuer
	limiter  *RateLimiter
	mux      *http.ServeMux
	server   *http.Server
	started  time.Time
}

// NewServer assembles the API around its collaborators. Personas without
// a registered engine fall back to deterministic local replies.
func NewServer(cfg *config.Config, db *database.DB, selector *keys.Selector) *Server {
	registry := NewEngineRegistry()
	for _, persona := range []router.Persona{router.PersonaAstra, router.PersonaVyra, router.PersonaNova} {
		registry.Register(persona, NewFallbackEngine(string(persona)))
	}

	s := &Server{
		cfg:      cfg,
		db:       db,
		selector: selector,
		engines:  registry,
		tokens:   NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour),
		limiter:  NewRateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst),
		mux:      http.NewServeMux(),
		started:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// Engines exposes the registry so callers can bind upstream engines.
func (s *Server) Engines() *EngineRegistry {
	return s.engines
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/conversations", s.handleConversations)
}

// Handler returns the mux wrapped in the middleware chain. The rate
// limiter is shared across calls; it belongs to the server, not the
// handler.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(log.Default()),
		RateLimitMiddleware(s.limiter),
		MaxBodyMiddleware(s.cfg.Server.MaxBodyBytes),
	)(s.mux)
}

// Start runs the server until Shutdown or listener failure.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Printf("SERVER_START | addr=%s version=%s", s.cfg.Server.Listen, Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Close()
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validateChatRequest(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// SECURITY: the denylist runs server-side as well; a client that
	// skips its own check still cannot push blocked content upstream.
	if moderation.Blocked(req.Message) {
		s.writeJSON(w, http.StatusForbidden, map[string]any{
			"detail": "Blocked content detected",
			"supportNumbers": map[string]string{
				"US":      "988",
				"UK":      "116 123",
				"CA":      "1-833-456-4566",
				"AU":      "13 11 14",
				"default": moderation.SupportNumber(req.Locale),
			},
		})
		return
	}

	engine, resolved, err := s.engines.Resolve(router.Persona(req.Mode))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}

	credential, _ := s.selector.Select(providerFor[resolved], req.Email, s.cfg.Auth.PrivilegedEmail)

	// Persist the turn before generation; a failed generation still
	// leaves the user's message recorded.
	if req.Email != "" {
		convID := req.ConversationID
		if convID == "" {
			convID = model.GenerateConversationID()
		}
		msgs := historyToMessages(req.History)
		msgs = append(msgs, model.NewUserMessage(req.Message))
		rec := &database.ConversationRecord{
			ID:        convID,
			UserEmail: req.Email,
			Trait:     req.Trait,
			Messages:  msgs,
		}
		if err := s.db.UpsertConversation(r.Context(), rec); err != nil {
			log.Printf("CHAT_PERSIST_FAIL | conv=%s err=%v", convID, err)
		}
	}

	resp, err := engine.Generate(r.Context(), EngineRequest{
		Message:      req.Message,
		Trait:        req.Trait,
		SystemPrompt: req.SystemPrompt,
		WebSearch:    req.WebSearch,
		History:      req.History,
		Credential:   credential,
	})
	if err != nil {
		log.Printf("CHAT_ENGINE_FAIL | engine=%s err=%v", engine.Name(), err)
		s.writeError(w, http.StatusInternalServerError, "generation failed")
		return
	}

	s.writeJSON(w, http.StatusOK, ChatResponse{
		Response:  resp.Text,
		ModeUsed:  string(resolved),
		Reasoning: resp.Reasoning,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := s.db.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, database.ErrInvalidCredentials) {
			s.writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		log.Printf("LOGIN_FAIL | err=%v", err)
		s.writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		log.Printf("TOKEN_FAIL | err=%v", err)
		s.writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	s.writeJSON(w, http.StatusOK, LoginResponse{
		UserID: user.ID,
		Email:  user.Email,
		Token:  token,
	})
}

// handleConversations serves the saved conversations for the account in
// the bearer token. The client treats its local snapshot as the source
// of truth; this read path exists for account recovery on a new device.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		s.writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	_, email, err := s.tokens.Verify(strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	recs, err := s.db.ListByEmail(r.Context(), email)
	if err != nil {
		log.Printf("CONV_LIST_FAIL | err=%v", err)
		s.writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}

	type wireConversation struct {
		ID        string           `json:"id"`
		Trait     string           `json:"trait"`
		Messages  []*model.Message `json:"messages"`
		UpdatedAt time.Time        `json:"updated_at"`
	}
	out := make([]wireConversation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, wireConversation{
			ID:        rec.ID,
			Trait:     rec.Trait,
			Messages:  rec.Messages,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

// ============================================================================
// VALIDATION
// ============================================================================

func validateChatRequest(req *ChatRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("message is required")
	}
	if len(req.Message) > MaxMessageLength {
		return fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	}
	if len(req.History) > MaxHistoryCount {
		return fmt.Errorf("history exceeds %d entries", MaxHistoryCount)
	}
	for i, entry := range req.History {
		if !validRoles[entry.Role] {
			return fmt.Errorf("invalid role %q at history entry %d", entry.Role, i)
		}
	}
	if req.Mode != "" && !router.Persona(req.Mode).Valid() {
		return fmt.Errorf("invalid mode %q", req.Mode)
	}
	return nil
}

func historyToMessages(history []model.HistoryEntry) []*model.Message {
	msgs := make([]*model.Message, 0, len(history))
	for _, entry := range history {
		msgs = append(msgs, model.NewMessage(model.Role(entry.Role), entry.Content))
	}
	return msgs
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

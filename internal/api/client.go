// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the zevy backend: health probe,
// chat dispatch, and login.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zevy-cloud/zevy/internal/model"
)

const (
	// HealthTimeout bounds the preflight probe.
	HealthTimeout = 5 * time.Second

	// ChatTimeout bounds the main chat call.
	ChatTimeout = 60 * time.Second

	// LoginTimeout bounds authentication calls.
	LoginTimeout = 10 * time.Second

	// maxRedirects caps redirect following before the call is treated as
	// a redirect loop.
	maxRedirects = 5

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit
)

// Sentinel errors for the backend client.
var (
	// ErrUnavailable indicates the health probe did not report a healthy
	// service.
	ErrUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates the request exceeded its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrUnreachable indicates no response arrived at all.
	ErrUnreachable = errors.New("backend unreachable")

	// ErrAuthFailed indicates the backend rejected the credentials (401).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made (429).
	ErrRateLimited = errors.New("rate limited")

	// ErrServer indicates an upstream server failure (500).
	ErrServer = errors.New("server error")

	// ErrRedirectLoop indicates the request bounced between redirects.
	ErrRedirectLoop = errors.New("redirect loop")
)

// StatusError carries an unexpected HTTP status plus any server-provided
// detail string.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatRequest is the outbound chat payload.
type ChatRequest struct {
	Message      string               `json:"message"`
	Trait        string               `json:"trait"`
	Mode         string               `json:"mode"`
	SystemPrompt string               `json:"systemPrompt"`
	WebSearch    bool                 `json:"webSearch"`
	History      []model.HistoryEntry `json:"conversation_history"`
	UserID       string               `json:"user_id"`
	Email        string               `json:"email"`
}

// ChatResponse is the backend's reply. A missing Response is a degraded
// result, not a failure; callers substitute ApologyPlaceholder.
type ChatResponse struct {
	Response  string `json:"response"`
	ModeUsed  string `json:"mode_used,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ApologyPlaceholder stands in when the backend returns no response text.
const ApologyPlaceholder = "I encountered an issue generating a response. Please try again."

// LoginResponse is the successful authentication payload.
type LoginResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// =============================================================================
// CLIENT
// =============================================================================

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// Shared HTTP client for all backend requests; per-call deadlines come
// from context, never from the client itself.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return ErrRedirectLoop
		}
		return nil
	},
}

// Client talks to one zevy backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: sharedHTTPClient,
	}
}

// WithHTTPClient overrides the transport, for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Health probes the backend and returns nil only for a healthy report.
// RELIABILITY: the probe runs before every chat call so a dead backend
// fails fast instead of burning the long chat timeout.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportErr(err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return ErrUnavailable
	}

	var health healthResponse
	if err := json.Unmarshal(body, &health); err != nil || health.Status != "ok" {
		return ErrUnavailable
	}
	return nil
}

// Chat posts one chat turn. There is no automatic retry: a failed call
// surfaces immediately and the user decides whether to retry.
func (c *Client) Chat(ctx context.Context, chatReq ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, ChatTimeout)
	defer cancel()

	body, err := c.postJSON(ctx, "/api/chat", chatReq)
	if err != nil {
		return nil, err
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if chatResp.Response == "" {
		chatResp.Response = ApologyPlaceholder
	}
	return &chatResp, nil
}

// Login authenticates an account and returns its identity plus token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, LoginTimeout)
	defer cancel()

	body, err := c.postJSON(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	var login LoginResponse
	if err := json.Unmarshal(body, &login); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	return &login, nil
}

// postJSON sends a JSON POST and returns the raw body of a 2xx response.
// Non-2xx statuses are mapped onto the sentinel error set.
func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, ErrAuthFailed
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusInternalServerError:
		return nil, ErrServer
	}

	var detail errorResponse
	json.Unmarshal(body, &detail)
	return nil, &StatusError{StatusCode: resp.StatusCode, Detail: detail.Detail}
}

// classifyTransportErr maps transport-level failures onto sentinels.
func classifyTransportErr(err error) error {
	switch {
	case errors.Is(err, ErrRedirectLoop):
		return ErrRedirectLoop
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
}

// readResponse reads the response body with size limits.
//
// SECURITY: Response size limit prevents memory exhaustion attacks.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// =============================================================================
// USER-VISIBLE ERROR MAPPING
// =============================================================================

// UserMessage translates a client error into the banner text shown to the
// user. The strings mirror the product's established wording.
func UserMessage(err error) string {
	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrTimeout):
		return "Request timeout. Try a shorter question or check your connection."
	case errors.Is(err, ErrRedirectLoop):
		return "Redirect loop detected. Please clear your cache and try again."
	case errors.Is(err, ErrUnreachable):
		return "Can't reach Zevy. Check your internet and try again."
	case errors.Is(err, ErrUnavailable):
		return "Zevy is temporarily unavailable. Please try again in a moment."
	case errors.Is(err, ErrAuthFailed):
		return "Authentication error. Please check your API keys."
	case errors.Is(err, ErrRateLimited):
		return "Rate limited. Wait a moment and try again."
	case errors.Is(err, ErrServer):
		return "Server error. Our team is notified. Please try again."
	case errors.As(err, &statusErr) && statusErr.Detail != "":
		return statusErr.Detail
	case err != nil:
		return "Error: " + err.Error()
	}
	return "Something went wrong. Please try again."
}

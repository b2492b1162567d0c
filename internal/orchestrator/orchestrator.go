// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator drives one chat turn end to end: content policy,
// conversation bookkeeping, intent routing, preflight, and the main call.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zevy-cloud/zevy/internal/api"
	"github.com/zevy-cloud/zevy/internal/attach"
	"github.com/zevy-cloud/zevy/internal/localstore"
	"github.com/zevy-cloud/zevy/internal/model"
	"github.com/zevy-cloud/zevy/internal/moderation"
	"github.com/zevy-cloud/zevy/internal/router"
	"github.com/zevy-cloud/zevy/internal/usage"
	"github.com/zevy-cloud/zevy/internal/workspace"
)

// DefaultSystemPrompt accompanies every chat request.
const DefaultSystemPrompt = `You are Zevy AI, an advanced AI assistant created by Adam Zein Ziqry.

Your strengths:
- Real-time web search & current information
- Deep analysis & critical thinking
- Creative problem-solving
- Clear, conversational explanations
- Honest about limitations

Keep responses concise, friendly, and practical.
Use examples when helpful.
Be transparent about uncertainty.`

var (
	// ErrEmptyMessage indicates the input was blank after trimming.
	ErrEmptyMessage = errors.New("empty message")

	// ErrBusy indicates a send is already in flight. Requests are
	// rejected, never queued.
	ErrBusy = errors.New("a request is already in flight")

	// ErrNothingToRetry indicates the active conversation has no user
	// message to re-send.
	ErrNothingToRetry = errors.New("nothing to retry")
)

// =============================================================================
// NOTIFIER
// =============================================================================

// Level grades a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier receives user-facing event notifications. Implementations must
// be fast; they are called inline on the send path.
type Notifier interface {
	Notify(level Level, message string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(Level, string) {}

// =============================================================================
// BACKEND
// =============================================================================

// Backend is the slice of the API client the orchestrator needs.
type Backend interface {
	Health(ctx context.Context) error
	Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Identity is the signed-in account attached to outgoing requests.
type Identity struct {
	UserID string
	Email  string
}

// Orchestrator coordinates one chat turn at a time for a workspace.
type Orchestrator struct {
	ws       *workspace.Workspace
	backend  Backend
	usage    *usage.Tracker
	notifier Notifier

	// store persists usage counters and preferences; nil disables both.
	store *localstore.Store

	// inFlight guards the single-send invariant: a second send while one
	// is running is rejected, not queued.
	inFlight atomic.Bool

	// Settings; mutated only between sends, from the event loop.
	Trait        string
	Mode         router.Persona
	SystemPrompt string
	Locale       string
	Identity     Identity

	// Presentation preferences. The orchestrator never reads these; they
	// ride along so SaveSettings covers everything the shell persists.
	Theme  string
	Colors string

	// attachments staged for the next send; cleared once it succeeds.
	attMu       sync.Mutex
	attachments []*attach.File
}

// New creates an orchestrator with default settings.
func New(ws *workspace.Workspace, backend Backend, tracker *usage.Tracker, notifier Notifier) *Orchestrator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Orchestrator{
		ws:           ws,
		backend:      backend,
		usage:        tracker,
		notifier:     notifier,
		Trait:        "Straightforward",
		Mode:         router.PersonaAuto,
		SystemPrompt: DefaultSystemPrompt,
		Locale:       "en-US",
	}
}

// WithStore attaches a local store for usage-counter and preference
// persistence, restoring any previously saved preferences. Returns o for
// chaining.
func (o *Orchestrator) WithStore(store *localstore.Store) *Orchestrator {
	o.store = store
	o.loadSettings()
	return o
}

// Busy reports whether a send is currently in flight.
func (o *Orchestrator) Busy() bool {
	return o.inFlight.Load()
}

// Usage exposes the current account's tracker.
func (o *Orchestrator) Usage() *usage.Tracker {
	return o.usage
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// StageAttachment loads a file and stages it for the next send.
func (o *Orchestrator) StageAttachment(path string) error {
	file, err := attach.Load(path)
	if err != nil {
		o.notifier.Notify(LevelError, err.Error())
		return err
	}
	o.attMu.Lock()
	o.attachments = append(o.attachments, file)
	o.attMu.Unlock()
	return nil
}

// Attachments returns a copy of the staged attachments in order.
func (o *Orchestrator) Attachments() []*attach.File {
	o.attMu.Lock()
	defer o.attMu.Unlock()
	out := make([]*attach.File, len(o.attachments))
	copy(out, o.attachments)
	return out
}

// RemoveAttachment unstages by index. Out-of-range is a no-op.
func (o *Orchestrator) RemoveAttachment(index int) {
	o.attMu.Lock()
	defer o.attMu.Unlock()
	if index < 0 || index >= len(o.attachments) {
		return
	}
	o.attachments = append(o.attachments[:index], o.attachments[index+1:]...)
}

func (o *Orchestrator) clearAttachments() {
	o.attMu.Lock()
	o.attachments = nil
	o.attMu.Unlock()
}

// =============================================================================
// ACCOUNT & SETTINGS PERSISTENCE
// =============================================================================

// SetAccount switches to a signed-in account: the workspace snapshot and
// the account's usage counters are restored from the store. A missing or
// stale usage snapshot yields fresh counters.
func (o *Orchestrator) SetAccount(id Identity) {
	o.Identity = id
	o.ws.SetAccount(id.Email)

	if o.store != nil && id.Email != "" {
		var snap usage.Snapshot
		if err := o.store.Get(localstore.AccountKey("usage", id.Email), &snap); err == nil {
			o.usage = usage.Restore(snap)
			return
		}
	}
	o.usage = usage.NewTracker()
}

// Logout drops the account, resets the workspace, and discards the usage
// counters. Persisted snapshots stay in place for the next sign-in.
func (o *Orchestrator) Logout() {
	o.Identity = Identity{}
	o.ws.Logout()
	o.usage = usage.NewTracker()
}

// saveUsage snapshots the counters under the account's usage key. Guest
// sessions are never written.
func (o *Orchestrator) saveUsage() {
	if o.store == nil || o.Identity.Email == "" {
		return
	}
	key := localstore.AccountKey("usage", o.Identity.Email)
	if err := o.store.Put(key, o.usage.Snapshot()); err != nil {
		log.Printf("[orchestrator] persist usage failed: %v", err)
	}
}

// SaveSettings writes the current preferences under their global keys.
func (o *Orchestrator) SaveSettings() {
	if o.store == nil {
		return
	}
	for key, value := range map[string]string{
		"theme":  o.Theme,
		"trait":  o.Trait,
		"mode":   string(o.Mode),
		"colors": o.Colors,
	} {
		if err := o.store.Put(key, value); err != nil {
			log.Printf("[orchestrator] persist %s failed: %v", key, err)
		}
	}
}

// loadSettings restores preferences from their global keys. Missing or
// unreadable keys keep their defaults.
func (o *Orchestrator) loadSettings() {
	if o.store == nil {
		return
	}
	var s string
	if o.store.Get("theme", &s) == nil && s != "" {
		o.Theme = s
	}
	if o.store.Get("trait", &s) == nil && s != "" {
		o.Trait = s
	}
	if o.store.Get("mode", &s) == nil && router.Persona(s).Valid() {
		o.Mode = router.Persona(s)
	}
	if o.store.Get("colors", &s) == nil && s != "" {
		o.Colors = s
	}
}

// Send runs one chat turn for the active conversation.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	return o.send(ctx, text, false)
}

// Retry re-sends the active conversation's last user message. On success
// the trailing error message is replaced, never duplicated.
func (o *Orchestrator) Retry(ctx context.Context) error {
	last := o.ws.ActiveConversation().LastUserMessage()
	if last == nil {
		return ErrNothingToRetry
	}
	return o.send(ctx, last.Content, true)
}

func (o *Orchestrator) send(ctx context.Context, text string, isRetry bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	if !o.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.inFlight.Store(false)

	// Content policy runs unconditionally, retries included, before any
	// state mutation or network traffic. Blocked text is never stored.
	if err := moderation.Check(text, o.Locale); err != nil {
		o.notifier.Notify(LevelWarning, "If you're struggling, we care. Please reach out.")
		return err
	}

	o.ws.ClearActiveError()

	conv := o.ws.ActiveConversation()
	baseline := o.ws.ActiveMessages()

	if isRetry {
		// Drop the trailing error message; the original user message
		// stays where it is and is not re-appended.
		if n := len(baseline); n > 0 && baseline[n-1].IsError() {
			baseline = baseline[:n-1]
		}
	} else {
		firstMessage := len(baseline) == 0
		baseline = append(baseline, model.NewUserMessage(text))
		o.ws.ReplaceActiveMessages(baseline)
		if firstMessage {
			o.ws.Rename(o.ws.ActiveIndex(), model.DeriveName(text))
		}
		o.ws.PromoteToTop(o.ws.ActiveIndex())
	}

	intent := router.Classify(text)
	resolved := router.Resolve(o.Mode, intent)

	// History carries everything before the message being sent, errors
	// excluded, as bare role+content pairs.
	history := historyBefore(baseline, text)

	if err := o.backend.Health(ctx); err != nil {
		return o.fail(conv.ID, baseline, api.ErrUnavailable)
	}

	resp, err := o.backend.Chat(ctx, api.ChatRequest{
		Message:      text,
		Trait:        o.Trait,
		Mode:         string(resolved),
		SystemPrompt: o.SystemPrompt,
		WebSearch:    intent.WantsSearch,
		History:      history,
		UserID:       o.Identity.UserID,
		Email:        o.Identity.Email,
	})
	if err != nil {
		return o.fail(conv.ID, baseline, err)
	}

	o.usage.Record(string(resolved))
	o.saveUsage()

	mode := resp.ModeUsed
	if mode == "" {
		mode = string(resolved)
	}
	assistant := model.NewAssistantMessage(resp.Response, mode, resp.Reasoning)
	o.ws.ReplaceActiveMessages(append(baseline, assistant))
	o.clearAttachments()
	return nil
}

// fail surfaces an error turn: a flagged assistant message plus the
// conversation's error banner. The guard owner reports the cause.
func (o *Orchestrator) fail(convID string, baseline []*model.Message, cause error) error {
	banner := api.UserMessage(cause)
	o.ws.ReplaceActiveMessages(append(baseline, model.NewErrorMessage(banner)))
	o.ws.SetError(convID, banner)
	o.notifier.Notify(LevelError, banner)
	return cause
}

// historyBefore projects the baseline into wire history, stopping before
// the trailing user message that carries the outgoing text.
func historyBefore(baseline []*model.Message, outgoing string) []model.HistoryEntry {
	msgs := baseline
	if n := len(msgs); n > 0 && msgs[n-1].Role == model.RoleUser && msgs[n-1].Content == outgoing {
		msgs = msgs[:n-1]
	}
	entries := make([]model.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		if m.IsError() {
			continue
		}
		entries = append(entries, model.HistoryEntry{Role: m.Role.String(), Content: m.Content})
	}
	return entries
}

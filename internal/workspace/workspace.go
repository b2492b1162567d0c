// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package workspace owns the ordered conversation collection, the active
// selection, and per-conversation error banners.
package workspace

import (
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/zevy-cloud/zevy/internal/localstore"
	"github.com/zevy-cloud/zevy/internal/model"
)

// snapshot is the persisted form of the whole workspace.
type snapshot struct {
	Conversations []*model.Conversation `json:"conversations"`
	Active        int                   `json:"active"`
}

// Workspace holds every conversation for the current session. All methods
// are safe for concurrent use; the invariant 0 <= active < len holds
// whenever the collection is non-empty.
type Workspace struct {
	mu            sync.Mutex
	conversations []*model.Conversation
	active        int

	// Per-conversation error banners, keyed by conversation ID. An entry
	// is cleared only for the active conversation, so switching away from
	// a failed conversation preserves its banner.
	errors map[string]string

	// store persists snapshots for signed-in accounts; guest sessions
	// (account == "") are never persisted.
	store   *localstore.Store
	account string
}

// New creates a guest workspace with one fresh conversation. A nil store
// disables persistence entirely.
func New(store *localstore.Store) *Workspace {
	w := &Workspace{
		store:  store,
		errors: make(map[string]string),
	}
	w.conversations = []*model.Conversation{model.NewConversation("New Chat")}
	return w
}

// =============================================================================
// ACCOUNT LIFECYCLE
// =============================================================================

// SetAccount switches the workspace to a signed-in account, loading its
// persisted snapshot. A missing or corrupt snapshot falls back to one
// fresh conversation rather than failing.
func (w *Workspace) SetAccount(email string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.account = email
	w.errors = make(map[string]string)

	var snap snapshot
	if w.store != nil {
		err := w.store.Get(localstore.AccountKey("conversations", email), &snap)
		if err == nil && len(snap.Conversations) > 0 {
			w.conversations = snap.Conversations
			w.active = snap.Active
			if w.active < 0 || w.active >= len(w.conversations) {
				w.active = 0
			}
			return
		}
		if err != nil && !errors.Is(err, localstore.ErrNotFound) {
			log.Printf("[workspace] discarding unreadable snapshot for %s: %v", email, err)
		}
	}
	w.conversations = []*model.Conversation{model.NewConversation("New Chat")}
	w.active = 0
}

// Logout drops the account and resets to a single fresh conversation.
// The persisted snapshot is left in place for the next sign-in.
func (w *Workspace) Logout() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.account = ""
	w.errors = make(map[string]string)
	w.conversations = []*model.Conversation{model.NewConversation("New Chat")}
	w.active = 0
}

// persist snapshots the collection for the signed-in account. Caller
// holds the lock. Guest sessions are never written.
func (w *Workspace) persist() {
	if w.store == nil || w.account == "" {
		return
	}
	snap := snapshot{Conversations: w.conversations, Active: w.active}
	if err := w.store.Put(localstore.AccountKey("conversations", w.account), snap); err != nil {
		log.Printf("[workspace] persist failed: %v", err)
	}
}

// =============================================================================
// COLLECTION OPERATIONS
// =============================================================================

// NewConversation appends a fresh conversation and optionally makes it
// active. Returns the new conversation.
func (w *Workspace) NewConversation(activate bool) *model.Conversation {
	w.mu.Lock()
	defer w.mu.Unlock()

	conv := model.NewConversation("New Chat")
	w.conversations = append(w.conversations, conv)
	if activate {
		w.active = len(w.conversations) - 1
	}
	w.persist()
	return conv
}

// Delete removes the conversation at index. Out-of-range indexes are a
// no-op. The active selection moves to the nearest preceding entry; the
// deleted conversation's error banner is pruned. Deleting the last
// conversation leaves an empty collection, which the active accessors
// repopulate lazily.
func (w *Workspace) Delete(index int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if index < 0 || index >= len(w.conversations) {
		return
	}
	delete(w.errors, w.conversations[index].ID)
	w.conversations = append(w.conversations[:index], w.conversations[index+1:]...)

	switch {
	case len(w.conversations) == 0:
		w.active = 0
	case w.active >= index:
		// Deleting the active conversation selects the nearest preceding
		// one; deleting an earlier one keeps the same conversation active.
		if w.active > 0 {
			w.active--
		}
	}
	w.persist()
}

// Rename sets the conversation's name. Out-of-range indexes are a no-op.
func (w *Workspace) Rename(index int, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if index < 0 || index >= len(w.conversations) {
		return
	}
	w.conversations[index].Name = name
	w.persist()
}

// PromoteToTop moves the conversation at index to the front, preserving
// the relative order of everything else, and makes it active. Index 0
// only updates the selection.
func (w *Workspace) PromoteToTop(index int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if index < 0 || index >= len(w.conversations) {
		return
	}
	if index > 0 {
		conv := w.conversations[index]
		copy(w.conversations[1:index+1], w.conversations[:index])
		w.conversations[0] = conv
	}
	w.active = 0
	w.persist()
}

// SetActive selects the conversation at index. Out-of-range is a no-op.
func (w *Workspace) SetActive(index int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if index < 0 || index >= len(w.conversations) {
		return
	}
	w.active = index
	w.persist()
}

// =============================================================================
// ACTIVE CONVERSATION
// =============================================================================

// ensureActive repopulates an emptied collection. Caller holds the lock.
func (w *Workspace) ensureActive() *model.Conversation {
	if len(w.conversations) == 0 {
		w.conversations = []*model.Conversation{model.NewConversation("New Chat")}
		w.active = 0
	}
	return w.conversations[w.active]
}

// ActiveConversation returns the active conversation, creating a fresh
// one if the collection is empty.
func (w *Workspace) ActiveConversation() *model.Conversation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ensureActive()
}

// ActiveIndex returns the active selection index.
func (w *Workspace) ActiveIndex() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// ActiveMessages returns a copy of the active conversation's message
// slice.
func (w *Workspace) ActiveMessages() []*model.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	conv := w.ensureActive()
	out := make([]*model.Message, len(conv.Messages))
	copy(out, conv.Messages)
	return out
}

// ReplaceActiveMessages swaps the active conversation's history wholesale
// and persists the collection.
func (w *Workspace) ReplaceActiveMessages(msgs []*model.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensureActive().SetMessages(msgs)
	w.persist()
}

// Count returns the number of conversations.
func (w *Workspace) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.conversations)
}

// Conversations returns a copy of the collection in order.
func (w *Workspace) Conversations() []*model.Conversation {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*model.Conversation, len(w.conversations))
	copy(out, w.conversations)
	return out
}

// Search returns the conversations whose name or message bodies contain
// the query, case-insensitively. A blank query matches nothing.
func (w *Workspace) Search(query string) []*model.Conversation {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var hits []*model.Conversation
	for _, conv := range w.conversations {
		if strings.Contains(strings.ToLower(conv.Name), q) {
			hits = append(hits, conv)
			continue
		}
		for _, msg := range conv.Messages {
			if strings.Contains(strings.ToLower(msg.Content), q) {
				hits = append(hits, conv)
				break
			}
		}
	}
	return hits
}

// =============================================================================
// ERROR BANNERS
// =============================================================================

// SetError records an error banner for a conversation.
func (w *Workspace) SetError(convID, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errors[convID] = message
}

// Error returns the banner for a conversation, if any.
func (w *Workspace) Error(convID string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg, ok := w.errors[convID]
	return msg, ok
}

// ClearActiveError clears the banner for the active conversation only.
// Banners on other conversations survive until their own next send.
func (w *Workspace) ClearActiveError() {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.errors, w.ensureActive().ID)
}

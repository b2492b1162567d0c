// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zevy-cloud/zevy/internal/util"
)

// NameMaxLen is the longest auto-derived conversation name before truncation.
const NameMaxLen = 20

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a chat conversation with history and metadata.
type Conversation struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Messages, ordered by creation time.
	Messages []*Message `json:"messages"`

	// LastUpdated is the timestamp of the last mutation.
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation(name string) *Conversation {
	return &Conversation{
		ID:       GenerateConversationID(),
		Name:     name,
		Messages: make([]*Message, 0),
	}
}

// GenerateConversationID creates a unique conversation ID. The timestamp
// prefix plus random suffix guarantees uniqueness within a session.
func GenerateConversationID() string {
	buf := make([]byte, 5)
	rand.Read(buf)
	return fmt.Sprintf("conv_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}

// =============================================================================
// MESSAGE ACCESS
// =============================================================================

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// LastUserMessage returns the most recent user message, or nil.
func (c *Conversation) LastUserMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i]
		}
	}
	return nil
}

// SetMessages replaces the message list wholesale and stamps LastUpdated.
// This is the only mutation path for message history; retry uses it to
// replace the trailing error message with a fresh attempt.
func (c *Conversation) SetMessages(msgs []*Message) {
	c.Messages = msgs
	c.LastUpdated = time.Now()
}

// History returns the messages as role+content pairs, stripped of all other
// metadata, for transmission upstream. Error messages are excluded so a
// failed turn never pollutes the upstream context.
func (c *Conversation) History() []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.Error {
			continue
		}
		entries = append(entries, HistoryEntry{
			Role:    msg.Role.String(),
			Content: msg.Content,
		})
	}
	return entries
}

// HistoryEntry is the wire shape of one prior message: role and content only.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// =============================================================================
// NAMING
// =============================================================================

// DeriveName builds a conversation name from the first user message: the
// first three words, truncated to NameMaxLen characters, capitalized.
func DeriveName(firstMessage string) string {
	words := util.FirstWords(firstMessage, 3)
	summary := util.Truncate(words, NameMaxLen)
	summary = util.Capitalize(summary)
	if summary == "" {
		return "New Chat"
	}
	return summary
}

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:          c.ID,
		Name:        c.Name,
		LastUpdated: c.LastUpdated,
		Messages:    make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		msgCopy := *msg
		clone.Messages[i] = &msgCopy
	}
	return clone
}

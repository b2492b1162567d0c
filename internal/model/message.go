// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message. Fixed at creation, never changes.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Zevy"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string `json:"content"`

	// Mode names the persona/engine that produced an assistant message.
	Mode string `json:"mode,omitempty"`

	// Reasoning carries optional supplementary text from the orchestrator.
	Reasoning string `json:"reasoning,omitempty"`

	// Error marks a message as a surfaced failure rather than real content.
	Error bool `json:"error,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message tagged with the
// persona that produced it.
func NewAssistantMessage(content, mode, reasoning string) *Message {
	msg := NewMessage(RoleAssistant, content)
	msg.Mode = mode
	msg.Reasoning = reasoning
	return msg
}

// NewErrorMessage creates a synthetic assistant message carrying a
// human-readable failure explanation.
func NewErrorMessage(content string) *Message {
	msg := NewMessage(RoleAssistant, content)
	msg.Error = true
	return msg
}

// IsError reports whether the message is a surfaced failure.
func (m *Message) IsError() bool {
	return m.Error
}

// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zevy-cloud/zevy/internal/model"
)

// ConversationRecord is one saved conversation turn set.
type ConversationRecord struct {
	ID        string
	UserEmail string
	Trait     string
	Messages  []*model.Message
	UpdatedAt time.Time
}

// UpsertConversation writes one conversation keyed by its id: a new id
// inserts, an existing id replaces messages, trait, and timestamp. One
// call per saved turn.
func (db *DB) UpsertConversation(ctx context.Context, rec *ConversationRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("upsert conversation: missing id")
	}
	payload, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO conversations (id, user_email, trait, messages, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_email = excluded.user_email,
			trait      = excluded.trait,
			messages   = excluded.messages,
			updated_at = excluded.updated_at
	`
	_, err = db.sql.ExecContext(ctx, query,
		rec.ID, strings.ToLower(rec.UserEmail), rec.Trait, string(payload), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert conversation %s: %w", rec.ID, err)
	}
	return nil
}

// ListByEmail returns every conversation saved for an account, most
// recently updated first.
func (db *DB) ListByEmail(ctx context.Context, email string) ([]*ConversationRecord, error) {
	query := `
		SELECT id, user_email, trait, messages, updated_at
		FROM conversations
		WHERE user_email = ?
		ORDER BY updated_at DESC
	`
	rows, err := db.sql.QueryContext(ctx, query, strings.ToLower(email))
	if err != nil {
		return nil, fmt.Errorf("list conversations for %s: %w", email, err)
	}
	defer rows.Close()

	var out []*ConversationRecord
	for rows.Next() {
		var rec ConversationRecord
		var payload string
		if err := rows.Scan(&rec.ID, &rec.UserEmail, &rec.Trait, &payload, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &rec.Messages); err != nil {
			return nil, fmt.Errorf("decode messages for %s: %w", rec.ID, err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

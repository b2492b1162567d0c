// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package database is the durable store for conversations and users,
// backed by SQLite.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// schema is applied on every open; statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		user_email TEXT NOT NULL,
		trait      TEXT NOT NULL DEFAULT '',
		messages   TEXT NOT NULL DEFAULT '[]',
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_email ON conversations(user_email)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash BLOB NOT NULL,
		salt          BLOB NOT NULL,
		created_at    TIMESTAMP NOT NULL
	)`,
}

// DB wraps the SQL handle with the zevy schema applied.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema. Use ":memory:" for an ephemeral database.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY under concurrent handlers.
	handle.SetMaxOpenConns(1)

	db := &DB{sql: handle}
	if err := db.migrate(); err != nil {
		handle.Close()
		return nil, err
	}
	return db, nil
}

// New wraps an existing handle, applying no schema. Used by tests that
// drive the store against a mock.
func New(handle *sql.DB) *DB {
	return &DB{sql: handle}
}

func (db *DB) migrate() error {
	for _, stmt := range schema {
		if _, err := db.sql.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying handle.
func (db *DB) Close() error {
	return db.sql.Close()
}

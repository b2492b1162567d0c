// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations follows current OWASP guidance for SHA-256.
	pbkdf2Iterations = 210000
	saltLen          = 16
	keyLen           = 32
)

var (
	// ErrUserExists indicates the email is already registered.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCredentials indicates a failed email/password check.
	// Deliberately covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User is one registered account.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

func hashPassword(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLen, sha256.New)
}

// CreateUser registers an account with a PBKDF2-hashed password.
func (db *DB) CreateUser(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("create user: email and password are required")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	user := &User{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO users (id, email, password_hash, salt, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := db.sql.ExecContext(ctx, query,
		user.ID, user.Email, hashPassword(password, salt), salt, user.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies an email/password pair and returns the account.
//
// SECURITY: Constant-time hash comparison; unknown email and wrong
// password are indistinguishable to the caller.
func (db *DB) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	query := `SELECT id, email, password_hash, salt, created_at FROM users WHERE email = ?`
	row := db.sql.QueryRowContext(ctx, query, email)

	var user User
	var hash, salt []byte
	if err := row.Scan(&user.ID, &user.Email, &hash, &salt, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if subtle.ConstantTimeCompare(hashPassword(password, salt), hash) != 1 {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

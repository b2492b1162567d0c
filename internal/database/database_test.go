// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/zevy-cloud/zevy/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertInsertsThenUpdates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec := &ConversationRecord{
		ID:        "conv_1",
		UserEmail: "User@Example.com",
		Trait:     "Straightforward",
		Messages:  []*model.Message{model.NewUserMessage("hi")},
	}
	if err := db.UpsertConversation(ctx, rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rec.Messages = append(rec.Messages, model.NewAssistantMessage("hello", "astra", ""))
	rec.UpdatedAt = time.Now().UTC().Add(time.Minute)
	if err := db.UpsertConversation(ctx, rec); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := db.ListByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(got))
	}
	if len(got[0].Messages) != 2 {
		t.Errorf("expected 2 messages after upsert, got %d", len(got[0].Messages))
	}
	if got[0].UserEmail != "user@example.com" {
		t.Errorf("email should be stored lowercased, got %q", got[0].UserEmail)
	}
}

func TestUpsertRequiresID(t *testing.T) {
	db := openTestDB(t)
	err := db.UpsertConversation(context.Background(), &ConversationRecord{UserEmail: "a@b.c"})
	if err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestListByEmailOrdersByRecency(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"conv_old", "conv_new"} {
		err := db.UpsertConversation(ctx, &ConversationRecord{
			ID:        id,
			UserEmail: "user@example.com",
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.ListByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "conv_new" {
		t.Errorf("expected conv_new first, got %+v", got)
	}
}

func TestListByEmailScopedToAccount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	db.UpsertConversation(ctx, &ConversationRecord{ID: "c1", UserEmail: "a@example.com"})
	db.UpsertConversation(ctx, &ConversationRecord{ID: "c2", UserEmail: "b@example.com"})

	got, err := db.ListByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Errorf("expected only a@example.com's conversation, got %+v", got)
	}
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	user, err := db.CreateUser(ctx, "User@Example.com", "hunter2")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.ID == "" || user.Email != "user@example.com" {
		t.Errorf("unexpected user %+v", user)
	}

	got, err := db.Authenticate(ctx, "user@example.com", "hunter2")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("got user %s, want %s", got.ID, user.ID)
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.CreateUser(ctx, "user@example.com", "hunter2")

	if _, err := db.Authenticate(ctx, "user@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := db.Authenticate(ctx, "nobody@example.com", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.CreateUser(ctx, "user@example.com", "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateUser(ctx, "USER@example.com", "two"); !errors.Is(err, ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}

func TestUpsertPropagatesExecError(t *testing.T) {
	handle, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Close()

	mock.ExpectExec("INSERT INTO conversations").
		WillReturnError(errors.New("disk I/O error"))

	db := New(handle)
	err = db.UpsertConversation(context.Background(), &ConversationRecord{
		ID:        "conv_1",
		UserEmail: "user@example.com",
	})
	if err == nil || !mockErrContains(err, "disk I/O error") {
		t.Errorf("expected wrapped exec error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListByEmailPropagatesQueryError(t *testing.T) {
	handle, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Close()

	mock.ExpectQuery("SELECT id, user_email").
		WillReturnError(errors.New("database is locked"))

	db := New(handle)
	_, err = db.ListByEmail(context.Background(), "user@example.com")
	if err == nil || !mockErrContains(err, "database is locked") {
		t.Errorf("expected wrapped query error, got %v", err)
	}
}

func mockErrContains(err error, sub string) bool {
	return err != nil && strings.Contains(err.Error(), sub)
}

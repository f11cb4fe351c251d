// Package storage defines the persistence port shared by every backend.
// Adapters live in sub-packages; deployment picks one at startup.
package storage

import (
	"context"
	"time"

	"organizer/internal/models"
)

// TaskStore persists task templates. Every call is scoped to an owner and
// fails with models.ErrNotFound for ids the owner does not hold. ListTasks
// returns tasks in insertion order.
type TaskStore interface {
	ListTasks(ctx context.Context, ownerID string) ([]models.Task, error)
	GetTask(ctx context.Context, id, ownerID string) (models.Task, error)
	CreateTask(ctx context.Context, ownerID string, in models.TaskInput) (models.Task, error)
	UpdateTask(ctx context.Context, id, ownerID string, in models.TaskInput) (models.Task, error)
	DeleteTask(ctx context.Context, id, ownerID string) error
}

// UserStore persists accounts. Emails are expected lower-cased by the caller.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User, passwordHash string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	// GetUserByEmail also returns the stored password hash.
	GetUserByEmail(ctx context.Context, email string) (models.User, string, error)
	UpdateUser(ctx context.Context, id string, in models.ProfileInput) (models.User, error)
	// DeleteUser removes the account and everything it owns.
	DeleteUser(ctx context.Context, id string) error
}

// NoteStore persists free-form notes in insertion order.
type NoteStore interface {
	ListNotes(ctx context.Context, ownerID string) ([]models.Note, error)
	CreateNote(ctx context.Context, ownerID, content string) (models.Note, error)
	UpdateNote(ctx context.Context, id, ownerID, content string) (models.Note, error)
	DeleteNote(ctx context.Context, id, ownerID string) error
}

// FileStore persists the file/folder tree. Cascading deletes are resolved by
// the caller, which passes every id to remove.
type FileStore interface {
	ListFiles(ctx context.Context, ownerID string) ([]models.FileItem, error)
	GetFile(ctx context.Context, id, ownerID string) (models.FileItem, error)
	CreateFile(ctx context.Context, ownerID string, item models.FileItem) (models.FileItem, error)
	DeleteFiles(ctx context.Context, ownerID string, ids []string) error
}

// UIStateStore keeps per-user view state. Missing state reads as empty.
type UIStateStore interface {
	GetUIState(ctx context.Context, ownerID string) (models.UIState, error)
	SaveUIState(ctx context.Context, ownerID string, state models.UIState) error
}

// TokenStore records revoked session tokens until they expire. Expiry is
// judged against the caller's clock so it agrees with token validation.
type TokenStore interface {
	RevokeToken(ctx context.Context, tokenID string, expiresAt, now time.Time) error
	IsTokenRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error)
}

// Store is everything the application needs from a backend.
type Store interface {
	TaskStore
	UserStore
	NoteStore
	FileStore
	UIStateStore
	TokenStore
	Ping(ctx context.Context) error
	Close() error
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"organizer/internal/models"
)

type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	DarkMode     bool      `db:"dark_mode"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r userRow) model() models.User {
	return models.User{
		ID:          r.ID,
		Email:       r.Email,
		Name:        r.Name,
		Preferences: models.Preferences{DarkMode: r.DarkMode},
		CreatedAt:   r.CreatedAt,
	}
}

type taskRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Text      string    `db:"text"`
	Date      string    `db:"date"`
	Frequency string    `db:"frequency"`
	EndDate   string    `db:"end_date"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r taskRow) model() models.Task {
	return models.Task{
		ID:        r.ID,
		UserID:    r.UserID,
		Text:      r.Text,
		Date:      r.Date,
		Frequency: models.Frequency(r.Frequency),
		EndDate:   r.EndDate,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type noteRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r noteRow) model() models.Note {
	return models.Note{ID: r.ID, UserID: r.UserID, Content: r.Content, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

type fileRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Name        string    `db:"name"`
	Kind        string    `db:"kind"`
	ParentID    string    `db:"parent_id"`
	Date        string    `db:"date"`
	ContentType string    `db:"content_type"`
	Size        int64     `db:"size"`
	URL         string    `db:"url"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r fileRow) model() models.FileItem {
	kind := models.FileKind(r.Kind)
	return models.FileItem{
		ID:          r.ID,
		UserID:      r.UserID,
		Name:        r.Name,
		Kind:        kind,
		ParentID:    r.ParentID,
		Date:        r.Date,
		ContentType: r.ContentType,
		Size:        r.Size,
		URL:         r.URL,
		Media:       kind == models.KindFile && models.IsMediaName(r.Name),
		CreatedAt:   r.CreatedAt,
	}
}

const (
	userColumns = `id, email, name, password_hash, dark_mode, created_at`
	taskColumns = `id, user_id, text, date, frequency, end_date, created_at, updated_at`
	noteColumns = `id, user_id, content, created_at, updated_at`
	fileColumns = `id, user_id, name, kind, parent_id, date, content_type, size, url, created_at`
)

// Users

// CreateUser stores a new account; a taken email yields models.ErrDuplicateEmail.
func (db *DB) CreateUser(ctx context.Context, user models.User, passwordHash string) (models.User, error) {
	const q = `
		INSERT INTO users(id, email, name, password_hash, dark_mode)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	var row userRow
	err := db.conn.GetContext(ctx, &row, q, models.NewID(), user.Email, user.Name, passwordHash, user.Preferences.DarkMode)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, models.ErrDuplicateEmail
		}
		return models.User{}, wrapErr("insert user", err)
	}
	return row.model(), nil
}

// GetUser looks an account up by id.
func (db *DB) GetUser(ctx context.Context, id string) (models.User, error) {
	var row userRow
	if err := db.conn.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		return models.User{}, wrapErr("get user", err)
	}
	return row.model(), nil
}

// GetUserByEmail returns the account and its password hash.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (models.User, string, error) {
	var row userRow
	if err := db.conn.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = $1`, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, "", fmt.Errorf("user %s: %w", email, models.ErrNotFound)
		}
		return models.User{}, "", wrapErr("get user by email", err)
	}
	return row.model(), row.PasswordHash, nil
}

// UpdateUser applies the non-nil fields of in.
func (db *DB) UpdateUser(ctx context.Context, id string, in models.ProfileInput) (models.User, error) {
	const q = `
		UPDATE users
		SET email = $2, name = $3, dark_mode = $4
		WHERE id = $1
		RETURNING ` + userColumns

	var row userRow
	if err := db.conn.GetContext(ctx, &row, q, id, in.Email, in.Name, in.Preferences.DarkMode); err != nil {
		if isUniqueViolation(err) {
			return models.User{}, models.ErrDuplicateEmail
		}
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		return models.User{}, wrapErr("update user", err)
	}
	return row.model(), nil
}

// DeleteUser relies on ON DELETE CASCADE for owned rows.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return wrapErr("delete user", err)
	}
	if rowsAffected(res) == 0 {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Tasks

// ListTasks returns the owner's tasks in creation order.
func (db *DB) ListTasks(ctx context.Context, ownerID string) ([]models.Task, error) {
	var rows []taskRow
	if err := db.conn.SelectContext(ctx, &rows, `SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 ORDER BY seq`, ownerID); err != nil {
		return nil, wrapErr("list tasks", err)
	}
	out := make([]models.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// GetTask returns one task when it belongs to ownerID.
func (db *DB) GetTask(ctx context.Context, id, ownerID string) (models.Task, error) {
	var row taskRow
	if err := db.conn.GetContext(ctx, &row, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`, id, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Task{}, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
		}
		return models.Task{}, wrapErr("get task", err)
	}
	return row.model(), nil
}

// CreateTask stores a normalized task.
func (db *DB) CreateTask(ctx context.Context, ownerID string, in models.TaskInput) (models.Task, error) {
	const q = `
		INSERT INTO tasks(id, user_id, text, date, frequency, end_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + taskColumns

	var row taskRow
	if err := db.conn.GetContext(ctx, &row, q, models.NewID(), ownerID, in.Text, in.Date, string(in.Frequency), in.EndDate); err != nil {
		return models.Task{}, wrapErr("insert task", err)
	}
	return row.model(), nil
}

// UpdateTask replaces the task's fields and bumps UpdatedAt.
func (db *DB) UpdateTask(ctx context.Context, id, ownerID string, in models.TaskInput) (models.Task, error) {
	const q = `
		UPDATE tasks
		SET text = $3, date = $4, frequency = $5, end_date = $6, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + taskColumns

	var row taskRow
	if err := db.conn.GetContext(ctx, &row, q, id, ownerID, in.Text, in.Date, string(in.Frequency), in.EndDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Task{}, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
		}
		return models.Task{}, wrapErr("update task", err)
	}
	return row.model(), nil
}

// DeleteTask removes one task.
func (db *DB) DeleteTask(ctx context.Context, id, ownerID string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return wrapErr("delete task", err)
	}
	if rowsAffected(res) == 0 {
		return fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Notes

// ListNotes returns the owner's notes.
func (db *DB) ListNotes(ctx context.Context, ownerID string) ([]models.Note, error) {
	var rows []noteRow
	if err := db.conn.SelectContext(ctx, &rows, `SELECT `+noteColumns+` FROM notes WHERE user_id = $1 ORDER BY seq`, ownerID); err != nil {
		return nil, wrapErr("list notes", err)
	}
	out := make([]models.Note, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// CreateNote stores a new note.
func (db *DB) CreateNote(ctx context.Context, ownerID, content string) (models.Note, error) {
	var row noteRow
	err := db.conn.GetContext(ctx, &row,
		`INSERT INTO notes(id, user_id, content) VALUES ($1, $2, $3) RETURNING `+noteColumns,
		models.NewID(), ownerID, content)
	if err != nil {
		return models.Note{}, wrapErr("insert note", err)
	}
	return row.model(), nil
}

// UpdateNote replaces the content of a note.
func (db *DB) UpdateNote(ctx context.Context, id, ownerID, content string) (models.Note, error) {
	var row noteRow
	err := db.conn.GetContext(ctx, &row,
		`UPDATE notes SET content = $3, updated_at = now() WHERE id = $1 AND user_id = $2 RETURNING `+noteColumns,
		id, ownerID, content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Note{}, fmt.Errorf("note %s: %w", id, models.ErrNotFound)
		}
		return models.Note{}, wrapErr("update note", err)
	}
	return row.model(), nil
}

// DeleteNote removes a note.
func (db *DB) DeleteNote(ctx context.Context, id, ownerID string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return wrapErr("delete note", err)
	}
	if rowsAffected(res) == 0 {
		return fmt.Errorf("note %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Files

// ListFiles returns every node of the owner's tree.
func (db *DB) ListFiles(ctx context.Context, ownerID string) ([]models.FileItem, error) {
	var rows []fileRow
	if err := db.conn.SelectContext(ctx, &rows, `SELECT `+fileColumns+` FROM files WHERE user_id = $1 ORDER BY seq`, ownerID); err != nil {
		return nil, wrapErr("list files", err)
	}
	out := make([]models.FileItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// GetFile returns one node.
func (db *DB) GetFile(ctx context.Context, id, ownerID string) (models.FileItem, error) {
	var row fileRow
	if err := db.conn.GetContext(ctx, &row, `SELECT `+fileColumns+` FROM files WHERE id = $1 AND user_id = $2`, id, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.FileItem{}, fmt.Errorf("file %s: %w", id, models.ErrNotFound)
		}
		return models.FileItem{}, wrapErr("get file", err)
	}
	return row.model(), nil
}

// CreateFile records a folder or uploaded file.
func (db *DB) CreateFile(ctx context.Context, ownerID string, item models.FileItem) (models.FileItem, error) {
	if item.ID == "" {
		item.ID = models.NewID()
	}
	const q = `
		INSERT INTO files(id, user_id, name, kind, parent_id, date, content_type, size, url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + fileColumns

	var row fileRow
	err := db.conn.GetContext(ctx, &row, q,
		item.ID, ownerID, item.Name, string(item.Kind), item.ParentID, item.Date, item.ContentType, item.Size, item.URL)
	if err != nil {
		return models.FileItem{}, wrapErr("insert file", err)
	}
	return row.model(), nil
}

// DeleteFiles removes the listed nodes in one step.
func (db *DB) DeleteFiles(ctx context.Context, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM files WHERE user_id = ? AND id IN (?)`, ownerID, ids)
	if err != nil {
		return fmt.Errorf("build delete files: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx, db.conn.Rebind(q), args...); err != nil {
		return wrapErr("delete files", err)
	}
	return nil
}

// UI state

// GetUIState returns the saved state or an empty one.
func (db *DB) GetUIState(ctx context.Context, ownerID string) (models.UIState, error) {
	state := models.UIState{OpenNoteIDs: []string{}}
	var raw []byte
	err := db.conn.GetContext(ctx, &raw, `SELECT open_note_ids FROM ui_state WHERE user_id = $1`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return models.UIState{}, wrapErr("get ui state", err)
	}
	if err := json.Unmarshal(raw, &state.OpenNoteIDs); err != nil {
		return models.UIState{}, fmt.Errorf("decode ui state: %w: %w", models.ErrCorruptState, err)
	}
	return state, nil
}

// SaveUIState replaces the saved state.
func (db *DB) SaveUIState(ctx context.Context, ownerID string, state models.UIState) error {
	ids := state.OpenNoteIDs
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode ui state: %w", err)
	}
	const q = `
		INSERT INTO ui_state(user_id, open_note_ids)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (user_id) DO UPDATE SET open_note_ids = EXCLUDED.open_note_ids`
	if _, err := db.conn.ExecContext(ctx, q, ownerID, string(raw)); err != nil {
		return wrapErr("save ui state", err)
	}
	return nil
}

// Tokens

// RevokeToken records tokenID until expiresAt, purging entries expired at now.
func (db *DB) RevokeToken(ctx context.Context, tokenID string, expiresAt, now time.Time) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, now.UTC()); err != nil {
		return wrapErr("purge revoked tokens", err)
	}
	const q = `
		INSERT INTO revoked_tokens(token_id, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (token_id) DO UPDATE SET expires_at = EXCLUDED.expires_at`
	if _, err := db.conn.ExecContext(ctx, q, tokenID, expiresAt.UTC()); err != nil {
		return wrapErr("revoke token", err)
	}
	return nil
}

// IsTokenRevoked reports whether tokenID is revoked and still unexpired at now.
func (db *DB) IsTokenRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	var revoked bool
	err := db.conn.GetContext(ctx, &revoked,
		`SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE token_id = $1 AND expires_at >= $2)`, tokenID, now.UTC())
	if err != nil {
		return false, wrapErr("check revoked token", err)
	}
	return revoked, nil
}

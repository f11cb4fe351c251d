package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"organizer/internal/models"
)

const noteColumns = `id, user_id, content, created_at, updated_at`

func scanNote(row scanner) (models.Note, error) {
	var n models.Note
	err := row.Scan(&n.ID, &n.UserID, &n.Content, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

// ListNotes returns the owner's notes in insertion order.
func (s *Store) ListNotes(ctx context.Context, ownerID string) ([]models.Note, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE user_id = ? ORDER BY seq`, ownerID)
	if err != nil {
		return nil, wrapErr("list notes", err)
	}
	defer rows.Close()

	notes := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *Store) getNote(ctx context.Context, id, ownerID string) (models.Note, error) {
	n, err := scanNote(s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ? AND user_id = ?`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Note{}, fmt.Errorf("note %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Note{}, wrapErr("get note", err)
	}
	return n, nil
}

// CreateNote appends a note for the owner.
func (s *Store) CreateNote(ctx context.Context, ownerID, content string) (models.Note, error) {
	id := models.NewID()
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO notes(id, user_id, content, created_at, updated_at) VALUES(?, ?, ?, ?, ?)`,
		id, ownerID, content, now, now); err != nil {
		return models.Note{}, wrapErr("insert note", err)
	}
	return s.getNote(ctx, id, ownerID)
}

// UpdateNote replaces the content of an owned note.
func (s *Store) UpdateNote(ctx context.Context, id, ownerID, content string) (models.Note, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notes SET content = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		content, time.Now().UTC(), id, ownerID)
	if err != nil {
		return models.Note{}, wrapErr("update note", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Note{}, err
	}
	if affected == 0 {
		return models.Note{}, fmt.Errorf("note %s: %w", id, models.ErrNotFound)
	}
	return s.getNote(ctx, id, ownerID)
}

// DeleteNote removes an owned note.
func (s *Store) DeleteNote(ctx context.Context, id, ownerID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return wrapErr("delete note", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("note %s: %w", id, models.ErrNotFound)
	}
	return nil
}

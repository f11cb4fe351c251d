package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"organizer/internal/models"
)

// GetUIState returns the owner's view state, empty when none was saved.
func (s *Store) GetUIState(ctx context.Context, ownerID string) (models.UIState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT open_note_ids FROM ui_state WHERE user_id = ?`, ownerID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UIState{OpenNoteIDs: []string{}}, nil
	}
	if err != nil {
		return models.UIState{}, wrapErr("get ui state", err)
	}
	state := models.UIState{OpenNoteIDs: []string{}}
	if err := json.Unmarshal([]byte(raw), &state.OpenNoteIDs); err != nil {
		return models.UIState{}, fmt.Errorf("decode ui state: %w: %w", models.ErrCorruptState, err)
	}
	return state, nil
}

// SaveUIState replaces the owner's view state.
func (s *Store) SaveUIState(ctx context.Context, ownerID string, state models.UIState) error {
	ids := state.OpenNoteIDs
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode ui state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO ui_state(user_id, open_note_ids) VALUES(?, ?)
        ON CONFLICT(user_id) DO UPDATE SET open_note_ids = excluded.open_note_ids`, ownerID, string(raw))
	if err != nil {
		return wrapErr("save ui state", err)
	}
	return nil
}

// RevokeToken records a token id until expiresAt and drops expired entries.
func (s *Store) RevokeToken(ctx context.Context, tokenID string, expiresAt, now time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, now.Unix()); err != nil {
		return wrapErr("purge revoked tokens", err)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO revoked_tokens(token_id, expires_at) VALUES(?, ?)
        ON CONFLICT(token_id) DO UPDATE SET expires_at = excluded.expires_at`, tokenID, expiresAt.Unix())
	if err != nil {
		return wrapErr("revoke token", err)
	}
	return nil
}

// IsTokenRevoked reports whether the token id was revoked and has not expired yet.
func (s *Store) IsTokenRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM revoked_tokens WHERE token_id = ? AND expires_at >= ?`, tokenID, now.Unix()).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr("check revoked token", err)
	}
	return true, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"organizer/internal/models"
)

const userColumns = `id, email, name, dark_mode, created_at`

func scanUser(row scanner, extra ...any) (models.User, error) {
	var u models.User
	dest := append([]any{&u.ID, &u.Email, &u.Name, &u.Preferences.DarkMode, &u.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// CreateUser stores a new account. The id and creation time are assigned here.
func (s *Store) CreateUser(ctx context.Context, user models.User, passwordHash string) (models.User, error) {
	user.ID = models.NewID()
	user.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO users(id, email, name, password_hash, dark_mode, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, passwordHash, user.Preferences.DarkMode, user.CreatedAt)
	if isUniqueViolation(err) {
		return models.User{}, models.ErrDuplicateEmail
	}
	if err != nil {
		return models.User{}, wrapErr("insert user", err)
	}
	return s.GetUser(ctx, user.ID)
}

// GetUser fetches an account by id.
func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.User{}, wrapErr("get user", err)
	}
	return u, nil
}

// GetUserByEmail fetches an account and its password hash.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, string, error) {
	var hash string
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+`, password_hash FROM users WHERE email = ?`, email), &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, "", fmt.Errorf("user %s: %w", email, models.ErrNotFound)
	}
	if err != nil {
		return models.User{}, "", wrapErr("get user by email", err)
	}
	return u, hash, nil
}

// UpdateUser replaces the profile fields of an account.
func (s *Store) UpdateUser(ctx context.Context, id string, in models.ProfileInput) (models.User, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET email = ?, name = ?, dark_mode = ? WHERE id = ?`,
		in.Email, in.Name, in.Preferences.DarkMode, id)
	if isUniqueViolation(err) {
		return models.User{}, models.ErrDuplicateEmail
	}
	if err != nil {
		return models.User{}, wrapErr("update user", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.User{}, err
	}
	if affected == 0 {
		return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes an account; owned rows go with it through ON DELETE CASCADE.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return wrapErr("delete user", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return nil
}

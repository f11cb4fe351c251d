package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"organizer/internal/models"
)

const fileColumns = `id, user_id, name, kind, parent_id, date, content_type, size, url, created_at`

func scanFile(row scanner) (models.FileItem, error) {
	var f models.FileItem
	var kind string
	if err := row.Scan(&f.ID, &f.UserID, &f.Name, &kind, &f.ParentID, &f.Date, &f.ContentType, &f.Size, &f.URL, &f.CreatedAt); err != nil {
		return models.FileItem{}, err
	}
	f.Kind = models.FileKind(kind)
	f.Media = f.Kind == models.KindFile && models.IsMediaName(f.Name)
	return f, nil
}

// ListFiles returns the owner's whole file tree in insertion order.
func (s *Store) ListFiles(ctx context.Context, ownerID string) ([]models.FileItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM files WHERE user_id = ? ORDER BY seq`, ownerID)
	if err != nil {
		return nil, wrapErr("list files", err)
	}
	defer rows.Close()

	items := []models.FileItem{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

// GetFile fetches one node of the owner's tree.
func (s *Store) GetFile(ctx context.Context, id, ownerID string) (models.FileItem, error) {
	f, err := scanFile(s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ? AND user_id = ?`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.FileItem{}, fmt.Errorf("file %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.FileItem{}, wrapErr("get file", err)
	}
	return f, nil
}

// CreateFile stores a node. An id already set by the caller is kept so blob
// keys and URLs can be derived before insertion.
func (s *Store) CreateFile(ctx context.Context, ownerID string, item models.FileItem) (models.FileItem, error) {
	if item.ID == "" {
		item.ID = models.NewID()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO files(id, user_id, name, kind, parent_id, date, content_type, size, url, created_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, ownerID, item.Name, string(item.Kind), item.ParentID, item.Date, item.ContentType, item.Size, item.URL, time.Now().UTC())
	if err != nil {
		return models.FileItem{}, wrapErr("insert file", err)
	}
	return s.GetFile(ctx, item.ID, ownerID)
}

// DeleteFiles removes the given nodes in one transaction.
func (s *Store) DeleteFiles(ctx context.Context, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, ownerID)
	for _, id := range ids {
		args = append(args, id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin delete files", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE user_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...); err != nil {
		_ = tx.Rollback()
		return wrapErr("delete files", err)
	}
	if err := tx.Commit(); err != nil {
		return wrapErr("commit delete files", err)
	}
	return nil
}

package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"organizer/internal/models"
)

// CreateUser stores a new account; a taken email yields models.ErrDuplicateEmail.
func (s *Store) CreateUser(ctx context.Context, user models.User, passwordHash string) (models.User, error) {
	row := userRow{
		ID:           models.NewID(),
		Email:        user.Email,
		Name:         user.Name,
		PasswordHash: passwordHash,
		DarkMode:     user.Preferences.DarkMode,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.User{}, models.ErrDuplicateEmail
		}
		return models.User{}, wrapErr("insert user", err)
	}
	return row.model(), nil
}

// GetUser looks an account up by id.
func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		return models.User{}, wrapErr("get user", err)
	}
	return row.model(), nil
}

// GetUserByEmail returns the account and its password hash.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, string, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, "", fmt.Errorf("user %s: %w", email, models.ErrNotFound)
		}
		return models.User{}, "", wrapErr("get user by email", err)
	}
	return row.model(), row.PasswordHash, nil
}

// UpdateUser applies the non-nil fields of in.
func (s *Store) UpdateUser(ctx context.Context, id string, in models.ProfileInput) (models.User, error) {
	// A map keeps false and empty values in the UPDATE.
	res := s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).Updates(map[string]any{
		"email":     in.Email,
		"name":      in.Name,
		"dark_mode": in.Preferences.DarkMode,
	})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return models.User{}, models.ErrDuplicateEmail
		}
		return models.User{}, wrapErr("update user", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes an account and everything it owns in one transaction.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&userRow{})
		if res.Error != nil {
			return wrapErr("delete user", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		for _, owned := range []any{&taskRow{}, &noteRow{}, &fileRow{}, &uiStateRow{}} {
			if err := tx.Where("user_id = ?", id).Delete(owned).Error; err != nil {
				return wrapErr("delete owned rows", err)
			}
		}
		return nil
	})
}

// ListTasks returns the owner's tasks in creation order.
func (s *Store) ListTasks(ctx context.Context, ownerID string) ([]models.Task, error) {
	var rows []taskRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", ownerID).Order("seq").Find(&rows).Error; err != nil {
		return nil, wrapErr("list tasks", err)
	}
	tasks := make([]models.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.model())
	}
	return tasks, nil
}

// GetTask returns one task when it belongs to ownerID.
func (s *Store) GetTask(ctx context.Context, id, ownerID string) (models.Task, error) {
	var row taskRow
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Task{}, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
		}
		return models.Task{}, wrapErr("get task", err)
	}
	return row.model(), nil
}

// CreateTask stores a normalized task.
func (s *Store) CreateTask(ctx context.Context, ownerID string, in models.TaskInput) (models.Task, error) {
	now := time.Now().UTC()
	row := taskRow{
		ID:        models.NewID(),
		UserID:    ownerID,
		Text:      in.Text,
		Date:      in.Date,
		Frequency: string(in.Frequency),
		EndDate:   in.EndDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Task{}, wrapErr("insert task", err)
	}
	return row.model(), nil
}

// UpdateTask replaces the task's fields and bumps UpdatedAt.
func (s *Store) UpdateTask(ctx context.Context, id, ownerID string, in models.TaskInput) (models.Task, error) {
	res := s.db.WithContext(ctx).Model(&taskRow{}).Where("id = ? AND user_id = ?", id, ownerID).Updates(map[string]any{
		"text":       in.Text,
		"date":       in.Date,
		"frequency":  string(in.Frequency),
		"end_date":   in.EndDate,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return models.Task{}, wrapErr("update task", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.Task{}, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	return s.GetTask(ctx, id, ownerID)
}

// DeleteTask removes one task.
func (s *Store) DeleteTask(ctx context.Context, id, ownerID string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID).Delete(&taskRow{})
	if res.Error != nil {
		return wrapErr("delete task", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// ListNotes returns the owner's notes.
func (s *Store) ListNotes(ctx context.Context, ownerID string) ([]models.Note, error) {
	var rows []noteRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", ownerID).Order("seq").Find(&rows).Error; err != nil {
		return nil, wrapErr("list notes", err)
	}
	notes := make([]models.Note, 0, len(rows))
	for _, r := range rows {
		notes = append(notes, r.model())
	}
	return notes, nil
}

// CreateNote stores a new note.
func (s *Store) CreateNote(ctx context.Context, ownerID, content string) (models.Note, error) {
	now := time.Now().UTC()
	row := noteRow{ID: models.NewID(), UserID: ownerID, Content: content, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Note{}, wrapErr("insert note", err)
	}
	return row.model(), nil
}

// UpdateNote replaces the content of a note.
func (s *Store) UpdateNote(ctx context.Context, id, ownerID, content string) (models.Note, error) {
	res := s.db.WithContext(ctx).Model(&noteRow{}).Where("id = ? AND user_id = ?", id, ownerID).Updates(map[string]any{
		"content":    content,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return models.Note{}, wrapErr("update note", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.Note{}, fmt.Errorf("note %s: %w", id, models.ErrNotFound)
	}
	var row noteRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return models.Note{}, wrapErr("get note", err)
	}
	return row.model(), nil
}

// DeleteNote removes a note.
func (s *Store) DeleteNote(ctx context.Context, id, ownerID string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID).Delete(&noteRow{})
	if res.Error != nil {
		return wrapErr("delete note", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("note %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// ListFiles returns every node of the owner's tree.
func (s *Store) ListFiles(ctx context.Context, ownerID string) ([]models.FileItem, error) {
	var rows []fileRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", ownerID).Order("seq").Find(&rows).Error; err != nil {
		return nil, wrapErr("list files", err)
	}
	items := make([]models.FileItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.model())
	}
	return items, nil
}

// GetFile returns one node.
func (s *Store) GetFile(ctx context.Context, id, ownerID string) (models.FileItem, error) {
	var row fileRow
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.FileItem{}, fmt.Errorf("file %s: %w", id, models.ErrNotFound)
		}
		return models.FileItem{}, wrapErr("get file", err)
	}
	return row.model(), nil
}

// CreateFile records a folder or uploaded file.
func (s *Store) CreateFile(ctx context.Context, ownerID string, item models.FileItem) (models.FileItem, error) {
	if item.ID == "" {
		item.ID = models.NewID()
	}
	row := fileRow{
		ID:          item.ID,
		UserID:      ownerID,
		ParentID:    item.ParentID,
		Name:        item.Name,
		Kind:        string(item.Kind),
		Date:        item.Date,
		ContentType: item.ContentType,
		Size:        item.Size,
		URL:         item.URL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.FileItem{}, wrapErr("insert file", err)
	}
	return row.model(), nil
}

// DeleteFiles removes the listed nodes in one step.
func (s *Store) DeleteFiles(ctx context.Context, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("user_id = ? AND id IN ?", ownerID, ids).Delete(&fileRow{}).Error
	})
	if err != nil {
		return wrapErr("delete files", err)
	}
	return nil
}

// GetUIState returns the saved state or an empty one.
func (s *Store) GetUIState(ctx context.Context, ownerID string) (models.UIState, error) {
	state := models.UIState{OpenNoteIDs: []string{}}
	var row uiStateRow
	err := s.db.WithContext(ctx).Where("user_id = ?", ownerID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return state, nil
	}
	if err != nil {
		return models.UIState{}, wrapErr("get ui state", err)
	}
	if err := json.Unmarshal([]byte(row.OpenNoteIDs), &state.OpenNoteIDs); err != nil {
		return models.UIState{}, fmt.Errorf("decode ui state: %w: %w", models.ErrCorruptState, err)
	}
	return state, nil
}

// SaveUIState replaces the saved state.
func (s *Store) SaveUIState(ctx context.Context, ownerID string, state models.UIState) error {
	ids := state.OpenNoteIDs
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode ui state: %w", err)
	}
	row := uiStateRow{UserID: ownerID, OpenNoteIDs: string(raw)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"open_note_ids"}),
	}).Create(&row).Error
	if err != nil {
		return wrapErr("save ui state", err)
	}
	return nil
}

// RevokeToken upserts the revocation and purges entries expired at now.
func (s *Store) RevokeToken(ctx context.Context, tokenID string, expiresAt, now time.Time) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("expires_at < ?", now.Unix()).Delete(&revokedTokenRow{}).Error; err != nil {
		return wrapErr("purge revoked tokens", err)
	}
	row := revokedTokenRow{TokenID: tokenID, ExpiresAt: expiresAt.Unix()}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at"}),
	}).Create(&row).Error
	if err != nil {
		return wrapErr("revoke token", err)
	}
	return nil
}

// IsTokenRevoked reports whether tokenID is revoked and unexpired at now.
func (s *Store) IsTokenRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&revokedTokenRow{}).
		Where("token_id = ? AND expires_at >= ?", tokenID, now.Unix()).
		Count(&count).Error
	if err != nil {
		return false, wrapErr("check revoked token", err)
	}
	return count > 0, nil
}

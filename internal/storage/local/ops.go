package local

import (
	"context"
	"fmt"
	"time"

	"organizer/internal/models"
)

func (st *Store) rlock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st.mu.RLock()
	return nil
}

// Users

// CreateUser stores a new account; a taken email yields models.ErrDuplicateEmail.
func (st *Store) CreateUser(ctx context.Context, user models.User, passwordHash string) (models.User, error) {
	user.ID = models.NewID()
	user.CreatedAt = time.Now().UTC()
	err := st.mutate(ctx, func(s *state) ([]string, error) {
		for _, u := range s.users {
			if u.Email == user.Email {
				return nil, models.ErrDuplicateEmail
			}
		}
		s.users = append(s.users, userRecord{User: user, PasswordHash: passwordHash})
		return []string{slotUsers}, nil
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// GetUser looks an account up by id.
func (st *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	if err := st.rlock(ctx); err != nil {
		return models.User{}, err
	}
	defer st.mu.RUnlock()
	for _, u := range st.s.users {
		if u.ID == id {
			return u.User, nil
		}
	}
	return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
}

// GetUserByEmail returns the account and its password hash.
func (st *Store) GetUserByEmail(ctx context.Context, email string) (models.User, string, error) {
	if err := st.rlock(ctx); err != nil {
		return models.User{}, "", err
	}
	defer st.mu.RUnlock()
	for _, u := range st.s.users {
		if u.Email == email {
			return u.User, u.PasswordHash, nil
		}
	}
	return models.User{}, "", fmt.Errorf("user %s: %w", email, models.ErrNotFound)
}

// UpdateUser applies the non-nil fields of in.
func (st *Store) UpdateUser(ctx context.Context, id string, in models.ProfileInput) (models.User, error) {
	var updated models.User
	err := st.mutate(ctx, func(s *state) ([]string, error) {
		idx := -1
		for i, u := range s.users {
			if u.ID == id {
				idx = i
			} else if u.Email == in.Email {
				return nil, models.ErrDuplicateEmail
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		u := &s.users[idx]
		u.Email = in.Email
		u.Name = in.Name
		u.Preferences = in.Preferences
		updated = u.User
		return []string{slotUsers}, nil
	})
	return updated, err
}

// DeleteUser removes the account and everything it owns.
func (st *Store) DeleteUser(ctx context.Context, id string) error {
	return st.mutate(ctx, func(s *state) ([]string, error) {
		idx := -1
		for i, u := range s.users {
			if u.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		s.users = append(s.users[:idx], s.users[idx+1:]...)
		s.tasks = filterOwned(s.tasks, id, func(t models.Task) string { return t.UserID })
		s.notes = filterOwned(s.notes, id, func(n models.Note) string { return n.UserID })
		s.files = filterOwned(s.files, id, func(f models.FileItem) string { return f.UserID })
		delete(s.ui, id)
		return []string{slotUsers, slotTasks, slotNotes, slotFiles, slotUI}, nil
	})
}

func filterOwned[T any](items []T, ownerID string, owner func(T) string) []T {
	out := items[:0:0]
	for _, it := range items {
		if owner(it) != ownerID {
			out = append(out, it)
		}
	}
	return out
}

// Tasks

// ListTasks returns the owner's tasks in creation order.
func (st *Store) ListTasks(ctx context.Context, ownerID string) ([]models.Task, error) {
	if err := st.rlock(ctx); err != nil {
		return nil, err
	}
	defer st.mu.RUnlock()
	out := []models.Task{}
	for _, t := range st.s.tasks {
		if t.UserID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetTask returns one task when it belongs to ownerID.
func (st *Store) GetTask(ctx context.Context, id, ownerID string) (models.Task, error) {
	if err := st.rlock(ctx); err != nil {
		return models.Task{}, err
	}
	defer st.mu.RUnlock()
	for _, t := range st.s.tasks {
		if t.ID == id && t.UserID == ownerID {
			return t, nil
		}
	}
	return models.Task{}, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
}

// CreateTask stores a normalized task.
func (st *Store) CreateTask(ctx context.Context, ownerID string, in models.TaskInput) (models.Task, error) {
	now := time.Now().UTC()
	task := models.Task{
		ID:        models.NewID(),
		UserID:    ownerID,
		Text:      in.Text,
		Date:      in.Date,
		Frequency: in.Frequency,
		EndDate:   in.EndDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := st.mutate(ctx, func(s *state) ([]string, error) {
		s.tasks = append(s.tasks, task)
		return []string{slotTasks}, nil
	})
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// UpdateTask replaces the task's fields and bumps UpdatedAt.
func (st *Store) UpdateTask(ctx context.Context, id, ownerID string, in models.TaskInput) (models.Task, error) {
	var updated models.Task
	err := st.mutate(ctx, func(s *state) ([]string, error) {
		for i := range s.tasks {
			t := &s.tasks[i]
			if t.ID != id || t.UserID != ownerID {
				continue
			}
			t.Text = in.Text
			t.Date = in.Date
			t.Frequency = in.Frequency
			t.EndDate = in.EndDate
			t.UpdatedAt = time.Now().UTC()
			updated = *t
			return []string{slotTasks}, nil
		}
		return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	})
	return updated, err
}

// DeleteTask removes one task.
func (st *Store) DeleteTask(ctx context.Context, id, ownerID string) error {
	return st.mutate(ctx, func(s *state) ([]string, error) {
		for i, t := range s.tasks {
			if t.ID == id && t.UserID == ownerID {
				s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
				return []string{slotTasks}, nil
			}
		}
		return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	})
}

// Notes

// ListNotes returns the owner's notes.
func (st *Store) ListNotes(ctx context.Context, ownerID string) ([]models.Note, error) {
	if err := st.rlock(ctx); err != nil {
		return nil, err
	}
	defer st.mu.RUnlock()
	out := []models.Note{}
	for _, n := range st.s.notes {
		if n.UserID == ownerID {
			out = append(out, n)
		}
	}
	return out, nil
}

// CreateNote stores a new note.
func (st *Store) CreateNote(ctx context.Context, ownerID, content string) (models.Note, error) {
	now := time.Now().UTC()
	note := models.Note{ID: models.NewID(), UserID: ownerID, Content: content, CreatedAt: now, UpdatedAt: now}
	err := st.mutate(ctx, func(s *state) ([]string, error) {
		s.notes = append(s.notes, note)
		return []string{slotNotes}, nil
	})
	if err != nil {
		return models.Note{}, err
	}
	return note, nil
}

// UpdateNote replaces the content of a note.
func (st *Store) UpdateNote(ctx context.Context, id, ownerID, content string) (models.Note, error) {
	var updated models.Note
	err := st.mutate(ctx, func(s *state) ([]string, error) {
		for i := range s.notes {
			n := &s.notes[i]
			if n.ID == id && n.UserID == ownerID {
				n.Content = content
				n.UpdatedAt = time.Now().UTC()
				updated = *n
				return []string{slotNotes}, nil
			}
		}
		return nil, fmt.Errorf("note %s: %w", id, models.ErrNotFound)
	})
	return updated, err
}

// DeleteNote removes a note.
func (st *Store) DeleteNote(ctx context.Context, id, ownerID string) error {
	return st.mutate(ctx, func(s *state) ([]string, error) {
		for i, n := range s.notes {
			if n.ID == id && n.UserID == ownerID {
				s.notes = append(s.notes[:i], s.notes[i+1:]...)
				return []string{slotNotes}, nil
			}
		}
		return nil, fmt.Errorf("note %s: %w", id, models.ErrNotFound)
	})
}

// Files

// ListFiles returns every node of the owner's tree.
func (st *Store) ListFiles(ctx context.Context, ownerID string) ([]models.FileItem, error) {
	if err := st.rlock(ctx); err != nil {
		return nil, err
	}
	defer st.mu.RUnlock()
	out := []models.FileItem{}
	for _, f := range st.s.files {
		if f.UserID == ownerID {
			out = append(out, f)
		}
	}
	return out, nil
}

// GetFile returns one node.
func (st *Store) GetFile(ctx context.Context, id, ownerID string) (models.FileItem, error) {
	if err := st.rlock(ctx); err != nil {
		return models.FileItem{}, err
	}
	defer st.mu.RUnlock()
	for _, f := range st.s.files {
		if f.ID == id && f.UserID == ownerID {
			return f, nil
		}
	}
	return models.FileItem{}, fmt.Errorf("file %s: %w", id, models.ErrNotFound)
}

// CreateFile records a folder or uploaded file.
func (st *Store) CreateFile(ctx context.Context, ownerID string, item models.FileItem) (models.FileItem, error) {
	if item.ID == "" {
		item.ID = models.NewID()
	}
	item.UserID = ownerID
	item.CreatedAt = time.Now().UTC()
	item.Media = item.Kind == models.KindFile && models.IsMediaName(item.Name)
	err := st.mutate(ctx, func(s *state) ([]string, error) {
		s.files = append(s.files, item)
		return []string{slotFiles}, nil
	})
	if err != nil {
		return models.FileItem{}, err
	}
	return item, nil
}

// DeleteFiles removes the listed nodes in one step.
func (st *Store) DeleteFiles(ctx context.Context, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	return st.mutate(ctx, func(s *state) ([]string, error) {
		kept := s.files[:0:0]
		for _, f := range s.files {
			if f.UserID == ownerID && remove[f.ID] {
				continue
			}
			kept = append(kept, f)
		}
		s.files = kept
		return []string{slotFiles}, nil
	})
}

// UI state

// GetUIState returns the saved state or an empty one.
func (st *Store) GetUIState(ctx context.Context, ownerID string) (models.UIState, error) {
	if err := st.rlock(ctx); err != nil {
		return models.UIState{}, err
	}
	defer st.mu.RUnlock()
	return models.UIState{OpenNoteIDs: append([]string{}, st.s.ui[ownerID]...)}, nil
}

// SaveUIState replaces the saved state.
func (st *Store) SaveUIState(ctx context.Context, ownerID string, ui models.UIState) error {
	ids := append([]string{}, ui.OpenNoteIDs...)
	return st.mutate(ctx, func(s *state) ([]string, error) {
		s.ui[ownerID] = ids
		return []string{slotUI}, nil
	})
}

// Tokens

// RevokeToken records tokenID until expiresAt and forgets entries expired at now.
func (st *Store) RevokeToken(ctx context.Context, tokenID string, expiresAt, now time.Time) error {
	return st.mutate(ctx, func(s *state) ([]string, error) {
		for id, exp := range s.revoked {
			if exp.Before(now) {
				delete(s.revoked, id)
			}
		}
		s.revoked[tokenID] = expiresAt.UTC()
		return []string{slotRevoked}, nil
	})
}

// IsTokenRevoked reports whether tokenID is revoked and unexpired at now.
func (st *Store) IsTokenRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	if err := st.rlock(ctx); err != nil {
		return false, err
	}
	defer st.mu.RUnlock()
	exp, ok := st.s.revoked[tokenID]
	return ok && !exp.Before(now), nil
}

package service

import (
	"context"
	"fmt"
	"strings"

	"organizer/internal/models"
	"organizer/internal/storage"
)

// NotesStore is what Notes and UIStates need.
type NotesStore interface {
	storage.NoteStore
	storage.UIStateStore
}

// Notes manages sticky notes.
type Notes struct {
	store NotesStore
}

// NewNotes returns a Notes service over store.
func NewNotes(store NotesStore) *Notes {
	return &Notes{store: store}
}

// List returns every note of ownerID.
func (s *Notes) List(ctx context.Context, ownerID string) ([]models.Note, error) {
	return s.store.ListNotes(ctx, ownerID)
}

// Create stores content as typed; it must not be blank.
func (s *Notes) Create(ctx context.Context, ownerID, content string) (models.Note, error) {
	if strings.TrimSpace(content) == "" {
		return models.Note{}, fmt.Errorf("content is required: %w", models.ErrValidation)
	}
	return s.store.CreateNote(ctx, ownerID, content)
}

// Update replaces the content. Clearing a note is allowed.
func (s *Notes) Update(ctx context.Context, ownerID, id, content string) (models.Note, error) {
	if strings.TrimSpace(id) == "" {
		return models.Note{}, fmt.Errorf("id is required: %w", models.ErrValidation)
	}
	return s.store.UpdateNote(ctx, id, ownerID, content)
}

// Delete removes a note and closes it in the owner's view state.
func (s *Notes) Delete(ctx context.Context, ownerID, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("id is required: %w", models.ErrValidation)
	}
	if err := s.store.DeleteNote(ctx, id, ownerID); err != nil {
		return err
	}
	state, err := s.store.GetUIState(ctx, ownerID)
	if err != nil {
		return err
	}
	kept := make([]string, 0, len(state.OpenNoteIDs))
	for _, open := range state.OpenNoteIDs {
		if open != id {
			kept = append(kept, open)
		}
	}
	if len(kept) == len(state.OpenNoteIDs) {
		return nil
	}
	return s.store.SaveUIState(ctx, ownerID, models.UIState{OpenNoteIDs: kept})
}

// UIStates keeps which notes a user has open.
type UIStates struct {
	store NotesStore
}

// NewUIStates returns a UIStates service over store.
func NewUIStates(store NotesStore) *UIStates {
	return &UIStates{store: store}
}

// Get returns the saved state, empty when nothing was saved yet.
func (s *UIStates) Get(ctx context.Context, ownerID string) (models.UIState, error) {
	return s.store.GetUIState(ctx, ownerID)
}

// Save keeps only ids of the owner's notes, once each, in the given order.
func (s *UIStates) Save(ctx context.Context, ownerID string, state models.UIState) (models.UIState, error) {
	notes, err := s.store.ListNotes(ctx, ownerID)
	if err != nil {
		return models.UIState{}, err
	}
	known := make(map[string]bool, len(notes))
	for _, n := range notes {
		known[n.ID] = true
	}
	ids := make([]string, 0, len(state.OpenNoteIDs))
	for _, id := range state.OpenNoteIDs {
		if known[id] {
			ids = append(ids, id)
			known[id] = false
		}
	}
	out := models.UIState{OpenNoteIDs: ids}
	if err := s.store.SaveUIState(ctx, ownerID, out); err != nil {
		return models.UIState{}, err
	}
	return out, nil
}

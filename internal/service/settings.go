package service

import (
	"context"
	"fmt"
	"strings"

	"organizer/internal/auth"
	"organizer/internal/blob"
	"organizer/internal/models"
	"organizer/internal/storage"
)

// SettingsInput is a partial profile update; nil fields are left alone.
type SettingsInput struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	DarkMode *bool   `json:"darkMode"`
}

// Settings manages the signed-in user's profile and account.
type Settings struct {
	store storage.UserStore
	blobs *blob.Store
}

// NewSettings returns a Settings service. blobs may be nil when uploads are disabled.
func NewSettings(store storage.UserStore, blobs *blob.Store) *Settings {
	return &Settings{store: store, blobs: blobs}
}

// Get returns the profile of ownerID.
func (s *Settings) Get(ctx context.Context, ownerID string) (models.User, error) {
	return s.store.GetUser(ctx, ownerID)
}

// Update applies the non-nil fields of in.
func (s *Settings) Update(ctx context.Context, ownerID string, in SettingsInput) (models.User, error) {
	current, err := s.store.GetUser(ctx, ownerID)
	if err != nil {
		return models.User{}, err
	}
	next := models.ProfileInput{
		Email:       current.Email,
		Name:        current.Name,
		Preferences: current.Preferences,
	}
	if in.Email != nil {
		next.Email = auth.NormalizeEmail(*in.Email)
		if err := auth.ValidateEmail(next.Email); err != nil {
			return models.User{}, err
		}
	}
	if in.Name != nil {
		next.Name = strings.TrimSpace(*in.Name)
	}
	if next.Name == "" {
		next.Name = next.Email
	}
	if in.DarkMode != nil {
		next.Preferences.DarkMode = *in.DarkMode
	}
	return s.store.UpdateUser(ctx, ownerID, next)
}

// DeleteAccount removes the user, everything they own and their uploads.
func (s *Settings) DeleteAccount(ctx context.Context, ownerID string) error {
	if err := s.store.DeleteUser(ctx, ownerID); err != nil {
		return err
	}
	if s.blobs == nil {
		return nil
	}
	if err := s.blobs.DeleteOwner(ownerID); err != nil {
		return fmt.Errorf("delete uploads: %w", err)
	}
	return nil
}

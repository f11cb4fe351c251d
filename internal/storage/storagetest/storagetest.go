// Package storagetest holds the behavior every storage.Store adapter must
// share. Adapter packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"organizer/internal/models"
	"organizer/internal/storage"
)

// Opener returns a fresh, empty store. Cleanup is registered on t.
type Opener func(t *testing.T) storage.Store

// Run executes the contract suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("Users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("Tasks", func(t *testing.T) { testTasks(t, open(t)) })
	t.Run("TasksOwnerScope", func(t *testing.T) { testTaskOwnerScope(t, open(t)) })
	t.Run("Notes", func(t *testing.T) { testNotes(t, open(t)) })
	t.Run("Files", func(t *testing.T) { testFiles(t, open(t)) })
	t.Run("UIState", func(t *testing.T) { testUIState(t, open(t)) })
	t.Run("Tokens", func(t *testing.T) { testTokens(t, open(t)) })
	t.Run("DeleteUserCascades", func(t *testing.T) { testDeleteUserCascades(t, open(t)) })
}

// MustCreateUser registers a user with a placeholder hash.
func MustCreateUser(t *testing.T, s storage.Store, email string) models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), models.User{
		Email:       email,
		Name:        email,
		Preferences: models.DefaultPreferences(),
	}, "hash-"+email)
	require.NoError(t, err)
	return u
}

func testUsers(t *testing.T, s storage.Store) {
	ctx := context.Background()

	u := MustCreateUser(t, s, "ada@example.com")
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.True(t, u.Preferences.DarkMode)
	assert.False(t, u.CreatedAt.IsZero())

	_, err := s.CreateUser(ctx, models.User{Email: "ada@example.com", Name: "dup"}, "x")
	assert.True(t, errors.Is(err, models.ErrDuplicateEmail), "got %v", err)

	got, hash, err := s.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash-ada@example.com", hash)

	_, _, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	updated, err := s.UpdateUser(ctx, u.ID, models.ProfileInput{
		Email:       "ada.l@example.com",
		Name:        "Ada",
		Preferences: models.Preferences{DarkMode: false},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.Name)
	assert.Equal(t, "ada.l@example.com", updated.Email)
	assert.False(t, updated.Preferences.DarkMode)

	other := MustCreateUser(t, s, "grace@example.com")
	_, err = s.UpdateUser(ctx, other.ID, models.ProfileInput{Email: "ada.l@example.com", Name: "Grace"})
	assert.True(t, errors.Is(err, models.ErrDuplicateEmail), "got %v", err)

	_, err = s.GetUser(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func testTasks(t *testing.T, s storage.Store) {
	ctx := context.Background()
	owner := MustCreateUser(t, s, "tasks@example.com")

	empty, err := s.ListTasks(ctx, owner.ID)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	inputs := []models.TaskInput{
		{Text: "Pay rent", Date: "2024-01-31", Frequency: models.FrequencyMonthly, EndDate: "2024-04-30"},
		{Text: "Standup", Date: "2024-03-04T09:00", Frequency: models.FrequencyWeekly, EndDate: "2024-03-18"},
		{Text: "Dentist", Date: "2024-05-10", Frequency: models.FrequencyOnce},
	}
	var created []models.Task
	for _, in := range inputs {
		task, err := s.CreateTask(ctx, owner.ID, in)
		require.NoError(t, err)
		assert.NotEmpty(t, task.ID)
		assert.Equal(t, owner.ID, task.UserID)
		assert.Equal(t, in.Text, task.Text)
		assert.Equal(t, in.Date, task.Date)
		assert.Equal(t, in.Frequency, task.Frequency)
		assert.Equal(t, in.EndDate, task.EndDate)
		created = append(created, task)
	}

	listed, err := s.ListTasks(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i := range created {
		assert.Equal(t, created[i].ID, listed[i].ID, "insertion order")
	}

	updated, err := s.UpdateTask(ctx, created[0].ID, owner.ID, models.TaskInput{
		Text: "Pay rent (new flat)", Date: "2024-02-01", Frequency: models.FrequencyOnce,
	})
	require.NoError(t, err)
	assert.Equal(t, created[0].ID, updated.ID)
	assert.Equal(t, "Pay rent (new flat)", updated.Text)
	assert.Equal(t, models.FrequencyOnce, updated.Frequency)
	assert.Empty(t, updated.EndDate)

	got, err := s.GetTask(ctx, created[0].ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Text, got.Text)

	require.NoError(t, s.DeleteTask(ctx, created[1].ID, owner.ID))
	err = s.DeleteTask(ctx, created[1].ID, owner.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	listed, err = s.ListTasks(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func testTaskOwnerScope(t *testing.T, s storage.Store) {
	ctx := context.Background()
	alice := MustCreateUser(t, s, "alice@example.com")
	mallory := MustCreateUser(t, s, "mallory@example.com")

	task, err := s.CreateTask(ctx, alice.ID, models.TaskInput{Text: "secret", Date: "2024-01-01", Frequency: models.FrequencyOnce})
	require.NoError(t, err)

	_, err = s.GetTask(ctx, task.ID, mallory.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = s.UpdateTask(ctx, task.ID, mallory.ID, models.TaskInput{Text: "mine", Date: "2024-01-01", Frequency: models.FrequencyOnce})
	assert.True(t, errors.Is(err, models.ErrNotFound))

	err = s.DeleteTask(ctx, task.ID, mallory.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	theirs, err := s.ListTasks(ctx, mallory.ID)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	still, err := s.GetTask(ctx, task.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", still.Text)
}

func testNotes(t *testing.T, s storage.Store) {
	ctx := context.Background()
	owner := MustCreateUser(t, s, "notes@example.com")
	other := MustCreateUser(t, s, "other@example.com")

	first, err := s.CreateNote(ctx, owner.ID, "groceries")
	require.NoError(t, err)
	second, err := s.CreateNote(ctx, owner.ID, "ideas")
	require.NoError(t, err)

	notes, err := s.ListNotes(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, first.ID, notes[0].ID)
	assert.Equal(t, second.ID, notes[1].ID)

	updated, err := s.UpdateNote(ctx, first.ID, owner.ID, "groceries: milk")
	require.NoError(t, err)
	assert.Equal(t, "groceries: milk", updated.Content)

	_, err = s.UpdateNote(ctx, first.ID, other.ID, "hijack")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	require.NoError(t, s.DeleteNote(ctx, second.ID, owner.ID))
	assert.True(t, errors.Is(s.DeleteNote(ctx, second.ID, owner.ID), models.ErrNotFound))
}

func testFiles(t *testing.T, s storage.Store) {
	ctx := context.Background()
	owner := MustCreateUser(t, s, "files@example.com")
	other := MustCreateUser(t, s, "files-other@example.com")

	folder, err := s.CreateFile(ctx, owner.ID, models.FileItem{Name: "Trips", Kind: models.KindFolder})
	require.NoError(t, err)
	assert.NotEmpty(t, folder.ID)

	photo, err := s.CreateFile(ctx, owner.ID, models.FileItem{
		ID:          "fixed-id",
		Name:        "beach.jpg",
		Kind:        models.KindFile,
		ParentID:    folder.ID,
		Date:        "2024-01-05",
		ContentType: "image/jpeg",
		Size:        42,
		URL:         "/api/files/fixed-id/content",
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", photo.ID)
	assert.True(t, photo.Media)
	assert.Equal(t, folder.ID, photo.ParentID)
	assert.Equal(t, int64(42), photo.Size)

	items, err := s.ListFiles(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, folder.ID, items[0].ID)

	_, err = s.GetFile(ctx, photo.ID, other.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	// Deleting another owner's ids is a no-op.
	require.NoError(t, s.DeleteFiles(ctx, other.ID, []string{folder.ID}))
	items, err = s.ListFiles(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.NoError(t, s.DeleteFiles(ctx, owner.ID, []string{folder.ID, photo.ID}))
	items, err = s.ListFiles(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func testUIState(t *testing.T, s storage.Store) {
	ctx := context.Background()
	owner := MustCreateUser(t, s, "ui@example.com")

	state, err := s.GetUIState(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, state.OpenNoteIDs)

	require.NoError(t, s.SaveUIState(ctx, owner.ID, models.UIState{OpenNoteIDs: []string{"n1", "n2"}}))
	require.NoError(t, s.SaveUIState(ctx, owner.ID, models.UIState{OpenNoteIDs: []string{"n2"}}))

	state, err = s.GetUIState(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"n2"}, state.OpenNoteIDs)
}

func testTokens(t *testing.T, s storage.Store) {
	ctx := context.Background()

	now := time.Now()

	revoked, err := s.IsTokenRevoked(ctx, "jti-1", now)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.RevokeToken(ctx, "jti-1", now.Add(time.Hour), now))
	revoked, err = s.IsTokenRevoked(ctx, "jti-1", now)
	require.NoError(t, err)
	assert.True(t, revoked)

	require.NoError(t, s.RevokeToken(ctx, "jti-old", now.Add(-time.Hour), now))
	revoked, err = s.IsTokenRevoked(ctx, "jti-old", now)
	require.NoError(t, err)
	assert.False(t, revoked)

	// Expiry follows the caller's clock, not the wall clock.
	past := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.RevokeToken(ctx, "jti-past", past.Add(7*24*time.Hour), past))
	revoked, err = s.IsTokenRevoked(ctx, "jti-past", past.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, revoked, "unexpired at the caller's now")
	revoked, err = s.IsTokenRevoked(ctx, "jti-past", past.Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.False(t, revoked, "expired at the caller's now")
}

func testDeleteUserCascades(t *testing.T, s storage.Store) {
	ctx := context.Background()
	owner := MustCreateUser(t, s, "gone@example.com")
	keeper := MustCreateUser(t, s, "keeper@example.com")

	_, err := s.CreateTask(ctx, owner.ID, models.TaskInput{Text: "t", Date: "2024-01-01", Frequency: models.FrequencyOnce})
	require.NoError(t, err)
	_, err = s.CreateNote(ctx, owner.ID, "n")
	require.NoError(t, err)
	_, err = s.CreateFile(ctx, owner.ID, models.FileItem{Name: "f", Kind: models.KindFolder})
	require.NoError(t, err)
	require.NoError(t, s.SaveUIState(ctx, owner.ID, models.UIState{OpenNoteIDs: []string{"x"}}))
	kept, err := s.CreateTask(ctx, keeper.ID, models.TaskInput{Text: "keep", Date: "2024-01-01", Frequency: models.FrequencyOnce})
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, owner.ID))
	assert.True(t, errors.Is(s.DeleteUser(ctx, owner.ID), models.ErrNotFound))

	_, err = s.GetUser(ctx, owner.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	tasks, err := s.ListTasks(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	notes, err := s.ListNotes(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
	files, err := s.ListFiles(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
	state, err := s.GetUIState(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, state.OpenNoteIDs)

	_, err = s.GetTask(ctx, kept.ID, keeper.ID)
	assert.NoError(t, err)

	// The email is free again.
	_, err = s.CreateUser(ctx, models.User{Email: "gone@example.com", Name: "back"}, "h")
	assert.NoError(t, err)
}

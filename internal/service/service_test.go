package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"organizer/internal/blob"
	"organizer/internal/models"
	"organizer/internal/recurrence"
	"organizer/internal/storage/local"
	"organizer/internal/storage/storagetest"
)

type env struct {
	store    *local.Store
	blobs    *blob.Store
	owner    models.User
	tasks    *Tasks
	calendar *Calendar
	notes    *Notes
	ui       *UIStates
	files    *Files
	settings *Settings
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := local.Open(t.TempDir(), local.Options{})
	require.NoError(t, err)
	blobs, err := blob.Open(t.TempDir())
	require.NoError(t, err)
	return &env{
		store:    store,
		blobs:    blobs,
		owner:    storagetest.MustCreateUser(t, store, "owner@example.com"),
		tasks:    NewTasks(store, recurrence.Expander{}),
		calendar: NewCalendar(store, recurrence.Expander{}),
		notes:    NewNotes(store),
		ui:       NewUIStates(store),
		files:    NewFiles(store, blobs, nil),
		settings: NewSettings(store, blobs),
	}
}

func day(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := recurrence.ParseDate(raw)
	require.NoError(t, err)
	return d
}

func TestNormalizeTaskInput(t *testing.T) {
	got, err := NormalizeTaskInput(models.TaskInput{Text: "  Dentist ", Date: "2024-05-10", EndDate: "2024-06-01"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "Dentist", got.Text)
	assert.Equal(t, models.FrequencyOnce, got.Frequency)
	assert.Empty(t, got.EndDate, "once clears endDate")

	got, err = NormalizeTaskInput(models.TaskInput{Text: "Gym", Date: "2024-05-10", Frequency: "Weekly", EndDate: "2024-06-01"}, 0)
	require.NoError(t, err)
	assert.Equal(t, models.FrequencyWeekly, got.Frequency)
	assert.Equal(t, "2024-06-01", got.EndDate)

	bad := []models.TaskInput{
		{Text: " ", Date: "2024-05-10"},
		{Text: "x", Date: ""},
		{Text: "x", Date: "10/05/2024"},
		{Text: "x", Date: "2024-05-10", Frequency: "hourly"},
		{Text: "x", Date: "2024-05-10", Frequency: models.FrequencyDaily, EndDate: "2024-05-09"},
		{Text: "x", Date: "2024-05-10", Frequency: models.FrequencyDaily, EndDate: "soon"},
	}
	for _, in := range bad {
		_, err := NormalizeTaskInput(in, 0)
		assert.True(t, errors.Is(err, models.ErrValidation), "%+v", in)
	}
}

func TestTaskLifecycleDrivesCalendar(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rent, err := e.tasks.Create(ctx, e.owner.ID, models.TaskInput{
		Text: "Pay rent", Date: "2024-01-31", Frequency: models.FrequencyMonthly, EndDate: "2024-04-30",
	})
	require.NoError(t, err)

	window := recurrence.Between(day(t, "2024-01-01"), day(t, "2024-12-31"))
	days, err := e.calendar.Occurrences(ctx, e.owner.ID, window)
	require.NoError(t, err)
	for _, key := range []recurrence.DateKey{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"} {
		require.Len(t, days[key], 1, key)
		assert.Equal(t, rent.ID, days[key][0].Task.ID)
	}
	assert.Equal(t, 4, days.Count())

	_, err = e.tasks.Update(ctx, e.owner.ID, rent.ID, models.TaskInput{Text: "Pay rent", Date: "2024-01-31", Frequency: models.FrequencyOnce, EndDate: "2024-04-30"})
	require.NoError(t, err)
	days, err = e.calendar.Occurrences(ctx, e.owner.ID, window)
	require.NoError(t, err)
	assert.Equal(t, 1, days.Count())

	require.NoError(t, e.tasks.Delete(ctx, e.owner.ID, rent.ID))
	days, err = e.calendar.Occurrences(ctx, e.owner.ID, window)
	require.NoError(t, err)
	assert.Zero(t, days.Count(), "deleting a task removes every occurrence")

	err = e.tasks.Delete(ctx, e.owner.ID, rent.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestNormalizeTaskInputLimitsSpan(t *testing.T) {
	in := models.TaskInput{Text: "x", Date: "2024-01-01", Frequency: models.FrequencyDaily, EndDate: "2024-01-10"}
	_, err := NormalizeTaskInput(in, 10)
	require.NoError(t, err, "ten days inclusive fit a ten day limit")
	_, err = NormalizeTaskInput(in, 9)
	assert.True(t, errors.Is(err, models.ErrValidation))

	in.EndDate = "2200-01-01"
	_, err = NormalizeTaskInput(in, 0)
	assert.True(t, errors.Is(err, models.ErrValidation), "default limit applies")
}

func TestLongTasksAreRejectedAtWriteTime(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	long := models.TaskInput{Text: "forever", Date: "2024-01-01", Frequency: models.FrequencyDaily, EndDate: "2200-01-01"}

	_, err := e.tasks.Create(ctx, e.owner.ID, long)
	assert.True(t, errors.Is(err, models.ErrValidation))

	ok, err := e.tasks.Create(ctx, e.owner.ID, models.TaskInput{Text: "short", Date: "2024-01-01", Frequency: models.FrequencyDaily, EndDate: "2024-01-03"})
	require.NoError(t, err)
	_, err = e.tasks.Update(ctx, e.owner.ID, ok.ID, long)
	assert.True(t, errors.Is(err, models.ErrValidation))

	days, err := e.calendar.Occurrences(ctx, e.owner.ID, recurrence.DateRange{})
	require.NoError(t, err, "open windows keep working")
	assert.Equal(t, 3, days.Count())
}

func TestOccurrencesRangeTooLargeIsValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	// Written straight to the store, as data from before the limit existed.
	_, err := e.store.CreateTask(ctx, e.owner.ID, models.TaskInput{Text: "forever", Date: "2000-01-01", Frequency: models.FrequencyDaily, EndDate: "2300-01-01"})
	require.NoError(t, err)

	_, err = e.calendar.Occurrences(ctx, e.owner.ID, recurrence.DateRange{})
	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.True(t, errors.Is(err, recurrence.ErrRangeTooLarge))
}

func TestMonthGrid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := e.tasks.Create(ctx, e.owner.ID, models.TaskInput{Text: "busy", Date: "2024-03-04"})
		require.NoError(t, err)
	}
	_, err := e.tasks.Create(ctx, e.owner.ID, models.TaskInput{Text: "Standup", Date: "2024-03-04T09:00", Frequency: models.FrequencyWeekly, EndDate: "2024-03-18"})
	require.NoError(t, err)

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, recurrence.Location)
	view, err := e.calendar.Month(ctx, e.owner.ID, 2024, time.March, now)
	require.NoError(t, err)

	// March 2024 starts on a Friday and needs six Sunday-first rows.
	require.Len(t, view.Weeks, 6)
	first := view.Weeks[0][0]
	assert.Equal(t, recurrence.DateKey("2024-02-25"), first.Date)
	assert.False(t, first.InMonth)
	assert.Equal(t, recurrence.DateKey("2024-03-01"), view.Weeks[0][5].Date)

	cells := map[recurrence.DateKey]DayCell{}
	for _, week := range view.Weeks {
		require.Len(t, week, 7)
		for _, c := range week {
			cells[c.Date] = c
		}
	}
	busy := cells["2024-03-04"]
	assert.Len(t, busy.Items, MaxPerCell)
	assert.Equal(t, 3, busy.More)
	assert.Len(t, cells["2024-03-11"].Items, 1)
	assert.Len(t, cells["2024-03-18"].Items, 1)
	assert.Empty(t, cells["2024-03-25"].Items)
	assert.True(t, cells["2024-03-10"].Today)
	assert.False(t, cells["2024-03-11"].Today)

	_, err = e.calendar.Month(ctx, e.owner.ID, 2024, 13, now)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestMonthGridFiveRows(t *testing.T) {
	e := newEnv(t)
	view, err := e.calendar.Month(context.Background(), e.owner.ID, 2024, time.April, time.Now())
	require.NoError(t, err)
	assert.Len(t, view.Weeks, 5)
	assert.Equal(t, recurrence.DateKey("2024-03-31"), view.Weeks[0][0].Date)
}

func TestBuildTaskICS(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	out, err := BuildTaskICS(models.Task{ID: "t1", Text: "Pay rent, now", Date: "2024-01-31", Frequency: models.FrequencyMonthly, EndDate: "2024-04-30"}, now)
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN:VCALENDAR\r\n")
	assert.Contains(t, out, "SUMMARY:Pay rent\\, now\r\n")
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20240131\r\n")
	assert.Contains(t, out, "RRULE:FREQ=MONTHLY;BYMONTHDAY=-1;UNTIL=20240430\r\n")

	out, err = BuildTaskICS(models.Task{ID: "t2", Text: "Standup", Date: "2024-03-04T09:00", Frequency: models.FrequencyWeekly, EndDate: "2024-03-18"}, now)
	require.NoError(t, err)
	assert.Contains(t, out, "DTSTART;TZID=Australia/Sydney:20240304T090000\r\n")
	assert.Contains(t, out, "RRULE:FREQ=WEEKLY;UNTIL=20240318T125959Z\r\n")

	out, err = BuildTaskICS(models.Task{ID: "t3", Text: "Open ended", Date: "2024-03-04", Frequency: models.FrequencyDaily}, now)
	require.NoError(t, err)
	assert.NotContains(t, out, "RRULE")

	_, err = BuildTaskICS(models.Task{ID: "t4", Text: "bad", Date: "nope"}, now)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestMonthlyByDay(t *testing.T) {
	assert.Equal(t, "", monthlyByDay(day(t, "2024-01-15")))
	assert.Equal(t, ";BYMONTHDAY=-1", monthlyByDay(day(t, "2024-04-30")))
	assert.Equal(t, ";BYMONTHDAY=28,29,30;BYSETPOS=-1", monthlyByDay(day(t, "2024-01-30")))
}

func TestNotesAndUIState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.notes.Create(ctx, e.owner.ID, "   ")
	assert.True(t, errors.Is(err, models.ErrValidation))

	a, err := e.notes.Create(ctx, e.owner.ID, "groceries")
	require.NoError(t, err)
	b, err := e.notes.Create(ctx, e.owner.ID, "ideas")
	require.NoError(t, err)

	state, err := e.ui.Save(ctx, e.owner.ID, models.UIState{OpenNoteIDs: []string{b.ID, "unknown", a.ID, b.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, state.OpenNoteIDs)

	cleared, err := e.notes.Update(ctx, e.owner.ID, a.ID, "")
	require.NoError(t, err)
	assert.Empty(t, cleared.Content)

	require.NoError(t, e.notes.Delete(ctx, e.owner.ID, b.ID))
	state, err = e.ui.Get(ctx, e.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, state.OpenNoteIDs)
}

func TestUploadName(t *testing.T) {
	assert.Equal(t, "beach.jpg", UploadName("beach.jpg", "", nil))
	assert.Equal(t, "Holiday.jpg", UploadName("IMG_001.jpg", " Holiday ", nil))
	assert.Equal(t, "Holiday.jpg", UploadName("IMG_001.jpg", "Holiday.jpg", nil))
	assert.Equal(t, "evil.txt", UploadName("../../evil.txt", "", nil))
}

func TestFilesTree(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	trips, err := e.files.CreateFolder(ctx, e.owner.ID, " Trips ", "")
	require.NoError(t, err)
	assert.Equal(t, "Trips", trips.Name)
	bali, err := e.files.CreateFolder(ctx, e.owner.ID, "Bali", trips.ID)
	require.NoError(t, err)

	_, err = e.files.CreateFolder(ctx, e.owner.ID, "", "")
	assert.True(t, errors.Is(err, models.ErrValidation))
	_, err = e.files.CreateFolder(ctx, e.owner.ID, "x", "missing")
	assert.True(t, errors.Is(err, models.ErrValidation))

	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 64)
	photo, err := e.files.Upload(ctx, e.owner.ID, Upload{
		Filename: "IMG_1.png",
		Title:    "Sunset",
		ParentID: bali.ID,
		Body:     strings.NewReader(png),
	})
	require.NoError(t, err)
	assert.Equal(t, "Sunset.png", photo.Name)
	assert.Equal(t, "image/png", photo.ContentType)
	assert.Equal(t, int64(len(png)), photo.Size)
	assert.True(t, photo.Media)
	assert.Equal(t, ContentURL(photo.ID), photo.URL)
	assert.NotEmpty(t, photo.Date)

	_, err = e.files.Upload(ctx, e.owner.ID, Upload{Filename: "a.txt", ParentID: photo.ID, Body: strings.NewReader("x")})
	assert.True(t, errors.Is(err, models.ErrValidation), "files cannot hold children")

	item, f, err := e.files.Open(ctx, e.owner.ID, photo.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, png, string(body))
	assert.Equal(t, photo.ID, item.ID)

	_, _, err = e.files.Open(ctx, e.owner.ID, trips.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound), "folders have no content")

	root, err := e.files.List(ctx, e.owner.ID, "", true)
	require.NoError(t, err)
	require.Len(t, root, 1)
	assert.Equal(t, trips.ID, root[0].ID)

	removed, err := e.files.Delete(ctx, e.owner.ID, trips.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{trips.ID, bali.ID, photo.ID}, removed)

	all, err := e.files.List(ctx, e.owner.ID, "", false)
	require.NoError(t, err)
	assert.Empty(t, all)
	_, err = e.blobs.Open(e.owner.ID, photo.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = e.files.Delete(ctx, e.owner.ID, trips.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestSettings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	dark := false
	name := "  "
	email := " New@Example.com "
	u, err := e.settings.Update(ctx, e.owner.ID, SettingsInput{Email: &email, Name: &name, DarkMode: &dark})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, "new@example.com", u.Name)
	assert.False(t, u.Preferences.DarkMode)

	named := "Owner"
	u, err = e.settings.Update(ctx, e.owner.ID, SettingsInput{Name: &named})
	require.NoError(t, err)
	assert.Equal(t, "Owner", u.Name)
	assert.Equal(t, "new@example.com", u.Email)
	assert.False(t, u.Preferences.DarkMode)

	bad := "nope"
	_, err = e.settings.Update(ctx, e.owner.ID, SettingsInput{Email: &bad})
	assert.True(t, errors.Is(err, models.ErrValidation))

	other := storagetest.MustCreateUser(t, e.store, "taken@example.com")
	taken := other.Email
	_, err = e.settings.Update(ctx, e.owner.ID, SettingsInput{Email: &taken})
	assert.True(t, errors.Is(err, models.ErrDuplicateEmail))
}

func TestDeleteAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.tasks.Create(ctx, e.owner.ID, models.TaskInput{Text: "t", Date: "2024-01-01"})
	require.NoError(t, err)
	photo, err := e.files.Upload(ctx, e.owner.ID, Upload{Filename: "a.txt", Body: strings.NewReader("hello")})
	require.NoError(t, err)

	require.NoError(t, e.settings.DeleteAccount(ctx, e.owner.ID))

	_, err = e.settings.Get(ctx, e.owner.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	tasks, err := e.tasks.List(ctx, e.owner.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	_, err = e.blobs.Open(e.owner.ID, photo.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestBuildTaskICSFoldsLongLines(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	text := strings.Repeat("Renew the passport ", 6) + "· café ☕ " + strings.Repeat("ü", 40)

	out, err := BuildTaskICS(models.Task{ID: "t1", Text: text, Date: "2024-03-04"}, now)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(out, "END:VCALENDAR\r\n"))

	lines := strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n")
	var summary strings.Builder
	inSummary := false
	for _, line := range lines {
		assert.LessOrEqual(t, len(line), 75, "line %q", line)
		assert.True(t, utf8.ValidString(line), "no character is split across lines")
		switch {
		case strings.HasPrefix(line, "SUMMARY:"):
			inSummary = true
			summary.WriteString(line)
		case inSummary && strings.HasPrefix(line, " "):
			summary.WriteString(line[1:])
		default:
			inSummary = false
		}
	}
	assert.Equal(t, "SUMMARY:"+text, summary.String())
	assert.Equal(t, "SUMMARY:ab", foldICSLine("SUMMARY:ab"))
}

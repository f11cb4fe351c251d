package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Frequency controls how a task repeats on the calendar.
type Frequency string

const (
	FrequencyOnce    Frequency = "once"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// ValidFrequencies enumerates the recurrence rules supported by the calendar.
var ValidFrequencies = map[Frequency]struct{}{
	FrequencyOnce:    {},
	FrequencyDaily:   {},
	FrequencyWeekly:  {},
	FrequencyMonthly: {},
	FrequencyYearly:  {},
}

// Recurring reports whether the frequency repeats at all.
func (f Frequency) Recurring() bool {
	return f != FrequencyOnce && f != ""
}

// Task is the persisted template of a calendar entry. Occurrences derived
// from it are never stored.
type Task struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	Date      string    `json:"date"`
	Frequency Frequency `json:"frequency"`
	EndDate   string    `json:"endDate,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TaskInput carries the editable fields of a task. Updates replace all of them.
type TaskInput struct {
	Text      string    `json:"text"`
	Date      string    `json:"date"`
	Frequency Frequency `json:"frequency"`
	EndDate   string    `json:"endDate"`
}

// Preferences holds per-user display settings.
type Preferences struct {
	DarkMode bool `json:"darkMode"`
}

// DefaultPreferences mirrors what a freshly registered account starts with.
func DefaultPreferences() Preferences {
	return Preferences{DarkMode: true}
}

// User is an account owning tasks, notes and files.
type User struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	Preferences Preferences `json:"preferences"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// ProfileInput replaces the editable profile fields of a user.
type ProfileInput struct {
	Email       string
	Name        string
	Preferences Preferences
}

// Note is a free-form text note.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FileKind distinguishes folders from uploaded files in the file tree.
type FileKind string

const (
	KindFile   FileKind = "file"
	KindFolder FileKind = "folder"
)

// FileItem is a node of a user's file tree. Root nodes have an empty ParentID.
type FileItem struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Kind        FileKind  `json:"type"`
	ParentID    string    `json:"parentId,omitempty"`
	Date        string    `json:"date,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size,omitempty"`
	URL         string    `json:"url,omitempty"`
	Media       bool      `json:"media"`
	CreatedAt   time.Time `json:"createdAt"`
}

var mediaName = regexp.MustCompile(`(?i)\.(jpeg|jpg|gif|png|webp|mp4|webm|ogg|mov)$`)

// IsMediaName reports whether a file name looks like an image or video the
// media viewer can display.
func IsMediaName(name string) bool {
	return mediaName.MatchString(name)
}

// UIState is the per-user open/collapsed state of the notes view.
type UIState struct {
	OpenNoteIDs []string `json:"openNoteIds"`
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

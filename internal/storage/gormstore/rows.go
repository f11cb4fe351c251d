package gormstore

import (
	"time"

	"organizer/internal/models"
)

// Row types keep gorm tags out of the domain model. Seq columns preserve
// insertion order.

type userRow struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	DarkMode     bool
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

func (r userRow) model() models.User {
	return models.User{
		ID:          r.ID,
		Email:       r.Email,
		Name:        r.Name,
		Preferences: models.Preferences{DarkMode: r.DarkMode},
		CreatedAt:   r.CreatedAt,
	}
}

type taskRow struct {
	Seq       uint   `gorm:"primaryKey;autoIncrement"`
	ID        string `gorm:"uniqueIndex;not null"`
	UserID    string `gorm:"index;not null"`
	Text      string `gorm:"not null"`
	Date      string `gorm:"not null"`
	Frequency string `gorm:"not null"`
	EndDate   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (taskRow) TableName() string { return "tasks" }

func (r taskRow) model() models.Task {
	return models.Task{
		ID:        r.ID,
		UserID:    r.UserID,
		Text:      r.Text,
		Date:      r.Date,
		Frequency: models.Frequency(r.Frequency),
		EndDate:   r.EndDate,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type noteRow struct {
	Seq       uint   `gorm:"primaryKey;autoIncrement"`
	ID        string `gorm:"uniqueIndex;not null"`
	UserID    string `gorm:"index;not null"`
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (noteRow) TableName() string { return "notes" }

func (r noteRow) model() models.Note {
	return models.Note{ID: r.ID, UserID: r.UserID, Content: r.Content, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

type fileRow struct {
	Seq         uint   `gorm:"primaryKey;autoIncrement"`
	ID          string `gorm:"uniqueIndex;not null"`
	UserID      string `gorm:"index:idx_files_user_parent;not null"`
	ParentID    string `gorm:"index:idx_files_user_parent"`
	Name        string `gorm:"not null"`
	Kind        string `gorm:"not null"`
	Date        string
	ContentType string
	Size        int64
	URL         string
	CreatedAt   time.Time
}

func (fileRow) TableName() string { return "files" }

func (r fileRow) model() models.FileItem {
	kind := models.FileKind(r.Kind)
	return models.FileItem{
		ID:          r.ID,
		UserID:      r.UserID,
		Name:        r.Name,
		Kind:        kind,
		ParentID:    r.ParentID,
		Date:        r.Date,
		ContentType: r.ContentType,
		Size:        r.Size,
		URL:         r.URL,
		Media:       kind == models.KindFile && models.IsMediaName(r.Name),
		CreatedAt:   r.CreatedAt,
	}
}

type uiStateRow struct {
	UserID      string `gorm:"primaryKey"`
	OpenNoteIDs string `gorm:"not null"`
}

func (uiStateRow) TableName() string { return "ui_state" }

type revokedTokenRow struct {
	TokenID   string `gorm:"primaryKey"`
	ExpiresAt int64  `gorm:"index;not null"`
}

func (revokedTokenRow) TableName() string { return "revoked_tokens" }

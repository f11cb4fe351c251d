// Package service holds the application rules that sit between the HTTP
// handlers and the stores: input validation, calendar views, exports and the
// cascades that span more than one store.
package service

import (
	"context"
	"fmt"
	"strings"

	"organizer/internal/models"
	"organizer/internal/recurrence"
	"organizer/internal/storage"
)

// Tasks validates task templates before they reach the store.
type Tasks struct {
	store   storage.TaskStore
	maxDays int
}

// NewTasks builds the task service. Spans longer than the expander's limit
// are rejected so stored tasks can always be expanded.
func NewTasks(store storage.TaskStore, expander recurrence.Expander) *Tasks {
	return &Tasks{store: store, maxDays: expander.Limit()}
}

// NormalizeTaskInput trims and validates a task. A blank frequency means
// once, and a once task never keeps an end date. A recurring span may cover
// at most maxDays days; zero means recurrence.DefaultMaxDays.
func NormalizeTaskInput(in models.TaskInput, maxDays int) (models.TaskInput, error) {
	in.Text = strings.TrimSpace(in.Text)
	in.Date = strings.TrimSpace(in.Date)
	in.EndDate = strings.TrimSpace(in.EndDate)
	in.Frequency = models.Frequency(strings.ToLower(strings.TrimSpace(string(in.Frequency))))

	if in.Text == "" {
		return in, fmt.Errorf("text is required: %w", models.ErrValidation)
	}
	if in.Frequency == "" {
		in.Frequency = models.FrequencyOnce
	}
	if _, ok := models.ValidFrequencies[in.Frequency]; !ok {
		return in, fmt.Errorf("unknown frequency %q: %w", in.Frequency, models.ErrValidation)
	}
	anchor, err := recurrence.ParseDate(in.Date)
	if err != nil {
		return in, fmt.Errorf("date: %w: %w", models.ErrValidation, err)
	}
	if !in.Frequency.Recurring() {
		in.EndDate = ""
		return in, nil
	}
	if in.EndDate == "" {
		return in, nil
	}
	end, err := recurrence.ParseDate(in.EndDate)
	if err != nil {
		return in, fmt.Errorf("endDate: %w: %w", models.ErrValidation, err)
	}
	if end.Before(anchor) {
		return in, fmt.Errorf("endDate before date: %w", models.ErrValidation)
	}
	limit := recurrence.Expander{MaxDays: maxDays}.Limit()
	if span := recurrence.SpanDays(anchor, end); span > limit {
		return in, fmt.Errorf("task covers %d days, limit %d: %w", span, limit, models.ErrValidation)
	}
	return in, nil
}

// List returns the owner's templates in insertion order.
func (s *Tasks) List(ctx context.Context, ownerID string) ([]models.Task, error) {
	return s.store.ListTasks(ctx, ownerID)
}

// Get returns one template owned by ownerID.
func (s *Tasks) Get(ctx context.Context, ownerID, id string) (models.Task, error) {
	return s.store.GetTask(ctx, id, ownerID)
}

// Create validates in and stores a new template.
func (s *Tasks) Create(ctx context.Context, ownerID string, in models.TaskInput) (models.Task, error) {
	in, err := NormalizeTaskInput(in, s.maxDays)
	if err != nil {
		return models.Task{}, err
	}
	return s.store.CreateTask(ctx, ownerID, in)
}

// Update replaces every editable field; the id is unchanged.
func (s *Tasks) Update(ctx context.Context, ownerID, id string, in models.TaskInput) (models.Task, error) {
	if strings.TrimSpace(id) == "" {
		return models.Task{}, fmt.Errorf("id is required: %w", models.ErrValidation)
	}
	in, err := NormalizeTaskInput(in, s.maxDays)
	if err != nil {
		return models.Task{}, err
	}
	return s.store.UpdateTask(ctx, id, ownerID, in)
}

// Delete removes the template, and with it every occurrence it produced.
func (s *Tasks) Delete(ctx context.Context, ownerID, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("id is required: %w", models.ErrValidation)
	}
	return s.store.DeleteTask(ctx, id, ownerID)
}

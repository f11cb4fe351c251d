package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"organizer/internal/models"
)

const taskColumns = `id, user_id, text, date, frequency, end_date, created_at, updated_at`

func scanTask(row scanner) (models.Task, error) {
	var t models.Task
	var freq string
	if err := row.Scan(&t.ID, &t.UserID, &t.Text, &t.Date, &freq, &t.EndDate, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return models.Task{}, err
	}
	t.Frequency = models.Frequency(freq)
	return t, nil
}

// ListTasks returns the owner's tasks in insertion order.
func (s *Store) ListTasks(ctx context.Context, ownerID string) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY seq`, ownerID)
	if err != nil {
		return nil, wrapErr("list tasks", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetTask retrieves a task by id within the owner's scope.
func (s *Store) GetTask(ctx context.Context, id, ownerID string) (models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, id, ownerID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Task{}, wrapErr("get task", err)
	}
	return t, nil
}

// CreateTask inserts a new task for the owner.
func (s *Store) CreateTask(ctx context.Context, ownerID string, in models.TaskInput) (models.Task, error) {
	id := models.NewID()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks(id, user_id, text, date, frequency, end_date, created_at, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?)`, id, ownerID, in.Text, in.Date, string(in.Frequency), in.EndDate, now, now)
	if err != nil {
		return models.Task{}, wrapErr("insert task", err)
	}
	return s.GetTask(ctx, id, ownerID)
}

// UpdateTask replaces every editable field of an owned task.
func (s *Store) UpdateTask(ctx context.Context, id, ownerID string, in models.TaskInput) (models.Task, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET text = ?, date = ?, frequency = ?, end_date = ?, updated_at = ?
        WHERE id = ? AND user_id = ?`, in.Text, in.Date, string(in.Frequency), in.EndDate, time.Now().UTC(), id, ownerID)
	if err != nil {
		return models.Task{}, wrapErr("update task", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Task{}, err
	}
	if affected == 0 {
		return models.Task{}, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	return s.GetTask(ctx, id, ownerID)
}

// DeleteTask removes an owned task.
func (s *Store) DeleteTask(ctx context.Context, id, ownerID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return wrapErr("delete task", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	return nil
}

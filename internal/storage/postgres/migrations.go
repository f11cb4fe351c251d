package postgres

import (
	_ "embed"
	"fmt"
)

//go:embed migrations/01_create_users.up.sql
var createUsersUp string

//go:embed migrations/02_create_tasks.up.sql
var createTasksUp string

//go:embed migrations/03_create_workspace.up.sql
var createWorkspaceUp string

// Migrate applies the schema. Every statement is idempotent.
func (db *DB) Migrate() error {
	db.log.Debug("running postgres migrations")

	steps := []struct {
		name string
		sql  string
	}{
		{"users", createUsersUp},
		{"tasks", createTasksUp},
		{"workspace", createWorkspaceUp},
	}
	for _, step := range steps {
		if _, err := db.conn.Exec(step.sql); err != nil {
			return fmt.Errorf("apply %s migration: %w", step.name, err)
		}
	}

	db.log.Debug("postgres migrations finished")
	return nil
}

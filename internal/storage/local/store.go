// Package local keeps all application state in named JSON slots on disk.
//
// Each slot is one file under <dir>/state holding an envelope
// {"version": N, "data": ...}. Slots written by the legacy single-user client
// (bare JSON arrays, numeric ids) are migrated on load. Records that fail
// validation are repaired or dropped, and the slot is rewritten so the repair
// happens once.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"organizer/internal/models"
)

// SchemaVersion is the envelope version written by this package.
const SchemaVersion = 1

// Slot names. notes, myFiles and openNoteIds match the legacy client keys.
const (
	slotUsers   = "users"
	slotTasks   = "tasks"
	slotNotes   = "notes"
	slotFiles   = "myFiles"
	slotUI      = "openNoteIds"
	slotRevoked = "revokedTokens"
)

// Options tune loading of legacy slots.
type Options struct {
	// LegacyOwnerID receives records from v0 slots, which carry no owner.
	// When empty those records are dropped.
	LegacyOwnerID string
	Logger        *slog.Logger
}

type envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

type userRecord struct {
	models.User
	PasswordHash string `json:"passwordHash"`
}

type state struct {
	users   []userRecord
	tasks   []models.Task
	notes   []models.Note
	files   []models.FileItem
	ui      map[string][]string
	revoked map[string]time.Time
}

// Store implements storage.Store on JSON slot files.
type Store struct {
	mu     sync.RWMutex
	dir    string
	opts   Options
	logger *slog.Logger
	s      state
}

// Open loads every slot under dataDir/state, migrating and repairing as needed.
func Open(dataDir string, opts Options) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("empty data dir")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	dir := filepath.Join(dataDir, "state")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	st := &Store{dir: dir, opts: opts, logger: logger}
	if err := st.load(); err != nil {
		return nil, err
	}
	return st, nil
}

// Close is a no-op; every mutation is flushed before it returns.
func (st *Store) Close() error { return nil }

// Ping checks that the state directory is still present and writable.
func (st *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(st.dir)
	if err != nil {
		return fmt.Errorf("stat state dir: %w: %w", models.ErrUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("state dir %s: %w", st.dir, models.ErrUnavailable)
	}
	return nil
}

func (st *Store) slotPath(name string) string {
	return filepath.Join(st.dir, name+".json")
}

// readSlot returns the payload of a slot and its version. A missing slot
// reads as (nil, SchemaVersion).
func (st *Store) readSlot(name string) (json.RawMessage, int, error) {
	b, err := os.ReadFile(st.slotPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, SchemaVersion, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read slot %s: %w: %w", name, models.ErrUnavailable, err)
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, SchemaVersion, nil
	}
	if !json.Valid(b) {
		return nil, 0, fmt.Errorf("slot %s: %w: invalid json", name, models.ErrCorruptState)
	}
	if b[0] == '[' {
		return json.RawMessage(b), 0, nil
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, 0, fmt.Errorf("slot %s: %w: %w", name, models.ErrCorruptState, err)
	}
	if env.Version < 1 || env.Version > SchemaVersion {
		return nil, 0, fmt.Errorf("slot %s: %w: unsupported version %d", name, models.ErrCorruptState, env.Version)
	}
	return env.Data, env.Version, nil
}

// createTemp is swapped in tests to simulate a full disk.
var createTemp = os.CreateTemp

// stageSlot writes the envelope of a slot to a temp file next to it and
// returns its path. The slot itself is untouched until the file is renamed.
func (st *Store) stageSlot(name string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode slot %s: %w", name, err)
	}
	b, err := json.MarshalIndent(envelope{Version: SchemaVersion, Data: payload}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode slot %s: %w", name, err)
	}
	tmp, err := createTemp(st.dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("write slot %s: %w: %w", name, models.ErrUnavailable, err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write slot %s: %w: %w", name, models.ErrUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write slot %s: %w: %w", name, models.ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write slot %s: %w: %w", name, models.ErrUnavailable, err)
	}
	return tmp.Name(), nil
}

// persisted maps slot names to their on-disk value.
func (st *Store) persisted(name string) any {
	switch name {
	case slotUsers:
		return st.s.users
	case slotTasks:
		return st.s.tasks
	case slotNotes:
		return st.s.notes
	case slotFiles:
		return st.s.files
	case slotUI:
		return st.s.ui
	case slotRevoked:
		return st.s.revoked
	}
	panic("unknown slot " + name)
}

// saveLocked flushes the named slots. Every slot is staged before any is
// renamed into place, so a failed write leaves all of them as they were.
// Only a failing rename, after staging succeeded, can leave the slots out of
// step. Callers hold st.mu.
func (st *Store) saveLocked(names ...string) error {
	staged := make([]string, 0, len(names))
	for _, name := range names {
		tmp, err := st.stageSlot(name, st.persisted(name))
		if err != nil {
			for _, p := range staged {
				_ = os.Remove(p)
			}
			return err
		}
		staged = append(staged, tmp)
	}
	for i, name := range names {
		if err := os.Rename(staged[i], st.slotPath(name)); err != nil {
			for _, p := range staged[i:] {
				_ = os.Remove(p)
			}
			return fmt.Errorf("write slot %s: %w: %w", name, models.ErrUnavailable, err)
		}
	}
	return nil
}

// mutate applies fn to a copy of the state and commits it only after every
// touched slot was written.
func (st *Store) mutate(ctx context.Context, fn func(s *state) ([]string, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	prev := st.s
	next := prev.clone()
	touched, err := fn(&next)
	if err != nil {
		return err
	}
	st.s = next
	if err := st.saveLocked(touched...); err != nil {
		st.s = prev
		return err
	}
	return nil
}

func (s state) clone() state {
	c := state{
		users:   append([]userRecord(nil), s.users...),
		tasks:   append([]models.Task(nil), s.tasks...),
		notes:   append([]models.Note(nil), s.notes...),
		files:   append([]models.FileItem(nil), s.files...),
		ui:      make(map[string][]string, len(s.ui)),
		revoked: make(map[string]time.Time, len(s.revoked)),
	}
	for k, v := range s.ui {
		c.ui[k] = append([]string(nil), v...)
	}
	for k, v := range s.revoked {
		c.revoked[k] = v
	}
	return c
}

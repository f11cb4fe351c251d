// Package blob stores uploaded file contents on the local filesystem.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"organizer/internal/models"
)

// Store keeps one file per blob under dir/<owner>/<id>.
type Store struct {
	dir string
}

// Open prepares the blob directory.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty blob dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func validKey(part string) bool {
	return part != "" && part != "." && part != ".." && !strings.ContainsAny(part, `/\`)
}

func (s *Store) path(owner, id string) (string, error) {
	if !validKey(owner) || !validKey(id) {
		return "", fmt.Errorf("blob key %q/%q: %w", owner, id, models.ErrValidation)
	}
	return filepath.Join(s.dir, owner, id), nil
}

// Put writes r to the blob and returns the number of bytes stored. A partial
// write leaves no blob behind.
func (s *Store) Put(ctx context.Context, owner, id string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p, err := s.path(owner, id)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return 0, fmt.Errorf("create blob dir: %w: %w", models.ErrUnavailable, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), id+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create blob: %w: %w", models.ErrUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return 0, fmt.Errorf("commit blob: %w: %w", models.ErrUnavailable, err)
	}
	return n, nil
}

// Open returns a reader over a stored blob. The caller closes it.
func (s *Store) Open(owner, id string) (*os.File, error) {
	p, err := s.path(owner, id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Delete removes a blob. Missing blobs are not an error.
func (s *Store) Delete(owner, id string) error {
	p, err := s.path(owner, id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// DeleteOwner removes every blob of an owner.
func (s *Store) DeleteOwner(owner string) error {
	if !validKey(owner) {
		return fmt.Errorf("blob owner %q: %w", owner, models.ErrValidation)
	}
	if err := os.RemoveAll(filepath.Join(s.dir, owner)); err != nil {
		return fmt.Errorf("delete owner blobs: %w", err)
	}
	return nil
}

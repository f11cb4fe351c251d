package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"organizer/internal/models"
)

func TestPutOpenDelete(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	n, err := s.Put(ctx, "u1", "f1", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	f, err := s.Open("u1", "f1")
	require.NoError(t, err)
	body, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	_, err = s.Open("u2", "f1")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	require.NoError(t, s.Delete("u1", "f1"))
	require.NoError(t, s.Delete("u1", "f1"))
	_, err = s.Open("u1", "f1")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestRejectsPathTraversal(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", ".", "..", "../x", `a\b`} {
		_, err := s.Put(context.Background(), "u1", key, strings.NewReader("x"))
		assert.True(t, errors.Is(err, models.ErrValidation), "key %q", key)
	}
}

func TestDeleteOwner(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	_, err = s.Put(ctx, "u1", "a", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = s.Put(ctx, "u2", "b", strings.NewReader("b"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteOwner("u1"))
	_, err = s.Open("u1", "a")
	assert.True(t, errors.Is(err, models.ErrNotFound))
	f, err := s.Open("u2", "b")
	require.NoError(t, err)
	_ = f.Close()
}

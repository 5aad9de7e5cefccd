package user

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.Create(ctx, "alice", "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)

	byID, err := s.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	byName, err := s.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
}

func TestCreateDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Create(ctx, "bob", "", "pw123456")
	require.NoError(t, err)

	_, err = s.Create(ctx, "bob", "", "other")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.Create(ctx, "carol", "", "correct horse")
	require.NoError(t, err)

	u, err := s.Authenticate(ctx, "carol", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)

	_, err = s.Authenticate(ctx, "carol", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Authenticate(ctx, "nobody", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.db")

	s, err := NewStore(path)
	require.NoError(t, err)
	created, err := s.Create(ctx, "dave", "", "pw123456")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	u, err := reopened.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "dave", u.Username)
}

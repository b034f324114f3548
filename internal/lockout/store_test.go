package lockout

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-scan-backend/internal/db"
	"workshop-scan-backend/internal/model"
)

func testStore(t *testing.T) Store {
	t.Helper()
	conn, err := db.OpenLocal(filepath.Join(t.TempDir(), "lockouts.db"), &model.Lockout{})
	require.NoError(t, err)
	return NewStore(conn)
}

func TestCreateAndForBay(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, 3, "cameron")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	found, err := s.ForBay(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "cameron", found.Engineer)

	none, err := s.ForBay(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDuplicateLockoutsAllowed(t *testing.T) {
	// Two holds on one bay are stored as-is; the occupancy snapshot is
	// where the clash becomes visible.
	s := testStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, 3, "cameron")
	require.NoError(t, err)
	_, err = s.Create(ctx, 3, "alex")
	require.NoError(t, err)

	rows, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestClear(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, 5, "cameron")
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx, created.ID))

	found, err := s.ForBay(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, found)

	// Clearing an id that no longer exists is not an error.
	assert.NoError(t, s.Clear(ctx, created.ID))
}

func TestListOrdering(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, bay := range []int64{7, 2, 5} {
		_, err := s.Create(ctx, bay, "cameron")
		require.NoError(t, err)
	}

	rows, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int64{7, 2, 5}, []int64{rows[0].Bay, rows[1].Bay, rows[2].Bay})
}

func TestDisabledStore(t *testing.T) {
	s := NewDisabled()
	ctx := context.Background()

	assert.False(t, s.Enabled())

	created, err := s.Create(ctx, 1, "cameron")
	assert.NoError(t, err)
	assert.Nil(t, created)

	found, err := s.ForBay(ctx, 1)
	assert.NoError(t, err)
	assert.Nil(t, found)

	rows, err := s.List(ctx)
	assert.NoError(t, err)
	assert.Empty(t, rows)

	assert.NoError(t, s.Clear(ctx, 1))
}

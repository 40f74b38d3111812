package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSQLiteEnsureUser(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	u, err := s.EnsureUser(ctx, "3125550100")
	require.NoError(t, err)
	assert.Equal(t, "3125550100", u.PhoneNumber)
	assert.Empty(t, u.FavoriteLines)
	assert.False(t, u.HasHome())

	// Second call is a no-op returning the same user.
	again, err := s.EnsureUser(ctx, "3125550100")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
}

func TestSQLiteUserByPhoneNotFound(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.UserByPhone(context.Background(), "0000000000")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSQLiteHomeAndSettings(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.EnsureUser(ctx, "3125550100")
	require.NoError(t, err)

	require.NoError(t, s.SetHome(ctx, "3125550100", 41.880, -87.630))
	require.NoError(t, s.SetCarrier(ctx, "3125550100", "verizon"))
	require.NoError(t, s.SetNotificationSettings(ctx, "3125550100", `{"threshold_minutes": 10}`))

	u, err := s.UserByPhone(ctx, "3125550100")
	require.NoError(t, err)
	require.True(t, u.HasHome())
	assert.InDelta(t, 41.880, *u.HomeLat, 1e-9)
	assert.InDelta(t, -87.630, *u.HomeLng, 1e-9)
	assert.Equal(t, "verizon", u.Carrier)
	assert.Equal(t, 10, u.ThresholdMinutes())

	assert.ErrorIs(t, s.SetHome(ctx, "nobody", 1, 2), ErrUserNotFound)
}

func TestSQLiteFavorites(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.EnsureUser(ctx, "3125550100")
	require.NoError(t, err)

	favs, err := s.AddFavorite(ctx, "3125550100", "Red")
	require.NoError(t, err)
	assert.Equal(t, []string{"Red"}, favs)

	favs, err = s.AddFavorite(ctx, "3125550100", "22")
	require.NoError(t, err)
	assert.Equal(t, []string{"Red", "22"}, favs)

	_, err = s.AddFavorite(ctx, "3125550100", "Red")
	assert.ErrorIs(t, err, ErrDuplicateFavorite)

	favs, err = s.RemoveFavorite(ctx, "3125550100", "Red")
	require.NoError(t, err)
	assert.Equal(t, []string{"22"}, favs)

	_, err = s.RemoveFavorite(ctx, "3125550100", "Red")
	assert.ErrorIs(t, err, ErrFavoriteNotFound)
}

func TestSQLiteListUsers(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for _, phone := range []string{"3125550100", "3125550101", "3125550102"} {
		_, err := s.EnsureUser(ctx, phone)
		require.NoError(t, err)
	}

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

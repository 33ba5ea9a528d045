package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quillsign/federate/internal/database/testutil"
)

func newTestStore(t *testing.T) *DatabaseStore {
	t.Helper()
	return NewDatabaseStore(testutil.MustOpenTestDB(t))
}

func TestDatabaseStoreSetGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "cache:set-get", []byte("value"), time.Minute))

	value, found, err := store.Get(ctx, "cache:set-get")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("value"), value)

	_, found, err = store.Get(ctx, "cache:missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreSetOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "cache:overwrite", []byte("first"), time.Minute))
	require.NoError(t, store.Set(ctx, "cache:overwrite", []byte("second"), time.Minute))

	value, found, err := store.Get(ctx, "cache:overwrite")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("second"), value)
}

func TestDatabaseStoreGetRespectsExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "cache:expired", []byte("stale"), -time.Second))

	_, found, err := store.Get(ctx, "cache:expired")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreGetDel(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "cache:getdel", []byte("once"), time.Minute))

	value, found, err := store.GetDel(ctx, "cache:getdel")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("once"), value)

	// Consumed: both GetDel and Get must now miss.
	_, found, err = store.GetDel(ctx, "cache:getdel")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = store.Get(ctx, "cache:getdel")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreGetDelExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "cache:getdel-expired", []byte("stale"), -time.Second))

	_, found, err := store.GetDel(ctx, "cache:getdel-expired")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	count, remaining, err := store.IncrementWithTTL(ctx, "cache:counter", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Greater(t, remaining, time.Duration(0))

	count, _, err = store.IncrementWithTTL(ctx, "cache:counter", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestDatabaseStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "cache:del-a", []byte("a"), time.Minute))
	require.NoError(t, store.Set(ctx, "cache:del-b", []byte("b"), time.Minute))

	require.NoError(t, store.Delete(ctx, "cache:del-a", "cache:del-b"))

	_, found, err := store.Get(ctx, "cache:del-a")
	require.NoError(t, err)
	require.False(t, found)
}

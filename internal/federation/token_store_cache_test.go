package federation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quillsign/federate/internal/cache"
	"github.com/quillsign/federate/internal/database/testutil"
)

func newCacheStore(t *testing.T) *CacheTokenStore {
	t.Helper()
	db := testutil.MustOpenTestDB(t)
	return NewCacheTokenStore(cache.NewDatabaseStore(db), time.Minute)
}

func TestCacheTokenStoreIssueAndExchange(t *testing.T) {
	store := newCacheStore(t)
	ctx := context.Background()

	claim := PendingClaim{
		Email:        "alice@cache.example.com",
		Name:         "Alice",
		BusinessID:   "biz_cache",
		BusinessName: "Acme",
		Role:         PartnerRoleManager,
	}

	token, err := store.Issue(ctx, claim)
	require.NoError(t, err)
	require.Regexp(t, hexToken, token)

	got, err := store.Exchange(ctx, token)
	require.NoError(t, err)
	require.Equal(t, claim.Email, got.Email)
	require.Equal(t, claim.BusinessID, got.BusinessID)
	require.Equal(t, claim.BusinessName, got.BusinessName)
	require.Equal(t, claim.Role, got.Role)
}

func TestCacheTokenStoreExchangeIsOneTime(t *testing.T) {
	store := newCacheStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, PendingClaim{Email: "bob@cache.example.com", Name: "Bob"})
	require.NoError(t, err)

	_, err = store.Exchange(ctx, token)
	require.NoError(t, err)

	_, err = store.Exchange(ctx, token)
	require.ErrorIs(t, err, ErrTokenInvalidOrExpired)
}

func TestCacheTokenStoreUnknownAndEmptyToken(t *testing.T) {
	store := newCacheStore(t)
	ctx := context.Background()

	_, err := store.Exchange(ctx, "unknown")
	require.ErrorIs(t, err, ErrTokenInvalidOrExpired)

	_, err = store.Exchange(ctx, "")
	require.ErrorIs(t, err, ErrTokenInvalidOrExpired)
}

func TestCacheTokenStoreNilStore(t *testing.T) {
	require.Nil(t, NewCacheTokenStore(nil, time.Minute))
}

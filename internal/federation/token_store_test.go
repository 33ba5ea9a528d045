package federation

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestMemoryTokenStoreIssueAndExchange(t *testing.T) {
	store := NewMemoryTokenStore()
	ctx := context.Background()

	claim := PendingClaim{
		Email:        "alice@example.com",
		Name:         "Alice",
		BusinessID:   "biz_1",
		BusinessName: "Acme",
		Role:         PartnerRoleAdmin,
	}

	token, err := store.Issue(ctx, claim)
	require.NoError(t, err)
	require.Regexp(t, hexToken, token)
	require.Equal(t, 1, store.Len())

	got, err := store.Exchange(ctx, token)
	require.NoError(t, err)
	require.Equal(t, claim.Email, got.Email)
	require.Equal(t, claim.BusinessID, got.BusinessID)
	require.Equal(t, claim.Role, got.Role)
	require.False(t, got.IssuedAt.IsZero())
	require.Equal(t, 0, store.Len())
}

func TestMemoryTokenStoreExchangeIsOneTime(t *testing.T) {
	store := NewMemoryTokenStore()
	ctx := context.Background()

	token, err := store.Issue(ctx, PendingClaim{Email: "bob@example.com", Name: "Bob"})
	require.NoError(t, err)

	_, err = store.Exchange(ctx, token)
	require.NoError(t, err)

	_, err = store.Exchange(ctx, token)
	require.ErrorIs(t, err, ErrTokenInvalidOrExpired)
}

func TestMemoryTokenStoreUnknownToken(t *testing.T) {
	store := NewMemoryTokenStore()

	_, err := store.Exchange(context.Background(), "deadbeef")
	require.ErrorIs(t, err, ErrTokenInvalidOrExpired)
}

func TestMemoryTokenStoreExpiry(t *testing.T) {
	current := time.Now()
	store := NewMemoryTokenStore(
		WithTokenTTL(5*time.Minute),
		WithClock(func() time.Time { return current }),
	)
	ctx := context.Background()

	token, err := store.Issue(ctx, PendingClaim{Email: "carol@example.com", Name: "Carol"})
	require.NoError(t, err)

	current = current.Add(5*time.Minute + time.Second)

	_, err = store.Exchange(ctx, token)
	require.ErrorIs(t, err, ErrTokenInvalidOrExpired)
	require.Equal(t, 0, store.Len(), "stale entry should be removed on exchange")
}

func TestMemoryTokenStoreConcurrentExchange(t *testing.T) {
	store := NewMemoryTokenStore()
	ctx := context.Background()

	token, err := store.Issue(ctx, PendingClaim{Email: "dave@example.com", Name: "Dave"})
	require.NoError(t, err)

	const workers = 32

	var (
		wg        sync.WaitGroup
		successes atomic.Int64
	)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := store.Exchange(ctx, token); err == nil {
				successes.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	require.Equal(t, int64(1), successes.Load(), "exactly one concurrent exchange may succeed")
}

func TestMemoryTokenStoreSweep(t *testing.T) {
	current := time.Now()
	store := NewMemoryTokenStore(
		WithTokenTTL(time.Minute),
		WithClock(func() time.Time { return current }),
	)
	ctx := context.Background()

	_, err := store.Issue(ctx, PendingClaim{Email: "old@example.com", Name: "Old"})
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)

	fresh, err := store.Issue(ctx, PendingClaim{Email: "new@example.com", Name: "New"})
	require.NoError(t, err)

	require.Equal(t, 1, store.Sweep())
	require.Equal(t, 1, store.Len())

	_, err = store.Exchange(ctx, fresh)
	require.NoError(t, err)
}

func TestMemoryTokenStoreTokensAreUnique(t *testing.T) {
	store := NewMemoryTokenStore()
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		token, err := store.Issue(ctx, PendingClaim{Email: "eve@example.com", Name: "Eve"})
		require.NoError(t, err)
		_, dup := seen[token]
		require.False(t, dup)
		seen[token] = struct{}{}
	}
}

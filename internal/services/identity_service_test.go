package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quillsign/federate/internal/database/testutil"
	"github.com/quillsign/federate/internal/models"
)

func newIdentityService(t *testing.T) *IdentityService {
	t.Helper()
	svc, err := NewIdentityService(testutil.MustOpenTestDB(t))
	require.NoError(t, err)
	return svc
}

func TestCanonicalEmail(t *testing.T) {
	require.Equal(t, "alice@example.com", CanonicalEmail("  Alice@Example.COM "))
	require.Equal(t, "", CanonicalEmail("   "))
}

func TestIdentityServiceResolveCreates(t *testing.T) {
	svc := newIdentityService(t)
	ctx := context.Background()

	user, err := svc.Resolve(ctx, "New.User@Example.com", "New User")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, "new.user@example.com", user.Email)
	require.Equal(t, "New User", user.Name)
	require.Equal(t, models.IdentitySourceExternal, user.IdentitySource)
	require.NotNil(t, user.EmailVerifiedAt, "federated users arrive pre-verified")
	require.True(t, user.IsActive)
}

func TestIdentityServiceResolveIsIdempotent(t *testing.T) {
	svc := newIdentityService(t)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, "repeat@example.com", "Repeat")
	require.NoError(t, err)

	second, err := svc.Resolve(ctx, "REPEAT@example.com", "Repeat")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestIdentityServiceResolveUpdatesName(t *testing.T) {
	svc := newIdentityService(t)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, "rename@example.com", "Old Name")
	require.NoError(t, err)

	second, err := svc.Resolve(ctx, "rename@example.com", "New Name")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "New Name", second.Name)
}

func TestIdentityServiceResolveRequiresEmail(t *testing.T) {
	svc := newIdentityService(t)

	_, err := svc.Resolve(context.Background(), "   ", "Anyone")
	require.Error(t, err)
}

func TestIdentityServiceGetByEmail(t *testing.T) {
	svc := newIdentityService(t)
	ctx := context.Background()

	_, err := svc.GetByEmail(ctx, "missing@example.com")
	require.ErrorIs(t, err, ErrUserNotFound)

	created, err := svc.Resolve(ctx, "lookup@example.com", "Lookup")
	require.NoError(t, err)

	found, err := svc.GetByEmail(ctx, "Lookup@Example.com")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)
}

func TestIdentityServiceTouchLogin(t *testing.T) {
	svc := newIdentityService(t)
	ctx := context.Background()

	user, err := svc.Resolve(ctx, "login@example.com", "Login")
	require.NoError(t, err)
	require.Nil(t, user.LastLoginAt)

	require.NoError(t, svc.TouchLogin(ctx, user.ID))

	refreshed, err := svc.GetByEmail(ctx, "login@example.com")
	require.NoError(t, err)
	require.NotNil(t, refreshed.LastLoginAt)
}

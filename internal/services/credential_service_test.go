package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quillsign/federate/internal/federation"
	"github.com/quillsign/federate/pkg/crypto"
)

func TestCredentialName(t *testing.T) {
	require.Equal(t, "partner-api-org-1", CredentialName("org-1"))
}

func TestEnsureForTeamMints(t *testing.T) {
	f := newProvisioningFixture(t)
	ctx := context.Background()

	user := f.user(t, "minter@cred-mint.example.com", "Minter")
	org, team, err := f.provisioning.Provision(ctx, user, "cred-mint", "Mint Inc", federation.PartnerRoleAdmin)
	require.NoError(t, err)

	creds, err := NewCredentialService(f.db)
	require.NoError(t, err)

	result, err := creds.EnsureForTeam(ctx, team, user.ID)
	require.NoError(t, err)
	require.True(t, result.Created)
	require.True(t, strings.HasPrefix(result.Plaintext, "qsf_"))
	require.Equal(t, CredentialName(org.ID), result.Credential.Name)
	require.Equal(t, user.ID, result.Credential.OwnerUserID)

	// Only the bcrypt hash is persisted.
	require.NotEqual(t, result.Plaintext, result.Credential.SecretHash)
	require.True(t, crypto.VerifySecret(result.Credential.SecretHash, result.Plaintext))
}

func TestEnsureForTeamIsIdempotent(t *testing.T) {
	f := newProvisioningFixture(t)
	ctx := context.Background()

	user := f.user(t, "repeat@cred-idem.example.com", "Repeat")
	_, team, err := f.provisioning.Provision(ctx, user, "cred-idem", "Idem Inc", federation.PartnerRoleAdmin)
	require.NoError(t, err)

	creds, err := NewCredentialService(f.db)
	require.NoError(t, err)

	first, err := creds.EnsureForTeam(ctx, team, user.ID)
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := creds.EnsureForTeam(ctx, team, user.ID)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Empty(t, second.Plaintext, "plaintext is only revealed at mint time")
	require.Equal(t, first.Credential.ID, second.Credential.ID)
}

func TestEnsureForTeamRequiresTeam(t *testing.T) {
	creds, err := NewCredentialService(newProvisioningFixture(t).db)
	require.NoError(t, err)

	_, err = creds.EnsureForTeam(context.Background(), nil, "owner")
	require.Error(t, err)
}

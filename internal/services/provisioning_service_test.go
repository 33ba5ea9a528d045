package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quillsign/federate/internal/database/testutil"
	"github.com/quillsign/federate/internal/federation"
	"github.com/quillsign/federate/internal/models"
)

type provisioningFixture struct {
	db           *gorm.DB
	identity     *IdentityService
	provisioning *ProvisioningService
}

func newProvisioningFixture(t *testing.T) *provisioningFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	identity, err := NewIdentityService(db)
	require.NoError(t, err)

	provisioning, err := NewProvisioningService(db)
	require.NoError(t, err)

	return &provisioningFixture{db: db, identity: identity, provisioning: provisioning}
}

func (f *provisioningFixture) user(t *testing.T, email, name string) *models.User {
	t.Helper()
	user, err := f.identity.Resolve(context.Background(), email, name)
	require.NoError(t, err)
	return user
}

func TestProvisionCreatesTenant(t *testing.T) {
	f := newProvisioningFixture(t)
	ctx := context.Background()
	user := f.user(t, "founder@tenant-create.example.com", "Founder")

	org, team, err := f.provisioning.Provision(ctx, user, "Tenant Create", "Tenant Create Inc", federation.PartnerRoleAdmin)
	require.NoError(t, err)
	require.Equal(t, "yc-tenant-create", org.Slug)
	require.Equal(t, "Tenant Create Inc", org.Name)
	require.Equal(t, org.ID, team.OrganizationID)
	require.Equal(t, "Tenant Create Inc", team.Name)

	var groups []models.RoleGroup
	require.NoError(t, f.db.Find(&groups, "organization_id = ?", org.ID).Error)
	require.Len(t, groups, 3)

	var membership models.Membership
	require.NoError(t, f.db.Take(&membership, "user_id = ? AND organization_id = ?", user.ID, org.ID).Error)

	var group models.RoleGroup
	require.NoError(t, f.db.Take(&group, "id = ?", membership.RoleGroupID).Error)
	require.Equal(t, models.RoleGroupKindAdmin, group.Kind)
}

func TestProvisionFallsBackToBusinessIDName(t *testing.T) {
	f := newProvisioningFixture(t)
	user := f.user(t, "noname@tenant-name.example.com", "No Name")

	org, _, err := f.provisioning.Provision(context.Background(), user, "tenant-name", "", "")
	require.NoError(t, err)
	require.Equal(t, "tenant-name", org.Name)
}

func TestProvisionIsIdempotent(t *testing.T) {
	f := newProvisioningFixture(t)
	ctx := context.Background()
	user := f.user(t, "member@tenant-idem.example.com", "Member")

	first, firstTeam, err := f.provisioning.Provision(ctx, user, "tenant-idem", "Idem Inc", federation.PartnerRoleMember)
	require.NoError(t, err)

	second, secondTeam, err := f.provisioning.Provision(ctx, user, "tenant-idem", "Idem Inc", federation.PartnerRoleMember)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, firstTeam.ID, secondTeam.ID)

	var count int64
	require.NoError(t, f.db.Model(&models.Membership{}).
		Where("user_id = ? AND organization_id = ?", user.ID, first.ID).
		Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestProvisionKeepsExistingRole(t *testing.T) {
	f := newProvisioningFixture(t)
	ctx := context.Background()
	user := f.user(t, "stable@tenant-role.example.com", "Stable")

	org, _, err := f.provisioning.Provision(ctx, user, "tenant-role", "Role Inc", federation.PartnerRoleAdmin)
	require.NoError(t, err)

	// A later call with a different role must not change the membership.
	_, _, err = f.provisioning.Provision(ctx, user, "tenant-role", "Role Inc", federation.PartnerRoleMember)
	require.NoError(t, err)

	var membership models.Membership
	require.NoError(t, f.db.Take(&membership, "user_id = ? AND organization_id = ?", user.ID, org.ID).Error)

	var group models.RoleGroup
	require.NoError(t, f.db.Take(&group, "id = ?", membership.RoleGroupID).Error)
	require.Equal(t, models.RoleGroupKindAdmin, group.Kind)
}

func TestProvisionUnknownRoleSkipsMembership(t *testing.T) {
	f := newProvisioningFixture(t)
	ctx := context.Background()
	user := f.user(t, "ghost@tenant-skip.example.com", "Ghost")

	org, team, err := f.provisioning.Provision(ctx, user, "tenant-skip", "Skip Inc", "OWNER")
	require.NoError(t, err)
	require.NotNil(t, org)
	require.NotNil(t, team)

	var count int64
	require.NoError(t, f.db.Model(&models.Membership{}).
		Where("user_id = ? AND organization_id = ?", user.ID, org.ID).
		Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestProvisionConcurrentFirstContact(t *testing.T) {
	f := newProvisioningFixture(t)
	ctx := context.Background()

	userA := f.user(t, "a@tenant-race.example.com", "A")
	userB := f.user(t, "b@tenant-race.example.com", "B")

	var (
		wg   sync.WaitGroup
		orgs [2]*models.Organization
		errs [2]error
	)
	start := make(chan struct{})

	for i, user := range []*models.User{userA, userB} {
		wg.Add(1)
		go func(i int, user *models.User) {
			defer wg.Done()
			<-start
			orgs[i], _, errs[i] = f.provisioning.Provision(ctx, user, "tenant-race", "Race Inc", federation.PartnerRoleMember)
		}(i, user)
	}

	close(start)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, orgs[0].ID, orgs[1].ID, "both racers must land on one organisation")

	var orgCount int64
	require.NoError(t, f.db.Model(&models.Organization{}).
		Where("slug = ?", "yc-tenant-race").
		Count(&orgCount).Error)
	require.EqualValues(t, 1, orgCount)
}

func TestRemoveMember(t *testing.T) {
	f := newProvisioningFixture(t)
	ctx := context.Background()
	user := f.user(t, "leaver@tenant-remove.example.com", "Leaver")

	_, _, err := f.provisioning.Provision(ctx, user, "tenant-remove", "Remove Inc", federation.PartnerRoleMember)
	require.NoError(t, err)

	message, err := f.provisioning.RemoveMember(ctx, "leaver@tenant-remove.example.com", "tenant-remove")
	require.NoError(t, err)
	require.Equal(t, "Member removed", message)

	// Second removal finds nothing; still not an error.
	message, err = f.provisioning.RemoveMember(ctx, "leaver@tenant-remove.example.com", "tenant-remove")
	require.NoError(t, err)
	require.Equal(t, "Membership not found", message)
}

func TestRemoveMemberAbsentTargets(t *testing.T) {
	f := newProvisioningFixture(t)
	ctx := context.Background()

	message, err := f.provisioning.RemoveMember(ctx, "nobody@tenant-absent.example.com", "tenant-absent")
	require.NoError(t, err)
	require.Equal(t, "User not found", message)

	f.user(t, "somebody@tenant-absent.example.com", "Somebody")

	message, err = f.provisioning.RemoveMember(ctx, "somebody@tenant-absent.example.com", "tenant-absent")
	require.NoError(t, err)
	require.Equal(t, "Organization not found", message)
}

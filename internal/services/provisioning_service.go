package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quillsign/federate/internal/federation"
	"github.com/quillsign/federate/internal/models"
	"github.com/quillsign/federate/pkg/logger"
	"github.com/quillsign/federate/pkg/metrics"
)

// ErrOrganizationNotFound indicates the requested organisation does not exist.
var ErrOrganizationNotFound = errors.New("provisioning service: organization not found")

// ProvisioningService find-or-creates tenants (organisation, role groups,
// default team) and joins federated users to them. Every operation is
// idempotent: repeated calls with the same inputs converge on the same rows.
type ProvisioningService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewProvisioningService constructs a ProvisioningService instance.
func NewProvisioningService(db *gorm.DB) (*ProvisioningService, error) {
	if db == nil {
		return nil, errors.New("provisioning service: db is required")
	}
	return &ProvisioningService{
		db:  db,
		log: logger.WithModule("provisioning"),
	}, nil
}

// Provision resolves the tenant for a partner business and ensures the user
// is a member. It returns the organisation and its canonical (oldest) team.
//
// A concurrent first-time call for the same business id loses the slug
// uniqueness race; the loser re-reads and proceeds as if the organisation
// already existed.
func (s *ProvisioningService) Provision(ctx context.Context, user *models.User, businessID, businessName, partnerRole string) (*models.Organization, *models.Team, error) {
	ctx = ensureContext(ctx)

	if user == nil || user.ID == "" {
		return nil, nil, errors.New("provisioning service: user is required")
	}
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, nil, errors.New("provisioning service: business id is required")
	}
	if partnerRole == "" {
		partnerRole = federation.DefaultPartnerRole
	}

	slug := federation.TenantSlug(businessID)

	org, err := s.findOrganization(ctx, slug)
	switch {
	case errors.Is(err, ErrOrganizationNotFound):
		org, err = s.createOrganization(ctx, slug, businessID, businessName)
		if err != nil {
			return nil, nil, err
		}
	case err != nil:
		return nil, nil, err
	default:
		metrics.Provisionings.WithLabelValues("existing").Inc()
	}

	if err := s.ensureMembership(ctx, user, org, partnerRole); err != nil {
		return nil, nil, err
	}

	team, err := s.canonicalTeam(ctx, org)
	if err != nil {
		return nil, nil, err
	}

	return org, team, nil
}

func (s *ProvisioningService) findOrganization(ctx context.Context, slug string) (*models.Organization, error) {
	var org models.Organization
	err := s.db.WithContext(ctx).
		Preload("RoleGroups").
		Take(&org, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("provisioning service: find organization: %w", err)
	}
	return &org, nil
}

// createOrganization creates the organisation, its role groups, and its
// default team in one transaction. Losing the slug race is not an error.
func (s *ProvisioningService) createOrganization(ctx context.Context, slug, businessID, businessName string) (*models.Organization, error) {
	name := strings.TrimSpace(businessName)
	if name == "" {
		name = businessID
	}

	org := &models.Organization{
		Slug: slug,
		Name: name,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			return err
		}

		groups := []models.RoleGroup{
			{OrganizationID: org.ID, Kind: models.RoleGroupKindAdmin, Name: "Administrators"},
			{OrganizationID: org.ID, Kind: models.RoleGroupKindManager, Name: "Managers"},
			{OrganizationID: org.ID, Kind: models.RoleGroupKindMember, Name: "Members"},
		}
		if err := tx.Create(&groups).Error; err != nil {
			return err
		}
		org.RoleGroups = groups

		team := models.Team{
			OrganizationID: org.ID,
			Name:           name,
		}
		if err := tx.Create(&team).Error; err != nil {
			return err
		}
		org.Teams = []models.Team{team}

		return nil
	})
	if err == nil {
		metrics.Provisionings.WithLabelValues("created").Inc()
		return org, nil
	}

	if isUniqueConstraintError(err) {
		existing, readErr := s.findOrganization(ctx, slug)
		if readErr != nil {
			return nil, fmt.Errorf("provisioning service: re-read after slug conflict: %w", readErr)
		}
		metrics.Provisionings.WithLabelValues("conflict_recovered").Inc()
		s.log.Info("recovered from concurrent organization creation",
			zap.String("slug", slug),
			zap.String("organization_id", existing.ID),
		)
		return existing, nil
	}

	return nil, fmt.Errorf("provisioning service: create organization: %w", err)
}

// ensureMembership joins the user to the organisation unless a membership
// already exists. A missing role group is logged and skipped rather than
// failing the call.
func (s *ProvisioningService) ensureMembership(ctx context.Context, user *models.User, org *models.Organization, partnerRole string) error {
	var existing models.Membership
	err := s.db.WithContext(ctx).
		Take(&existing, "user_id = ? AND organization_id = ?", user.ID, org.ID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("provisioning service: find membership: %w", err)
	}

	kind, ok := federation.MapRole(partnerRole)
	if !ok {
		s.log.Warn("unknown partner role, skipping membership",
			zap.String("role", partnerRole),
			zap.String("organization_id", org.ID),
		)
		return nil
	}

	group := s.roleGroupByKind(ctx, org, kind)
	if group == nil {
		s.log.Warn("role group missing, skipping membership",
			zap.String("kind", kind),
			zap.String("organization_id", org.ID),
		)
		return nil
	}

	membership := models.Membership{
		UserID:         user.ID,
		OrganizationID: org.ID,
		RoleGroupID:    group.ID,
	}
	if err := s.db.WithContext(ctx).Create(&membership).Error; err != nil {
		// A concurrent call already joined the user; the constraint makes
		// the duplicate a no-op.
		if isUniqueConstraintError(err) {
			return nil
		}
		return fmt.Errorf("provisioning service: create membership: %w", err)
	}

	return nil
}

func (s *ProvisioningService) roleGroupByKind(ctx context.Context, org *models.Organization, kind string) *models.RoleGroup {
	for i := range org.RoleGroups {
		if org.RoleGroups[i].Kind == kind {
			return &org.RoleGroups[i]
		}
	}

	var group models.RoleGroup
	err := s.db.WithContext(ctx).
		Take(&group, "organization_id = ? AND kind = ?", org.ID, kind).Error
	if err != nil {
		return nil
	}
	return &group
}

// canonicalTeam returns the oldest team of the organisation.
func (s *ProvisioningService) canonicalTeam(ctx context.Context, org *models.Organization) (*models.Team, error) {
	var team models.Team
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", org.ID).
		Order("created_at ASC").
		First(&team).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("provisioning service: organization %s has no team", org.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("provisioning service: find team: %w", err)
	}
	return &team, nil
}

// RemoveMember deletes the membership joining the user identified by email to
// the organisation for a business id. Absent users, organisations, or
// memberships are reported in the message, never as errors.
func (s *ProvisioningService) RemoveMember(ctx context.Context, email, businessID string) (string, error) {
	ctx = ensureContext(ctx)

	email = CanonicalEmail(email)
	slug := federation.TenantSlug(businessID)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "User not found", nil
	}
	if err != nil {
		return "", fmt.Errorf("provisioning service: find user: %w", err)
	}

	var org models.Organization
	err = s.db.WithContext(ctx).Take(&org, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "Organization not found", nil
	}
	if err != nil {
		return "", fmt.Errorf("provisioning service: find organization: %w", err)
	}

	result := s.db.WithContext(ctx).
		Where("user_id = ? AND organization_id = ?", user.ID, org.ID).
		Delete(&models.Membership{})
	if result.Error != nil {
		return "", fmt.Errorf("provisioning service: delete membership: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return "Membership not found", nil
	}

	return "Member removed", nil
}

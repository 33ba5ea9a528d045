package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/quillsign/federate/internal/models"
	"github.com/quillsign/federate/pkg/crypto"
)

const (
	credentialNamePrefix  = "partner-api-"
	credentialTokenPrefix = "qsf_"
	credentialTokenBytes  = 24
)

// EnsureCredentialResult reports whether a credential was minted and, only
// then, its plaintext secret. The plaintext is never recoverable later.
type EnsureCredentialResult struct {
	Credential *models.ServiceCredential
	Plaintext  string
	Created    bool
}

// CredentialService mints the per-tenant API token the partner system uses
// for back-channel calls.
type CredentialService struct {
	db *gorm.DB
}

// NewCredentialService constructs a CredentialService instance.
func NewCredentialService(db *gorm.DB) (*CredentialService, error) {
	if db == nil {
		return nil, errors.New("credential service: db is required")
	}
	return &CredentialService{db: db}, nil
}

// CredentialName derives the deterministic credential name for an organisation.
func CredentialName(organizationID string) string {
	return credentialNamePrefix + organizationID
}

// EnsureForTeam guarantees the team holds exactly one credential with the
// organisation-derived name. When the credential already exists nothing is
// minted and no plaintext is returned.
func (s *CredentialService) EnsureForTeam(ctx context.Context, team *models.Team, ownerUserID string) (*EnsureCredentialResult, error) {
	ctx = ensureContext(ctx)

	if team == nil || team.ID == "" {
		return nil, errors.New("credential service: team is required")
	}

	name := CredentialName(team.OrganizationID)

	var existing models.ServiceCredential
	err := s.db.WithContext(ctx).
		Take(&existing, "team_id = ? AND name = ?", team.ID, name).Error
	if err == nil {
		return &EnsureCredentialResult{Credential: &existing}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("credential service: find credential: %w", err)
	}

	secret, err := crypto.GenerateToken(credentialTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("credential service: generate secret: %w", err)
	}
	plaintext := credentialTokenPrefix + secret

	hash, err := crypto.HashSecret(plaintext)
	if err != nil {
		return nil, fmt.Errorf("credential service: hash secret: %w", err)
	}

	credential := models.ServiceCredential{
		TeamID:      team.ID,
		Name:        name,
		SecretHash:  hash,
		OwnerUserID: ownerUserID,
	}
	if err := s.db.WithContext(ctx).Create(&credential).Error; err != nil {
		// A concurrent exchange minted it first; fall back to theirs.
		if isUniqueConstraintError(err) {
			var winner models.ServiceCredential
			if readErr := s.db.WithContext(ctx).
				Take(&winner, "team_id = ? AND name = ?", team.ID, name).Error; readErr == nil {
				return &EnsureCredentialResult{Credential: &winner}, nil
			}
		}
		return nil, fmt.Errorf("credential service: create credential: %w", err)
	}

	return &EnsureCredentialResult{
		Credential: &credential,
		Plaintext:  plaintext,
		Created:    true,
	}, nil
}

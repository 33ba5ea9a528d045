package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/quillsign/federate/internal/models"
	apperrors "github.com/quillsign/federate/pkg/errors"
)

// ErrUserNotFound indicates the requested user does not exist.
var ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)

// IdentityService resolves federated identities by canonical email address.
type IdentityService struct {
	db *gorm.DB
}

// NewIdentityService constructs an IdentityService instance.
func NewIdentityService(db *gorm.DB) (*IdentityService, error) {
	if db == nil {
		return nil, errors.New("identity service: db is required")
	}
	return &IdentityService{db: db}, nil
}

// CanonicalEmail lower-cases and trims an email address.
func CanonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Resolve finds or creates the user for an email the partner has already
// verified. First sightings are created with an external identity source and
// a verified email. A changed display name overwrites the stored one,
// last-write-wins.
func (s *IdentityService) Resolve(ctx context.Context, email, displayName string) (*models.User, error) {
	ctx = ensureContext(ctx)

	email = CanonicalEmail(email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	displayName = strings.TrimSpace(displayName)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		created, createErr := s.create(ctx, email, displayName)
		if createErr != nil {
			return nil, createErr
		}
		return created, nil
	case err != nil:
		return nil, fmt.Errorf("identity service: find user: %w", err)
	}

	if displayName != "" && displayName != user.Name {
		if err := s.db.WithContext(ctx).Model(&user).Update("name", displayName).Error; err != nil {
			return nil, fmt.Errorf("identity service: update name: %w", err)
		}
		user.Name = displayName
	}

	return &user, nil
}

func (s *IdentityService) create(ctx context.Context, email, displayName string) (*models.User, error) {
	now := s.db.NowFunc()
	user := &models.User{
		Email:           email,
		Name:            displayName,
		IdentitySource:  models.IdentitySourceExternal,
		EmailVerifiedAt: &now,
		IsActive:        true,
	}

	err := s.db.WithContext(ctx).Create(user).Error
	if err == nil {
		return user, nil
	}

	// Concurrent first sighting of the same email: converge on the winner.
	if isUniqueConstraintError(err) {
		var existing models.User
		if readErr := s.db.WithContext(ctx).Take(&existing, "email = ?", email).Error; readErr == nil {
			return &existing, nil
		}
	}

	return nil, fmt.Errorf("identity service: create user: %w", err)
}

// GetByEmail loads a user with memberships, organisations, and role groups.
func (s *IdentityService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	email = CanonicalEmail(email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Memberships").
		Preload("Memberships.Organization").
		Preload("Memberships.Organization.Teams", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Memberships.RoleGroup").
		Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("identity service: get user: %w", err)
	}
	return &user, nil
}

// TouchLogin records a successful federated sign-in.
func (s *IdentityService) TouchLogin(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)

	now := s.db.NowFunc()
	return s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_login_at", now).Error
}

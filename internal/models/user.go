package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Identity sources recorded on users.
const (
	IdentitySourceLocal    = "local"
	IdentitySourceExternal = "external"
)

// User describes platform users with relationships to organisations and teams.
// Federated users are keyed by their canonical (lower-cased) email address.
type User struct {
	ID    string `gorm:"primaryKey;type:uuid" json:"id"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`
	Name  string `json:"name"`

	IdentitySource  string     `gorm:"default:local;index" json:"identity_source"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	Memberships []Membership `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
	Sessions    []Session    `gorm:"foreignKey:UserID" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

package models

import "time"

// ServiceCredential is a per-tenant API token used by the partner system for
// back-channel calls. The name is derived deterministically from the owning
// organisation, so at most one credential per team carries it.
type ServiceCredential struct {
	BaseModel

	TeamID string `gorm:"type:uuid;not null;uniqueIndex:idx_service_credentials_team_name" json:"team_id"`
	Team   *Team  `json:"-"`

	Name        string `gorm:"not null;uniqueIndex:idx_service_credentials_team_name" json:"name"`
	SecretHash  string `gorm:"not null" json:"-"`
	OwnerUserID string `gorm:"type:uuid;not null" json:"owner_user_id"`

	LastUsedAt *time.Time `json:"last_used_at"`
}

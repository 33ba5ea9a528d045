package models

import "gorm.io/datatypes"

// Organization is the tenant root. Slug is a deterministic function of the
// partner business id and carries the uniqueness constraint the provisioner
// relies on to resolve concurrent first-time creation races.
type Organization struct {
	BaseModel

	Slug     string         `gorm:"uniqueIndex;not null" json:"slug"`
	Name     string         `gorm:"not null" json:"name"`
	Settings datatypes.JSON `json:"settings"`

	RoleGroups []RoleGroup `gorm:"foreignKey:OrganizationID" json:"role_groups,omitempty"`
	Teams      []Team      `gorm:"foreignKey:OrganizationID" json:"teams,omitempty"`
}

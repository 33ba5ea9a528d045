package models

// Membership joins a user to an organisation through a role group. At most
// one membership may exist per (user, organisation) pair; the composite
// unique index backs the provisioner's idempotence guarantee.
type Membership struct {
	BaseModel

	UserID         string `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_org" json:"user_id"`
	OrganizationID string `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_org" json:"organization_id"`
	RoleGroupID    string `gorm:"type:uuid;not null" json:"role_group_id"`

	User         *User         `json:"user,omitempty"`
	Organization *Organization `json:"organization,omitempty"`
	RoleGroup    *RoleGroup    `json:"role_group,omitempty"`
}

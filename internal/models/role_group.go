package models

// Role group kinds created for every organisation.
const (
	RoleGroupKindAdmin   = "admin"
	RoleGroupKindManager = "manager"
	RoleGroupKindMember  = "member"
)

// RoleGroup grants a permission level inside one organisation. Every
// organisation owns exactly one group per kind, created at provisioning time.
type RoleGroup struct {
	BaseModel

	OrganizationID string        `gorm:"type:uuid;not null;uniqueIndex:idx_role_groups_org_kind" json:"organization_id"`
	Organization   *Organization `json:"-"`

	Kind string `gorm:"not null;uniqueIndex:idx_role_groups_org_kind" json:"kind"`
	Name string `gorm:"not null" json:"name"`
}

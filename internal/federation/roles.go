package federation

import "github.com/quillsign/federate/internal/models"

// Partner-supplied role strings.
const (
	PartnerRoleAdmin   = "ADMIN"
	PartnerRoleManager = "MANAGER"
	PartnerRoleMember  = "MEMBER"
)

// roleKinds maps partner role strings onto internal role group kinds.
var roleKinds = map[string]string{
	PartnerRoleAdmin:   models.RoleGroupKindAdmin,
	PartnerRoleManager: models.RoleGroupKindManager,
	PartnerRoleMember:  models.RoleGroupKindMember,
}

// MapRole translates a partner role string into an internal role group kind.
// Unknown strings are expected to be rejected by request validation before
// this lookup runs; ok is returned for callers that want to double-check.
func MapRole(role string) (kind string, ok bool) {
	kind, ok = roleKinds[role]
	return kind, ok
}

// DefaultPartnerRole is assumed when the partner omits the role field.
const DefaultPartnerRole = PartnerRoleMember

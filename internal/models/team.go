package models

// Team scopes documents inside an organisation. The oldest team by creation
// order is treated as the organisation's default.
type Team struct {
	BaseModel

	OrganizationID string        `gorm:"type:uuid;not null;index" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`

	Name string `gorm:"not null" json:"name"`

	Credentials []ServiceCredential `gorm:"foreignKey:TeamID" json:"-"`
}

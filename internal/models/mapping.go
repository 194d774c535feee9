package models

// ConsentMapping represents the FS_CONSENT_MAPPING table. A mapping binds an
// authorization resource to a single account/permission pair.
type ConsentMapping struct {
	MappingID     string `db:"MAPPING_ID" json:"mappingId"`
	AuthID        string `db:"AUTH_ID" json:"authId"`
	AccountID     string `db:"ACCOUNT_ID" json:"accountId"`
	Permission    string `db:"PERMISSION" json:"permission"`
	MappingStatus string `db:"MAPPING_STATUS" json:"mappingStatus"`
	OrgID         string `db:"ORG_ID" json:"orgId"`
}

// Mapping statuses
const (
	MappingStatusActive   = "active"
	MappingStatusInactive = "inactive"
)

// ConsentMappingCreateRequest represents the request payload for creating an account mapping
type ConsentMappingCreateRequest struct {
	AuthID        string `json:"authId,omitempty"`
	AccountID     string `json:"accountId" binding:"required"`
	Permission    string `json:"permission" binding:"required"`
	MappingStatus string `json:"mappingStatus,omitempty"`
}

// ConsentMappingUpdateRequest represents the request payload for updating mapping statuses
type ConsentMappingUpdateRequest struct {
	MappingIDs    []string `json:"mappingIds" binding:"required"`
	MappingStatus string   `json:"mappingStatus" binding:"required"`
}

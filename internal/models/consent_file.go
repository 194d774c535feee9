package models

// ConsentFile represents the FS_CONSENT_FILE table
type ConsentFile struct {
	ConsentID   string `db:"CONSENT_ID" json:"consentId"`
	ConsentFile []byte `db:"CONSENT_FILE" json:"-"`
	OrgID       string `db:"ORG_ID" json:"orgId"`
}

// ConsentFileResponse represents the response for file operations
type ConsentFileResponse struct {
	ConsentID string `json:"consentId"`
	FileSize  int    `json:"fileSize"`
	OrgID     string `json:"orgId"`
	Message   string `json:"message"`
}

package models

// ConsentStatusAudit represents the FS_CONSENT_STATUS_AUDIT table. Records are
// append-only; one row is written per status transition and never mutated.
type ConsentStatusAudit struct {
	StatusAuditID  string  `db:"STATUS_AUDIT_ID" json:"statusAuditId"`
	ConsentID      string  `db:"CONSENT_ID" json:"consentId"`
	CurrentStatus  string  `db:"CURRENT_STATUS" json:"currentStatus"`
	ActionTime     int64   `db:"ACTION_TIME" json:"actionTime"`
	Reason         *string `db:"REASON" json:"reason,omitempty"`
	ActionBy       *string `db:"ACTION_BY" json:"actionBy,omitempty"`
	PreviousStatus *string `db:"PREVIOUS_STATUS" json:"previousStatus,omitempty"`
	OrgID          string  `db:"ORG_ID" json:"orgId"`
}

// ConsentStatusAuditListResponse represents the response for listing audit records
type ConsentStatusAuditListResponse struct {
	Data []ConsentStatusAudit `json:"data"`
}

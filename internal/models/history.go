package models

// History record types: the facet of the consent aggregate a history row
// belongs to. RecordID is interpreted against the type (consent id for basic
// and attribute rows, mapping id or auth id for the sub-resource rows).
const (
	HistoryRecordTypeBasic        = "BASIC"
	HistoryRecordTypeAttributes   = "ATTRIBUTES"
	HistoryRecordTypeMapping      = "MAPPING"
	HistoryRecordTypeAuthResource = "AUTH_RESOURCE"
)

// ConsentHistory represents the FS_CONSENT_HISTORY table. ChangedValues holds
// a reverse patch: only the fields that changed in one amendment, carrying the
// pre-amendment values. All rows produced by one logical amendment share the
// same HistoryID so they can be correlated on retrieval.
type ConsentHistory struct {
	HistoryID     string  `db:"HISTORY_ID" json:"historyId"`
	RecordID      string  `db:"RECORD_ID" json:"recordId"`
	RecordType    string  `db:"RECORD_TYPE" json:"recordType"`
	ChangedValues JSON    `db:"CHANGED_VALUES" json:"changedValues"`
	Reason        *string `db:"REASON" json:"reason,omitempty"`
	Timestamp     int64   `db:"TIMESTAMP" json:"timestamp"`
	OrgID         string  `db:"ORG_ID" json:"orgId"`
}

// ConsentHistoryEntry groups the history rows of one amendment
type ConsentHistoryEntry struct {
	HistoryID string           `json:"historyId"`
	Reason    string           `json:"reason,omitempty"`
	Timestamp int64            `json:"timestamp"`
	Records   []ConsentHistory `json:"records"`
}

// ConsentHistoryResponse represents the response for amendment-history retrieval,
// newest amendment first.
type ConsentHistoryResponse struct {
	ConsentID  string                `json:"consentId"`
	Amendments []ConsentHistoryEntry `json:"amendments"`
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Consent represents the FS_CONSENT table
type Consent struct {
	ConsentID          string `db:"CONSENT_ID" json:"consentId"`
	Receipt            JSON   `db:"RECEIPT" json:"receipt"`
	CreatedTime        int64  `db:"CREATED_TIME" json:"createdTime"`
	UpdatedTime        int64  `db:"UPDATED_TIME" json:"updatedTime"`
	ClientID           string `db:"CLIENT_ID" json:"clientId"`
	ConsentType        string `db:"CONSENT_TYPE" json:"consentType"`
	CurrentStatus      string `db:"CURRENT_STATUS" json:"currentStatus"`
	ExpiryTime         int64  `db:"EXPIRY_TIME" json:"expiryTime"`
	RecurringIndicator *bool  `db:"RECURRING_INDICATOR" json:"recurringIndicator,omitempty"`
	OrgID              string `db:"ORG_ID" json:"orgId"`
}

// JSON type for handling JSON fields in MySQL
type JSON json.RawMessage

// Scan implements the sql.Scanner interface for JSON
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSON: %T", value)
	}

	var temp interface{}
	if err := json.Unmarshal(bytes, &temp); err != nil {
		return fmt.Errorf("invalid JSON data: %w", err)
	}

	cleanBytes, err := json.Marshal(temp)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	*j = JSON(cleanBytes)
	return nil
}

// Value implements the driver.Valuer interface for JSON
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// MarshalJSON implements json.Marshaler
func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler
func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = JSON(data)
	return nil
}

// DetailedConsent is the full consent aggregate: the consent row plus its
// attributes, authorization resources and account mappings. It is the unit
// compared by the diff package, so mutation paths must work on a Clone and
// never on the fetched instance itself.
type DetailedConsent struct {
	Consent
	Attributes    map[string]string     `json:"attributes,omitempty"`
	AuthResources []ConsentAuthResource `json:"authorizations,omitempty"`
	Mappings      []ConsentMapping      `json:"mappings,omitempty"`
}

// Clone returns a deep copy of the aggregate. Receipt bytes, the attribute
// map and both sub-resource slices are copied so the before image used for
// diffing cannot alias the mutated aggregate.
func (d *DetailedConsent) Clone() *DetailedConsent {
	if d == nil {
		return nil
	}

	clone := &DetailedConsent{Consent: d.Consent}

	if d.Receipt != nil {
		clone.Receipt = make(JSON, len(d.Receipt))
		copy(clone.Receipt, d.Receipt)
	}
	if d.RecurringIndicator != nil {
		recurring := *d.RecurringIndicator
		clone.RecurringIndicator = &recurring
	}

	if d.Attributes != nil {
		clone.Attributes = make(map[string]string, len(d.Attributes))
		for k, v := range d.Attributes {
			clone.Attributes[k] = v
		}
	}

	if d.AuthResources != nil {
		clone.AuthResources = make([]ConsentAuthResource, len(d.AuthResources))
		for i := range d.AuthResources {
			clone.AuthResources[i] = *d.AuthResources[i].Clone()
		}
	}

	if d.Mappings != nil {
		clone.Mappings = make([]ConsentMapping, len(d.Mappings))
		copy(clone.Mappings, d.Mappings)
	}

	return clone
}

// GetCreatedTime returns the created time as a time.Time
func (c *Consent) GetCreatedTime() time.Time {
	return time.Unix(0, c.CreatedTime*int64(time.Millisecond))
}

// GetUpdatedTime returns the updated time as a time.Time
func (c *Consent) GetUpdatedTime() time.Time {
	return time.Unix(0, c.UpdatedTime*int64(time.Millisecond))
}

// ConsentCreateRequest represents the request payload for creating a consent
type ConsentCreateRequest struct {
	Receipt            map[string]interface{}             `json:"receipt" binding:"required"`
	ConsentType        string                             `json:"consentType" binding:"required"`
	CurrentStatus      string                             `json:"currentStatus" binding:"required"`
	ExpiryTime         int64                              `json:"expiryTime"`
	RecurringIndicator *bool                              `json:"recurringIndicator,omitempty"`
	Attributes         map[string]string                  `json:"attributes,omitempty"`
	AuthResources      []ConsentAuthResourceCreateRequest `json:"authorizations,omitempty"`
}

// ConsentAmendRequest represents the request payload for amending a consent.
// Nil fields are left untouched; the amendment reason is recorded on the
// audit record and on every history row the amendment produces.
type ConsentAmendRequest struct {
	Receipt            map[string]interface{}             `json:"receipt,omitempty"`
	CurrentStatus      string                             `json:"currentStatus,omitempty"`
	ExpiryTime         *int64                             `json:"expiryTime,omitempty"`
	RecurringIndicator *bool                              `json:"recurringIndicator,omitempty"`
	Attributes         map[string]string                  `json:"attributes,omitempty"`
	AuthResources      []ConsentAuthResourceCreateRequest `json:"authorizations,omitempty"`
	Mappings           []ConsentMappingCreateRequest      `json:"mappings,omitempty"`
	Reason             string                             `json:"reason,omitempty"`
	ActionBy           string                             `json:"actionBy,omitempty"`
}

// ConsentStatusUpdateRequest represents the request payload for a status change
type ConsentStatusUpdateRequest struct {
	Status   string `json:"status" binding:"required"`
	Reason   string `json:"reason,omitempty"`
	ActionBy string `json:"actionBy,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

// ConsentRevokeRequest represents the request to revoke a consent
type ConsentRevokeRequest struct {
	Reason   string `json:"reason,omitempty"`
	ActionBy string `json:"actionBy,omitempty"`
}

// ConsentResponse represents the response after consent creation/retrieval
type ConsentResponse struct {
	ConsentID          string                `json:"consentId"`
	Receipt            JSON                  `json:"receipt"`
	CreatedTime        int64                 `json:"createdTime"`
	UpdatedTime        int64                 `json:"updatedTime"`
	ClientID           string                `json:"clientId"`
	ConsentType        string                `json:"consentType"`
	CurrentStatus      string                `json:"currentStatus"`
	ExpiryTime         int64                 `json:"expiryTime"`
	RecurringIndicator *bool                 `json:"recurringIndicator,omitempty"`
	OrgID              string                `json:"orgId"`
	Attributes         map[string]string     `json:"attributes,omitempty"`
	AuthResources      []ConsentAuthResource `json:"authorizations,omitempty"`
	Mappings           []ConsentMapping      `json:"mappings,omitempty"`
}

// ConsentSearchParams represents search parameters for consent queries
type ConsentSearchParams struct {
	ConsentIDs      []string `form:"consentIds"`
	ClientIDs       []string `form:"clientIds"`
	ConsentTypes    []string `form:"consentTypes"`
	ConsentStatuses []string `form:"consentStatuses"`
	UserIDs         []string `form:"userIds"`
	FromTime        *int64   `form:"fromTime"`
	ToTime          *int64   `form:"toTime"`
	Limit           int      `form:"limit"`
	Offset          int      `form:"offset"`
	OrgID           string   `form:"-"` // Extracted from header
}

// ConsentSearchResponse represents the response for consent search
type ConsentSearchResponse struct {
	Data     []ConsentResponse     `json:"data"`
	Metadata ConsentSearchMetadata `json:"metadata"`
}

// ConsentSearchMetadata represents pagination metadata
type ConsentSearchMetadata struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

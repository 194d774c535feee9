package diff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wso2/financial-services-consent-mgt/internal/models"
)

func makeConsent(receipt string, expiry, updated int64, status string) *models.DetailedConsent {
	return &models.DetailedConsent{
		Consent: models.Consent{
			ConsentID:     "CONSENT-1111",
			Receipt:       models.JSON(receipt),
			ExpiryTime:    expiry,
			UpdatedTime:   updated,
			CurrentStatus: status,
			OrgID:         "org-1",
		},
	}
}

func TestBasic_NoChanges(t *testing.T) {
	oldRes := makeConsent(`{"scope":"accounts"}`, 100, 200, models.StatusAuthorised)
	newRes := makeConsent(`{"scope":"accounts"}`, 100, 200, models.StatusAuthorised)

	changed := Basic(newRes, oldRes)

	assert.Empty(t, changed)
}

func TestBasic_ReceiptKeyOrderIgnored(t *testing.T) {
	oldRes := makeConsent(`{"scope":"accounts","amount":"100"}`, 100, 200, models.StatusAuthorised)
	newRes := makeConsent(`{"amount":"100","scope":"accounts"}`, 100, 200, models.StatusAuthorised)

	changed := Basic(newRes, oldRes)

	assert.Empty(t, changed, "structurally equal receipts must not diff")
}

func TestBasic_EmitsOldValues(t *testing.T) {
	oldRes := makeConsent(`{"scope":"accounts"}`, 100, 200, models.StatusAwaitingAuthorisation)
	newRes := makeConsent(`{"scope":"payments"}`, 300, 400, models.StatusAuthorised)

	changed := Basic(newRes, oldRes)

	assert.Len(t, changed, 4)
	assert.Equal(t, json.RawMessage(`{"scope":"accounts"}`), changed["receipt"])
	assert.Equal(t, int64(100), changed["expiryTime"])
	assert.Equal(t, int64(200), changed["updatedTime"])
	assert.Equal(t, models.StatusAwaitingAuthorisation, changed["currentStatus"])
}

func TestBasic_PartialChange(t *testing.T) {
	oldRes := makeConsent(`{"scope":"accounts"}`, 100, 200, models.StatusAuthorised)
	newRes := makeConsent(`{"scope":"accounts"}`, 100, 500, models.StatusAuthorised)

	changed := Basic(newRes, oldRes)

	assert.Len(t, changed, 1)
	assert.Equal(t, int64(200), changed["updatedTime"])
}

func TestAttributes(t *testing.T) {
	tests := []struct {
		name     string
		oldAttrs map[string]string
		newAttrs map[string]string
		expected map[string]string
	}{
		{
			name:     "no changes",
			oldAttrs: map[string]string{"a": "1"},
			newAttrs: map[string]string{"a": "1"},
			expected: map[string]string{},
		},
		{
			name:     "modified carries old value",
			oldAttrs: map[string]string{"a": "1"},
			newAttrs: map[string]string{"a": "2"},
			expected: map[string]string{"a": "1"},
		},
		{
			name:     "removed carries old value",
			oldAttrs: map[string]string{"a": "1", "b": "2"},
			newAttrs: map[string]string{"a": "1"},
			expected: map[string]string{"b": "2"},
		},
		{
			name:     "added carries new value",
			oldAttrs: map[string]string{"a": "1"},
			newAttrs: map[string]string{"a": "1", "c": "3"},
			expected: map[string]string{"c": "3"},
		},
		{
			name:     "mixed",
			oldAttrs: map[string]string{"keep": "x", "mod": "old", "del": "gone"},
			newAttrs: map[string]string{"keep": "x", "mod": "new", "add": "fresh"},
			expected: map[string]string{"mod": "old", "del": "gone", "add": "fresh"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Attributes(tt.newAttrs, tt.oldAttrs))
		})
	}
}

func TestAttributes_RoundTrip(t *testing.T) {
	oldAttrs := map[string]string{"keep": "x", "mod": "old", "del": "gone"}
	newAttrs := map[string]string{"keep": "x", "mod": "new", "add": "fresh"}

	patch := Attributes(newAttrs, oldAttrs)
	restored := ApplyAttributes(newAttrs, patch)

	assert.Equal(t, oldAttrs, restored)
}

func TestMappings(t *testing.T) {
	oldMappings := []models.ConsentMapping{
		{MappingID: "MAPPING-1", MappingStatus: models.MappingStatusActive},
		{MappingID: "MAPPING-2", MappingStatus: models.MappingStatusActive},
	}
	newMappings := []models.ConsentMapping{
		{MappingID: "MAPPING-1", MappingStatus: models.MappingStatusInactive},
		{MappingID: "MAPPING-2", MappingStatus: models.MappingStatusActive},
		{MappingID: "MAPPING-3", MappingStatus: models.MappingStatusActive},
	}

	changed := Mappings(newMappings, oldMappings)

	assert.Len(t, changed, 2)
	assert.Equal(t, map[string]string{"mappingStatus": models.MappingStatusActive}, changed["MAPPING-1"])
	patch, present := changed["MAPPING-3"]
	assert.True(t, present, "added mapping must appear in the patch")
	assert.Nil(t, patch, "added mapping uses the nil sentinel")
	assert.NotContains(t, changed, "MAPPING-2")
}

func TestMappings_RoundTrip(t *testing.T) {
	oldMappings := []models.ConsentMapping{
		{MappingID: "MAPPING-1", AuthID: "AUTH-1", MappingStatus: models.MappingStatusActive},
	}
	newMappings := []models.ConsentMapping{
		{MappingID: "MAPPING-1", AuthID: "AUTH-1", MappingStatus: models.MappingStatusInactive},
		{MappingID: "MAPPING-2", AuthID: "AUTH-1", MappingStatus: models.MappingStatusActive},
	}

	patches := Mappings(newMappings, oldMappings)
	restored := ApplyMappings(newMappings, patches)

	assert.Equal(t, oldMappings, restored)
}

func TestAuthResources(t *testing.T) {
	oldAuth := []models.ConsentAuthResource{
		{AuthID: "AUTH-1", AuthStatus: models.AuthStatusCreated},
	}
	newAuth := []models.ConsentAuthResource{
		{AuthID: "AUTH-1", AuthStatus: models.AuthStatusApproved},
		{AuthID: "AUTH-2", AuthStatus: models.AuthStatusCreated},
	}

	changed := AuthResources(newAuth, oldAuth)

	assert.Len(t, changed, 2)
	assert.Equal(t, map[string]string{"authStatus": models.AuthStatusCreated}, changed["AUTH-1"])
	patch, present := changed["AUTH-2"]
	assert.True(t, present)
	assert.Nil(t, patch)
}

func TestAuthResources_RoundTrip(t *testing.T) {
	oldAuth := []models.ConsentAuthResource{
		{AuthID: "AUTH-1", AuthStatus: models.AuthStatusCreated},
	}
	newAuth := []models.ConsentAuthResource{
		{AuthID: "AUTH-1", AuthStatus: models.AuthStatusApproved},
		{AuthID: "AUTH-2", AuthStatus: models.AuthStatusCreated},
	}

	patches := AuthResources(newAuth, oldAuth)
	restored := ApplyAuthResources(newAuth, patches)

	assert.Equal(t, oldAuth, restored)
}

func TestApplyBasic_RoundTrip(t *testing.T) {
	oldRes := makeConsent(`{"scope":"accounts"}`, 100, 200, models.StatusAwaitingAuthorisation)
	newRes := makeConsent(`{"scope":"payments"}`, 300, 400, models.StatusAuthorised)

	changed := Basic(newRes, oldRes)
	changedJSON, err := json.Marshal(changed)
	assert.NoError(t, err)

	state := newRes.Clone()
	err = ApplyBasic(state, models.JSON(changedJSON))
	assert.NoError(t, err)

	assert.JSONEq(t, string(oldRes.Receipt), string(state.Receipt))
	assert.Equal(t, oldRes.ExpiryTime, state.ExpiryTime)
	assert.Equal(t, oldRes.UpdatedTime, state.UpdatedTime)
	assert.Equal(t, oldRes.CurrentStatus, state.CurrentStatus)
}

func TestDiff_IsIdempotentOnEqualStates(t *testing.T) {
	state := makeConsent(`{"scope":"accounts"}`, 100, 200, models.StatusAuthorised)
	state.Attributes = map[string]string{"a": "1"}
	state.Mappings = []models.ConsentMapping{{MappingID: "MAPPING-1", MappingStatus: models.MappingStatusActive}}
	state.AuthResources = []models.ConsentAuthResource{{AuthID: "AUTH-1", AuthStatus: models.AuthStatusApproved}}

	clone := state.Clone()

	assert.Empty(t, Basic(state, clone))
	assert.Empty(t, Attributes(state.Attributes, clone.Attributes))
	assert.Empty(t, Mappings(state.Mappings, clone.Mappings))
	assert.Empty(t, AuthResources(state.AuthResources, clone.AuthResources))
}

func TestRecordIDsForHistory(t *testing.T) {
	state := makeConsent(`{}`, 0, 0, models.StatusAuthorised)
	state.AuthResources = []models.ConsentAuthResource{{AuthID: "AUTH-1"}, {AuthID: "AUTH-2"}}
	state.Mappings = []models.ConsentMapping{{MappingID: "MAPPING-1"}}

	ids := RecordIDsForHistory(state)

	assert.Equal(t, []string{"CONSENT-1111", "AUTH-1", "AUTH-2", "MAPPING-1"}, ids)
}

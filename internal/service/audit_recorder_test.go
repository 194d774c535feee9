package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/financial-services-consent-mgt/internal/config"
	"github.com/wso2/financial-services-consent-mgt/internal/models"
)

func testRecorder() *AuditRecorder {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewAuditRecorder(nil, nil, config.AmendmentHistoryConfig{Enabled: true}, logger)
}

func amendedPair() (newState, oldState *models.DetailedConsent) {
	oldState = &models.DetailedConsent{
		Consent: models.Consent{
			ConsentID:     "CONSENT-1111",
			Receipt:       models.JSON(`{"scope":"accounts"}`),
			ExpiryTime:    100,
			UpdatedTime:   200,
			CurrentStatus: models.StatusAuthorised,
			OrgID:         "org-1",
		},
		Attributes: map[string]string{"channel": "web"},
		AuthResources: []models.ConsentAuthResource{
			{AuthID: "AUTH-1", AuthStatus: models.AuthStatusCreated},
		},
		Mappings: []models.ConsentMapping{
			{MappingID: "MAPPING-1", MappingStatus: models.MappingStatusActive},
		},
	}

	newState = oldState.Clone()
	newState.Receipt = models.JSON(`{"scope":"payments"}`)
	newState.UpdatedTime = 300
	newState.Attributes["channel"] = "mobile"
	newState.AuthResources[0].AuthStatus = models.AuthStatusApproved
	newState.Mappings = append(newState.Mappings, models.ConsentMapping{
		MappingID: "MAPPING-2", MappingStatus: models.MappingStatusActive,
	})
	return newState, oldState
}

func TestBuildHistoryRecords_PerFacetRows(t *testing.T) {
	recorder := testRecorder()
	newState, oldState := amendedPair()

	records, err := recorder.buildHistoryRecords("AUDIT-1", newState, oldState, "customer request", 300)
	require.NoError(t, err)

	require.Len(t, records, 4)
	byType := make(map[string]models.ConsentHistory)
	for _, record := range records {
		assert.Equal(t, "AUDIT-1", record.HistoryID)
		assert.Equal(t, int64(300), record.Timestamp)
		assert.Equal(t, "org-1", record.OrgID)
		require.NotNil(t, record.Reason)
		assert.Equal(t, "customer request", *record.Reason)
		byType[record.RecordType+"/"+record.RecordID] = record
	}

	basic, ok := byType[models.HistoryRecordTypeBasic+"/CONSENT-1111"]
	require.True(t, ok)
	var basicChanges map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(basic.ChangedValues, &basicChanges))
	assert.Contains(t, basicChanges, "receipt")
	assert.Contains(t, basicChanges, "updatedTime")
	assert.NotContains(t, basicChanges, "currentStatus")

	attrs, ok := byType[models.HistoryRecordTypeAttributes+"/CONSENT-1111"]
	require.True(t, ok)
	var attrChanges map[string]string
	require.NoError(t, json.Unmarshal(attrs.ChangedValues, &attrChanges))
	assert.Equal(t, map[string]string{"channel": "web"}, attrChanges)

	auth, ok := byType[models.HistoryRecordTypeAuthResource+"/AUTH-1"]
	require.True(t, ok)
	var authChanges map[string]string
	require.NoError(t, json.Unmarshal(auth.ChangedValues, &authChanges))
	assert.Equal(t, map[string]string{"authStatus": models.AuthStatusCreated}, authChanges)

	added, ok := byType[models.HistoryRecordTypeMapping+"/MAPPING-2"]
	require.True(t, ok)
	assert.Equal(t, "null", string(added.ChangedValues))
}

func TestBuildHistoryRecords_NoChangesNoRows(t *testing.T) {
	recorder := testRecorder()
	state, _ := amendedPair()

	records, err := recorder.buildHistoryRecords("AUDIT-1", state, state.Clone(), "", 300)

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecordAmendment_DisabledIsNoOp(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	recorder := NewAuditRecorder(nil, nil, config.AmendmentHistoryConfig{Enabled: false}, logger)
	newState, oldState := amendedPair()

	// nil tx and nil DAO: disabled recording must not touch either
	err := recorder.RecordAmendment(context.Background(), nil, "AUDIT-1", newState, oldState, "", 300)

	assert.NoError(t, err)
}

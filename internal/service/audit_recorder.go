package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wso2/financial-services-consent-mgt/internal/config"
	"github.com/wso2/financial-services-consent-mgt/internal/dao"
	"github.com/wso2/financial-services-consent-mgt/internal/database"
	"github.com/wso2/financial-services-consent-mgt/internal/diff"
	"github.com/wso2/financial-services-consent-mgt/internal/models"
	"github.com/wso2/financial-services-consent-mgt/pkg/utils"
)

// AuditRecorder writes status audit rows and amendment history rows. Audit
// rows ride the caller's transaction and always abort it on failure; history
// rows are best-effort by default, governed by amendment_history.fail_on_error.
type AuditRecorder struct {
	statusAuditDAO *dao.StatusAuditDAO
	historyDAO     *dao.ConsentHistoryDAO
	config         config.AmendmentHistoryConfig
	logger         *logrus.Logger
}

// NewAuditRecorder creates a new AuditRecorder instance
func NewAuditRecorder(
	statusAuditDAO *dao.StatusAuditDAO,
	historyDAO *dao.ConsentHistoryDAO,
	cfg config.AmendmentHistoryConfig,
	logger *logrus.Logger,
) *AuditRecorder {
	return &AuditRecorder{
		statusAuditDAO: statusAuditDAO,
		historyDAO:     historyDAO,
		config:         cfg,
		logger:         logger,
	}
}

// StatusChange describes one status transition to be audited
type StatusChange struct {
	ConsentID      string
	OrgID          string
	CurrentStatus  string
	PreviousStatus string
	ActionTime     int64
	Reason         string
	ActionBy       string
}

// RecordStatusChange appends a status audit row inside the caller's
// transaction and returns the new audit ID. The same ID doubles as the
// history ID correlating all history rows of the amendment that caused the
// transition.
func (r *AuditRecorder) RecordStatusChange(ctx context.Context, tx *database.Transaction, change *StatusChange) (string, error) {
	audit := &models.ConsentStatusAudit{
		StatusAuditID: utils.GenerateAuditID(),
		ConsentID:     change.ConsentID,
		CurrentStatus: change.CurrentStatus,
		ActionTime:    change.ActionTime,
		OrgID:         change.OrgID,
	}
	if change.PreviousStatus != "" {
		previousStatus := change.PreviousStatus
		audit.PreviousStatus = &previousStatus
	}
	if change.Reason != "" {
		reason := change.Reason
		audit.Reason = &reason
	}
	if change.ActionBy != "" {
		actionBy := change.ActionBy
		audit.ActionBy = &actionBy
	}

	if err := r.statusAuditDAO.CreateWithTx(ctx, tx, audit); err != nil {
		return "", fmt.Errorf("failed to record status change: %w", err)
	}

	return audit.StatusAuditID, nil
}

// RecordAmendment diffs the pre- and post-amendment images of a consent and
// writes one reverse-delta history row per changed facet, all sharing
// historyID. Unchanged facets produce no rows. A history write failure aborts
// the transaction only when fail_on_error is set; otherwise it is logged and
// the amendment proceeds.
func (r *AuditRecorder) RecordAmendment(ctx context.Context, tx *database.Transaction, historyID string, newState, oldState *models.DetailedConsent, reason string, timestamp int64) error {
	if !r.config.Enabled {
		return nil
	}

	records, err := r.buildHistoryRecords(historyID, newState, oldState, reason, timestamp)
	if err == nil {
		err = r.historyDAO.CreateWithTx(ctx, tx, records)
	}
	if err != nil {
		if r.config.FailOnError {
			return fmt.Errorf("failed to record amendment history: %w", err)
		}
		r.logger.WithError(err).WithFields(logrus.Fields{
			"consent_id": newState.ConsentID,
			"history_id": historyID,
		}).Error("Failed to record amendment history")
	}

	return nil
}

func (r *AuditRecorder) buildHistoryRecords(historyID string, newState, oldState *models.DetailedConsent, reason string, timestamp int64) ([]models.ConsentHistory, error) {
	var records []models.ConsentHistory

	appendRecord := func(recordID, recordType string, changed interface{}) error {
		changedJSON, err := json.Marshal(changed)
		if err != nil {
			return fmt.Errorf("failed to marshal changed values for %s/%s: %w", recordType, recordID, err)
		}
		record := models.ConsentHistory{
			HistoryID:     historyID,
			RecordID:      recordID,
			RecordType:    recordType,
			ChangedValues: models.JSON(changedJSON),
			Timestamp:     timestamp,
			OrgID:         newState.OrgID,
		}
		if reason != "" {
			recordReason := reason
			record.Reason = &recordReason
		}
		records = append(records, record)
		return nil
	}

	if basicChanges := diff.Basic(newState, oldState); len(basicChanges) > 0 {
		if err := appendRecord(newState.ConsentID, models.HistoryRecordTypeBasic, basicChanges); err != nil {
			return nil, err
		}
	}

	if attrChanges := diff.Attributes(newState.Attributes, oldState.Attributes); len(attrChanges) > 0 {
		if err := appendRecord(newState.ConsentID, models.HistoryRecordTypeAttributes, attrChanges); err != nil {
			return nil, err
		}
	}

	for mappingID, change := range diff.Mappings(newState.Mappings, oldState.Mappings) {
		if err := appendRecord(mappingID, models.HistoryRecordTypeMapping, change); err != nil {
			return nil, err
		}
	}

	for authID, change := range diff.AuthResources(newState.AuthResources, oldState.AuthResources) {
		if err := appendRecord(authID, models.HistoryRecordTypeAuthResource, change); err != nil {
			return nil, err
		}
	}

	return records, nil
}

package dao

import (
	"context"
	"fmt"

	"github.com/wso2/financial-services-consent-mgt/internal/database"
	"github.com/wso2/financial-services-consent-mgt/internal/models"
)

const historyColumns = `HISTORY_ID, RECORD_ID, RECORD_TYPE, CHANGED_VALUES, REASON, TIMESTAMP, ORG_ID`

// ConsentHistoryDAO handles database operations for amendment history records.
// History rows are append-only reverse deltas; rows of one amendment share a
// HISTORY_ID and are only ever written together inside a transaction.
type ConsentHistoryDAO struct {
	db *database.DB
}

// NewConsentHistoryDAO creates a new ConsentHistoryDAO instance
func NewConsentHistoryDAO(db *database.DB) *ConsentHistoryDAO {
	return &ConsentHistoryDAO{db: db}
}

// CreateWithTx inserts amendment history records using a transaction
func (dao *ConsentHistoryDAO) CreateWithTx(ctx context.Context, tx *database.Transaction, records []models.ConsentHistory) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO FS_CONSENT_HISTORY (` + historyColumns + `)
		VALUES (:HISTORY_ID, :RECORD_ID, :RECORD_TYPE, :CHANGED_VALUES, :REASON, :TIMESTAMP, :ORG_ID)
	`

	for i := range records {
		if _, err := tx.NamedExecContext(ctx, query, &records[i]); err != nil {
			return fmt.Errorf("failed to create history record %s/%s: %w", records[i].HistoryID, records[i].RecordID, err)
		}
	}

	return nil
}

// GetByRecordIDs retrieves all history records for a set of record IDs,
// newest first. Rows sharing a HISTORY_ID belong to the same amendment.
func (dao *ConsentHistoryDAO) GetByRecordIDs(ctx context.Context, recordIDs []string, orgID string) ([]models.ConsentHistory, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + historyColumns + `
		FROM FS_CONSENT_HISTORY
		WHERE RECORD_ID IN (?) AND ORG_ID = ?
		ORDER BY TIMESTAMP DESC, HISTORY_ID DESC, RECORD_TYPE, RECORD_ID
	`
	query, args, err := sqlxIn(query, recordIDs, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to build history query: %w", err)
	}

	var records []models.ConsentHistory
	if err := dao.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get history records: %w", err)
	}

	return records, nil
}

// GetByHistoryID retrieves all rows written by a single amendment
func (dao *ConsentHistoryDAO) GetByHistoryID(ctx context.Context, historyID, orgID string) ([]models.ConsentHistory, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM FS_CONSENT_HISTORY
		WHERE HISTORY_ID = ? AND ORG_ID = ?
		ORDER BY RECORD_TYPE, RECORD_ID
	`

	var records []models.ConsentHistory
	if err := dao.db.SelectContext(ctx, &records, query, historyID, orgID); err != nil {
		return nil, fmt.Errorf("failed to get history records: %w", err)
	}

	return records, nil
}

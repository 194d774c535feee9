package dao

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wso2/financial-services-consent-mgt/internal/database"
	"github.com/wso2/financial-services-consent-mgt/internal/models"
)

const statusAuditColumns = `STATUS_AUDIT_ID, CONSENT_ID, CURRENT_STATUS, ACTION_TIME, REASON, ACTION_BY, PREVIOUS_STATUS, ORG_ID`

// StatusAuditDAO handles database operations for the consent status audit trail.
// Audit rows are append-only; there are no update or delete operations.
type StatusAuditDAO struct {
	db *database.DB
}

// NewStatusAuditDAO creates a new StatusAuditDAO instance
func NewStatusAuditDAO(db *database.DB) *StatusAuditDAO {
	return &StatusAuditDAO{db: db}
}

// CreateWithTx inserts a new status audit record using a transaction
func (dao *StatusAuditDAO) CreateWithTx(ctx context.Context, tx *database.Transaction, audit *models.ConsentStatusAudit) error {
	query := `
		INSERT INTO FS_CONSENT_STATUS_AUDIT (` + statusAuditColumns + `)
		VALUES (:STATUS_AUDIT_ID, :CONSENT_ID, :CURRENT_STATUS, :ACTION_TIME, :REASON, :ACTION_BY, :PREVIOUS_STATUS, :ORG_ID)
	`

	_, err := tx.NamedExecContext(ctx, query, audit)
	if err != nil {
		return fmt.Errorf("failed to create status audit record: %w", err)
	}

	return nil
}

// GetByID retrieves a status audit record by its ID
func (dao *StatusAuditDAO) GetByID(ctx context.Context, auditID, orgID string) (*models.ConsentStatusAudit, error) {
	query := `
		SELECT ` + statusAuditColumns + `
		FROM FS_CONSENT_STATUS_AUDIT
		WHERE STATUS_AUDIT_ID = ? AND ORG_ID = ?
	`

	var audit models.ConsentStatusAudit
	err := dao.db.GetContext(ctx, &audit, query, auditID, orgID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("status audit record %s: %w", auditID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get status audit record: %w", err)
	}

	return &audit, nil
}

// GetByConsentID retrieves the audit trail of a consent, newest first
func (dao *StatusAuditDAO) GetByConsentID(ctx context.Context, consentID, orgID string, limit, offset int) ([]models.ConsentStatusAudit, error) {
	query := `
		SELECT ` + statusAuditColumns + `
		FROM FS_CONSENT_STATUS_AUDIT
		WHERE CONSENT_ID = ? AND ORG_ID = ?
		ORDER BY ACTION_TIME DESC, STATUS_AUDIT_ID DESC
		LIMIT ? OFFSET ?
	`

	var audits []models.ConsentStatusAudit
	err := dao.db.SelectContext(ctx, &audits, query, consentID, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get status audit records: %w", err)
	}

	return audits, nil
}

// CountByConsentID returns the number of audit records for a consent
func (dao *StatusAuditDAO) CountByConsentID(ctx context.Context, consentID, orgID string) (int, error) {
	query := `SELECT COUNT(*) FROM FS_CONSENT_STATUS_AUDIT WHERE CONSENT_ID = ? AND ORG_ID = ?`

	var count int
	err := dao.db.GetContext(ctx, &count, query, consentID, orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to count status audit records: %w", err)
	}

	return count, nil
}

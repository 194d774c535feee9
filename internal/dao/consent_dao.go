package dao

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/wso2/financial-services-consent-mgt/internal/database"
	"github.com/wso2/financial-services-consent-mgt/internal/models"
)

// ConsentDAO handles database operations for consents
type ConsentDAO struct {
	db *database.DB
}

// NewConsentDAO creates a new ConsentDAO instance
func NewConsentDAO(db *database.DB) *ConsentDAO {
	return &ConsentDAO{db: db}
}

const consentColumns = `CONSENT_ID, RECEIPT, CREATED_TIME, UPDATED_TIME, CLIENT_ID,
	       CONSENT_TYPE, CURRENT_STATUS, EXPIRY_TIME, RECURRING_INDICATOR, ORG_ID`

// CreateWithTx inserts a new consent using a transaction
func (dao *ConsentDAO) CreateWithTx(ctx context.Context, tx *database.Transaction, consent *models.Consent) error {
	query := `
		INSERT INTO FS_CONSENT (
			CONSENT_ID, RECEIPT, CREATED_TIME, UPDATED_TIME, CLIENT_ID,
			CONSENT_TYPE, CURRENT_STATUS, EXPIRY_TIME, RECURRING_INDICATOR, ORG_ID
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(
		ctx,
		query,
		consent.ConsentID,
		consent.Receipt,
		consent.CreatedTime,
		consent.UpdatedTime,
		consent.ClientID,
		consent.ConsentType,
		consent.CurrentStatus,
		consent.ExpiryTime,
		consent.RecurringIndicator,
		consent.OrgID,
	)

	if err != nil {
		return fmt.Errorf("failed to create consent: %w", err)
	}

	return nil
}

// GetByID retrieves a consent by ID and organization ID
func (dao *ConsentDAO) GetByID(ctx context.Context, consentID, orgID string) (*models.Consent, error) {
	query := fmt.Sprintf(`SELECT %s FROM FS_CONSENT WHERE CONSENT_ID = ? AND ORG_ID = ?`, consentColumns)

	var consent models.Consent
	err := dao.db.GetContext(ctx, &consent, query, consentID, orgID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("consent %s: %w", consentID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}

	return &consent, nil
}

// GetByIDWithTx retrieves a consent by ID using a transaction
func (dao *ConsentDAO) GetByIDWithTx(ctx context.Context, tx *database.Transaction, consentID, orgID string) (*models.Consent, error) {
	query := fmt.Sprintf(`SELECT %s FROM FS_CONSENT WHERE CONSENT_ID = ? AND ORG_ID = ?`, consentColumns)

	var consent models.Consent
	err := tx.GetContext(ctx, &consent, query, consentID, orgID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("consent %s: %w", consentID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}

	return &consent, nil
}

// UpdateWithTx updates an existing consent using a transaction
func (dao *ConsentDAO) UpdateWithTx(ctx context.Context, tx *database.Transaction, consent *models.Consent) error {
	query := `
		UPDATE FS_CONSENT
		SET RECEIPT = ?, UPDATED_TIME = ?, CURRENT_STATUS = ?,
		    EXPIRY_TIME = ?, RECURRING_INDICATOR = ?
		WHERE CONSENT_ID = ? AND ORG_ID = ?
	`

	result, err := tx.ExecContext(
		ctx,
		query,
		consent.Receipt,
		consent.UpdatedTime,
		consent.CurrentStatus,
		consent.ExpiryTime,
		consent.RecurringIndicator,
		consent.ConsentID,
		consent.OrgID,
	)

	if err != nil {
		return fmt.Errorf("failed to update consent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("consent %s: %w", consent.ConsentID, models.ErrNotFound)
	}

	return nil
}

// UpdateStatusWithTx updates only the status of a consent using a transaction
func (dao *ConsentDAO) UpdateStatusWithTx(ctx context.Context, tx *database.Transaction, consentID, orgID, status string, updatedTime int64) error {
	query := `
		UPDATE FS_CONSENT
		SET CURRENT_STATUS = ?, UPDATED_TIME = ?
		WHERE CONSENT_ID = ? AND ORG_ID = ?
	`

	result, err := tx.ExecContext(ctx, query, status, updatedTime, consentID, orgID)
	if err != nil {
		return fmt.Errorf("failed to update consent status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("consent %s: %w", consentID, models.ErrNotFound)
	}

	return nil
}

// Search searches for consents based on provided parameters
func (dao *ConsentDAO) Search(ctx context.Context, params *models.ConsentSearchParams) ([]models.Consent, int, error) {
	var conditions []string
	var args []interface{}

	// Always filter by organization
	conditions = append(conditions, "c.ORG_ID = ?")
	args = append(args, params.OrgID)

	addInCondition := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		placeholders := strings.Repeat("?,", len(values)-1) + "?"
		conditions = append(conditions, fmt.Sprintf("%s IN (%s)", column, placeholders))
		for _, v := range values {
			args = append(args, v)
		}
	}

	addInCondition("c.CONSENT_ID", params.ConsentIDs)
	addInCondition("c.CLIENT_ID", params.ClientIDs)
	addInCondition("c.CONSENT_TYPE", params.ConsentTypes)
	addInCondition("c.CURRENT_STATUS", params.ConsentStatuses)

	// User filter requires a join with the auth resource table
	var joinClause string
	if len(params.UserIDs) > 0 {
		joinClause = " INNER JOIN FS_CONSENT_AUTH_RESOURCE ar ON c.CONSENT_ID = ar.CONSENT_ID AND c.ORG_ID = ar.ORG_ID"
		addInCondition("ar.USER_ID", params.UserIDs)
	}

	if params.FromTime != nil {
		conditions = append(conditions, "c.CREATED_TIME >= ?")
		args = append(args, *params.FromTime)
	}

	if params.ToTime != nil {
		conditions = append(conditions, "c.CREATED_TIME <= ?")
		args = append(args, *params.ToTime)
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(DISTINCT c.CONSENT_ID) FROM FS_CONSENT c%s WHERE %s", joinClause, whereClause)
	var total int
	err := dao.db.GetContext(ctx, &total, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count consents: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT c.CONSENT_ID, c.RECEIPT, c.CREATED_TIME, c.UPDATED_TIME, c.CLIENT_ID,
		       c.CONSENT_TYPE, c.CURRENT_STATUS, c.EXPIRY_TIME, c.RECURRING_INDICATOR, c.ORG_ID
		FROM FS_CONSENT c%s
		WHERE %s
		ORDER BY c.CREATED_TIME DESC
		LIMIT ? OFFSET ?
	`, joinClause, whereClause)

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	args = append(args, limit, offset)

	var consents []models.Consent
	err = dao.db.SelectContext(ctx, &consents, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search consents: %w", err)
	}

	return consents, total, nil
}

// FindExpiredOverdue returns non-terminal consents whose expiry time has
// passed, oldest expiry first. An empty orgID matches every organization.
// Callers sweep by repeatedly fetching the first batch: a consent moved to
// expired drops out of the result set, so no offset bookkeeping is needed.
func (dao *ConsentDAO) FindExpiredOverdue(ctx context.Context, orgID string, now int64, limit int) ([]models.Consent, error) {
	conditions := []string{
		"EXPIRY_TIME > 0",
		"EXPIRY_TIME <= ?",
		"CURRENT_STATUS IN (?, ?, ?)",
	}
	args := []interface{}{
		now,
		models.StatusAwaitingAuthorisation,
		models.StatusAuthorised,
		models.StatusAwaitingFurtherAuthorisation,
	}
	if orgID != "" {
		conditions = append(conditions, "ORG_ID = ?")
		args = append(args, orgID)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s FROM FS_CONSENT
		WHERE %s
		ORDER BY EXPIRY_TIME
		LIMIT ?
	`, consentColumns, strings.Join(conditions, " AND "))

	var consents []models.Consent
	if err := dao.db.SelectContext(ctx, &consents, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find overdue consents: %w", err)
	}

	return consents, nil
}

// Exists checks if a consent exists
func (dao *ConsentDAO) Exists(ctx context.Context, consentID, orgID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM FS_CONSENT WHERE CONSENT_ID = ? AND ORG_ID = ?)`

	var exists bool
	err := dao.db.GetContext(ctx, &exists, query, consentID, orgID)
	if err != nil {
		return false, fmt.Errorf("failed to check consent existence: %w", err)
	}

	return exists, nil
}

package dao

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wso2/financial-services-consent-mgt/internal/database"
	"github.com/wso2/financial-services-consent-mgt/internal/models"
)

// ConsentFileDAO handles database operations for consent files
type ConsentFileDAO struct {
	db *database.DB
}

// NewConsentFileDAO creates a new ConsentFileDAO instance
func NewConsentFileDAO(db *database.DB) *ConsentFileDAO {
	return &ConsentFileDAO{db: db}
}

// CreateWithTx stores a consent file using a transaction. A consent carries at
// most one file; a second insert for the same consent is a duplicate key.
func (dao *ConsentFileDAO) CreateWithTx(ctx context.Context, tx *database.Transaction, file *models.ConsentFile) error {
	query := `
		INSERT INTO FS_CONSENT_FILE (CONSENT_ID, CONSENT_FILE, ORG_ID)
		VALUES (:CONSENT_ID, :CONSENT_FILE, :ORG_ID)
	`

	_, err := tx.NamedExecContext(ctx, query, file)
	if err != nil {
		if database.IsDuplicateKeyError(err) {
			return fmt.Errorf("consent file for %s: %w", file.ConsentID, models.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to store consent file: %w", err)
	}

	return nil
}

// GetByConsentID retrieves the file stored for a consent
func (dao *ConsentFileDAO) GetByConsentID(ctx context.Context, consentID, orgID string) (*models.ConsentFile, error) {
	query := `
		SELECT CONSENT_ID, CONSENT_FILE, ORG_ID
		FROM FS_CONSENT_FILE
		WHERE CONSENT_ID = ? AND ORG_ID = ?
	`

	var file models.ConsentFile
	err := dao.db.GetContext(ctx, &file, query, consentID, orgID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("consent file for %s: %w", consentID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get consent file: %w", err)
	}

	return &file, nil
}

// DeleteByConsentIDWithTx removes the file stored for a consent
func (dao *ConsentFileDAO) DeleteByConsentIDWithTx(ctx context.Context, tx *database.Transaction, consentID, orgID string) error {
	query := `DELETE FROM FS_CONSENT_FILE WHERE CONSENT_ID = ? AND ORG_ID = ?`

	_, err := tx.ExecContext(ctx, query, consentID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete consent file: %w", err)
	}

	return nil
}

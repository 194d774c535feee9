package dao

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wso2/financial-services-consent-mgt/internal/database"
	"github.com/wso2/financial-services-consent-mgt/internal/models"
)

const mappingColumns = `MAPPING_ID, AUTH_ID, ACCOUNT_ID, PERMISSION, MAPPING_STATUS, ORG_ID`

// ConsentMappingDAO handles database operations for consent account mappings
type ConsentMappingDAO struct {
	db *database.DB
}

// NewConsentMappingDAO creates a new ConsentMappingDAO instance
func NewConsentMappingDAO(db *database.DB) *ConsentMappingDAO {
	return &ConsentMappingDAO{db: db}
}

// CreateWithTx inserts a new consent mapping using a transaction
func (dao *ConsentMappingDAO) CreateWithTx(ctx context.Context, tx *database.Transaction, mapping *models.ConsentMapping) error {
	query := `
		INSERT INTO FS_CONSENT_MAPPING (` + mappingColumns + `)
		VALUES (:MAPPING_ID, :AUTH_ID, :ACCOUNT_ID, :PERMISSION, :MAPPING_STATUS, :ORG_ID)
	`

	_, err := tx.NamedExecContext(ctx, query, mapping)
	if err != nil {
		return fmt.Errorf("failed to create consent mapping: %w", err)
	}

	return nil
}

// GetByID retrieves a consent mapping by its ID
func (dao *ConsentMappingDAO) GetByID(ctx context.Context, mappingID, orgID string) (*models.ConsentMapping, error) {
	query := `
		SELECT ` + mappingColumns + `
		FROM FS_CONSENT_MAPPING
		WHERE MAPPING_ID = ? AND ORG_ID = ?
	`

	var mapping models.ConsentMapping
	err := dao.db.GetContext(ctx, &mapping, query, mappingID, orgID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("consent mapping %s: %w", mappingID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get consent mapping: %w", err)
	}

	return &mapping, nil
}

// GetByAuthID retrieves all mappings for an authorization resource
func (dao *ConsentMappingDAO) GetByAuthID(ctx context.Context, authID, orgID string) ([]models.ConsentMapping, error) {
	query := `
		SELECT ` + mappingColumns + `
		FROM FS_CONSENT_MAPPING
		WHERE AUTH_ID = ? AND ORG_ID = ?
		ORDER BY MAPPING_ID
	`

	var mappings []models.ConsentMapping
	err := dao.db.SelectContext(ctx, &mappings, query, authID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get consent mappings: %w", err)
	}

	return mappings, nil
}

// GetByConsentID retrieves all mappings belonging to a consent across its
// authorization resources
func (dao *ConsentMappingDAO) GetByConsentID(ctx context.Context, consentID, orgID string) ([]models.ConsentMapping, error) {
	query := `
		SELECT m.MAPPING_ID, m.AUTH_ID, m.ACCOUNT_ID, m.PERMISSION, m.MAPPING_STATUS, m.ORG_ID
		FROM FS_CONSENT_MAPPING m
		INNER JOIN FS_CONSENT_AUTH_RESOURCE a ON m.AUTH_ID = a.AUTH_ID AND m.ORG_ID = a.ORG_ID
		WHERE a.CONSENT_ID = ? AND a.ORG_ID = ?
		ORDER BY m.MAPPING_ID
	`

	var mappings []models.ConsentMapping
	err := dao.db.SelectContext(ctx, &mappings, query, consentID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get consent mappings: %w", err)
	}

	return mappings, nil
}

// GetByConsentIDWithTx retrieves all mappings belonging to a consent using a transaction
func (dao *ConsentMappingDAO) GetByConsentIDWithTx(ctx context.Context, tx *database.Transaction, consentID, orgID string) ([]models.ConsentMapping, error) {
	query := `
		SELECT m.MAPPING_ID, m.AUTH_ID, m.ACCOUNT_ID, m.PERMISSION, m.MAPPING_STATUS, m.ORG_ID
		FROM FS_CONSENT_MAPPING m
		INNER JOIN FS_CONSENT_AUTH_RESOURCE a ON m.AUTH_ID = a.AUTH_ID AND m.ORG_ID = a.ORG_ID
		WHERE a.CONSENT_ID = ? AND a.ORG_ID = ?
		ORDER BY m.MAPPING_ID
	`

	var mappings []models.ConsentMapping
	err := tx.SelectContext(ctx, &mappings, query, consentID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get consent mappings: %w", err)
	}

	return mappings, nil
}

// UpdateWithTx updates a consent mapping using a transaction
func (dao *ConsentMappingDAO) UpdateWithTx(ctx context.Context, tx *database.Transaction, mapping *models.ConsentMapping) error {
	query := `
		UPDATE FS_CONSENT_MAPPING
		SET ACCOUNT_ID = :ACCOUNT_ID,
		    PERMISSION = :PERMISSION,
		    MAPPING_STATUS = :MAPPING_STATUS
		WHERE MAPPING_ID = :MAPPING_ID AND ORG_ID = :ORG_ID
	`

	result, err := tx.NamedExecContext(ctx, query, mapping)
	if err != nil {
		return fmt.Errorf("failed to update consent mapping: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("consent mapping %s: %w", mapping.MappingID, models.ErrNotFound)
	}

	return nil
}

// UpdateStatusWithTx updates the status of a set of mappings
func (dao *ConsentMappingDAO) UpdateStatusWithTx(ctx context.Context, tx *database.Transaction, mappingIDs []string, orgID, status string) error {
	if len(mappingIDs) == 0 {
		return nil
	}

	query := `UPDATE FS_CONSENT_MAPPING SET MAPPING_STATUS = ? WHERE MAPPING_ID IN (?) AND ORG_ID = ?`
	query, args, err := sqlxIn(query, status, mappingIDs, orgID)
	if err != nil {
		return fmt.Errorf("failed to build mapping status query: %w", err)
	}

	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update mapping statuses: %w", err)
	}

	return nil
}

// DeleteByAuthIDWithTx deletes all mappings for an authorization resource
func (dao *ConsentMappingDAO) DeleteByAuthIDWithTx(ctx context.Context, tx *database.Transaction, authID, orgID string) error {
	query := `DELETE FROM FS_CONSENT_MAPPING WHERE AUTH_ID = ? AND ORG_ID = ?`

	_, err := tx.ExecContext(ctx, query, authID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete consent mappings: %w", err)
	}

	return nil
}

package dao

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wso2/financial-services-consent-mgt/internal/database"
	"github.com/wso2/financial-services-consent-mgt/internal/models"
)

const authResourceColumns = `AUTH_ID, CONSENT_ID, AUTH_TYPE, USER_ID, AUTH_STATUS, UPDATED_TIME, ORG_ID`

// AuthResourceDAO handles database operations for consent authorization resources
type AuthResourceDAO struct {
	db *database.DB
}

// NewAuthResourceDAO creates a new AuthResourceDAO instance
func NewAuthResourceDAO(db *database.DB) *AuthResourceDAO {
	return &AuthResourceDAO{db: db}
}

// CreateWithTx inserts a new authorization resource using a transaction
func (dao *AuthResourceDAO) CreateWithTx(ctx context.Context, tx *database.Transaction, auth *models.ConsentAuthResource) error {
	query := `
		INSERT INTO FS_CONSENT_AUTH_RESOURCE (` + authResourceColumns + `)
		VALUES (:AUTH_ID, :CONSENT_ID, :AUTH_TYPE, :USER_ID, :AUTH_STATUS, :UPDATED_TIME, :ORG_ID)
	`

	_, err := tx.NamedExecContext(ctx, query, auth)
	if err != nil {
		return fmt.Errorf("failed to create authorization resource: %w", err)
	}

	return nil
}

// GetByID retrieves an authorization resource by its ID
func (dao *AuthResourceDAO) GetByID(ctx context.Context, authID, orgID string) (*models.ConsentAuthResource, error) {
	query := `
		SELECT ` + authResourceColumns + `
		FROM FS_CONSENT_AUTH_RESOURCE
		WHERE AUTH_ID = ? AND ORG_ID = ?
	`

	var auth models.ConsentAuthResource
	err := dao.db.GetContext(ctx, &auth, query, authID, orgID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("authorization resource %s: %w", authID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get authorization resource: %w", err)
	}

	return &auth, nil
}

// GetByConsentID retrieves all authorization resources for a consent
func (dao *AuthResourceDAO) GetByConsentID(ctx context.Context, consentID, orgID string) ([]models.ConsentAuthResource, error) {
	query := `
		SELECT ` + authResourceColumns + `
		FROM FS_CONSENT_AUTH_RESOURCE
		WHERE CONSENT_ID = ? AND ORG_ID = ?
		ORDER BY UPDATED_TIME, AUTH_ID
	`

	var auths []models.ConsentAuthResource
	err := dao.db.SelectContext(ctx, &auths, query, consentID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization resources: %w", err)
	}

	return auths, nil
}

// GetByConsentIDWithTx retrieves all authorization resources for a consent using a transaction
func (dao *AuthResourceDAO) GetByConsentIDWithTx(ctx context.Context, tx *database.Transaction, consentID, orgID string) ([]models.ConsentAuthResource, error) {
	query := `
		SELECT ` + authResourceColumns + `
		FROM FS_CONSENT_AUTH_RESOURCE
		WHERE CONSENT_ID = ? AND ORG_ID = ?
		ORDER BY UPDATED_TIME, AUTH_ID
	`

	var auths []models.ConsentAuthResource
	err := tx.SelectContext(ctx, &auths, query, consentID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization resources: %w", err)
	}

	return auths, nil
}

// UpdateWithTx updates an authorization resource using a transaction
func (dao *AuthResourceDAO) UpdateWithTx(ctx context.Context, tx *database.Transaction, auth *models.ConsentAuthResource) error {
	query := `
		UPDATE FS_CONSENT_AUTH_RESOURCE
		SET AUTH_TYPE = :AUTH_TYPE,
		    USER_ID = :USER_ID,
		    AUTH_STATUS = :AUTH_STATUS,
		    UPDATED_TIME = :UPDATED_TIME
		WHERE AUTH_ID = :AUTH_ID AND ORG_ID = :ORG_ID
	`

	result, err := tx.NamedExecContext(ctx, query, auth)
	if err != nil {
		return fmt.Errorf("failed to update authorization resource: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("authorization resource %s: %w", auth.AuthID, models.ErrNotFound)
	}

	return nil
}

// UpdateStatusWithTx updates only the status of an authorization resource
func (dao *AuthResourceDAO) UpdateStatusWithTx(ctx context.Context, tx *database.Transaction, authID, orgID, status string, updatedTime int64) error {
	query := `
		UPDATE FS_CONSENT_AUTH_RESOURCE
		SET AUTH_STATUS = ?, UPDATED_TIME = ?
		WHERE AUTH_ID = ? AND ORG_ID = ?
	`

	result, err := tx.ExecContext(ctx, query, status, updatedTime, authID, orgID)
	if err != nil {
		return fmt.Errorf("failed to update authorization resource status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("authorization resource %s: %w", authID, models.ErrNotFound)
	}

	return nil
}

// DeleteByConsentIDWithTx deletes all authorization resources of a consent
func (dao *AuthResourceDAO) DeleteByConsentIDWithTx(ctx context.Context, tx *database.Transaction, consentID, orgID string) error {
	query := `DELETE FROM FS_CONSENT_AUTH_RESOURCE WHERE CONSENT_ID = ? AND ORG_ID = ?`

	_, err := tx.ExecContext(ctx, query, consentID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete authorization resources: %w", err)
	}

	return nil
}

package dao

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wso2/financial-services-consent-mgt/internal/database"
	"github.com/wso2/financial-services-consent-mgt/internal/models"
)

// ConsentAttribute represents one row of the FS_CONSENT_ATTRIBUTE table
type ConsentAttribute struct {
	ConsentID string `db:"CONSENT_ID"`
	AttKey    string `db:"ATT_KEY"`
	AttValue  string `db:"ATT_VALUE"`
	OrgID     string `db:"ORG_ID"`
}

// DuplicateAttributeError names the attribute key that violated a store
// uniqueness constraint. It unwraps to models.ErrDuplicateKey so callers can
// match the class and inspect the key to decide whether the conflict is an
// idempotency race or bad data.
type DuplicateAttributeError struct {
	Key string
}

func (e *DuplicateAttributeError) Error() string {
	return fmt.Sprintf("attribute %s: %s", e.Key, models.ErrDuplicateKey)
}

func (e *DuplicateAttributeError) Unwrap() error {
	return models.ErrDuplicateKey
}

// ConsentAttributeDAO handles database operations for consent attributes
type ConsentAttributeDAO struct {
	db *database.DB
}

// NewConsentAttributeDAO creates a new ConsentAttributeDAO instance
func NewConsentAttributeDAO(db *database.DB) *ConsentAttributeDAO {
	return &ConsentAttributeDAO{db: db}
}

// CreateWithTx inserts new consent attributes using a transaction. A
// uniqueness violation surfaces as a DuplicateAttributeError naming the key;
// the idempotency facade relies on this when two concurrent creations race on
// one key.
func (dao *ConsentAttributeDAO) CreateWithTx(ctx context.Context, tx *database.Transaction, consentID, orgID string, attributes map[string]string) error {
	if len(attributes) == 0 {
		return nil // Nothing to insert
	}

	query := `
		INSERT INTO FS_CONSENT_ATTRIBUTE (CONSENT_ID, ATT_KEY, ATT_VALUE, ORG_ID)
		VALUES (?, ?, ?, ?)
	`

	for key, value := range attributes {
		_, err := tx.ExecContext(ctx, query, consentID, key, value, orgID)
		if err != nil {
			if database.IsDuplicateKeyError(err) {
				return &DuplicateAttributeError{Key: key}
			}
			return fmt.Errorf("failed to create consent attribute %s: %w", key, err)
		}
	}

	return nil
}

// GetByConsentID retrieves all attributes for a specific consent
func (dao *ConsentAttributeDAO) GetByConsentID(ctx context.Context, consentID, orgID string) (map[string]string, error) {
	query := `
		SELECT CONSENT_ID, ATT_KEY, ATT_VALUE, ORG_ID
		FROM FS_CONSENT_ATTRIBUTE
		WHERE CONSENT_ID = ? AND ORG_ID = ?
	`

	var attributes []ConsentAttribute
	err := dao.db.SelectContext(ctx, &attributes, query, consentID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get consent attributes: %w", err)
	}

	result := make(map[string]string)
	for _, attr := range attributes {
		result[attr.AttKey] = attr.AttValue
	}

	return result, nil
}

// GetByConsentIDWithTx retrieves all attributes for a specific consent using a transaction
func (dao *ConsentAttributeDAO) GetByConsentIDWithTx(ctx context.Context, tx *database.Transaction, consentID, orgID string) (map[string]string, error) {
	query := `
		SELECT CONSENT_ID, ATT_KEY, ATT_VALUE, ORG_ID
		FROM FS_CONSENT_ATTRIBUTE
		WHERE CONSENT_ID = ? AND ORG_ID = ?
	`

	var attributes []ConsentAttribute
	err := tx.SelectContext(ctx, &attributes, query, consentID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get consent attributes: %w", err)
	}

	result := make(map[string]string)
	for _, attr := range attributes {
		result[attr.AttKey] = attr.AttValue
	}

	return result, nil
}

// GetByKey retrieves a specific attribute value by key
func (dao *ConsentAttributeDAO) GetByKey(ctx context.Context, consentID, orgID, key string) (string, error) {
	query := `
		SELECT ATT_VALUE
		FROM FS_CONSENT_ATTRIBUTE
		WHERE CONSENT_ID = ? AND ORG_ID = ? AND ATT_KEY = ?
	`

	var value string
	err := dao.db.GetContext(ctx, &value, query, consentID, orgID, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("attribute %s: %w", key, models.ErrNotFound)
		}
		return "", fmt.Errorf("failed to get consent attribute: %w", err)
	}

	return value, nil
}

// ReplaceWithTx replaces all attributes of a consent inside a transaction
func (dao *ConsentAttributeDAO) ReplaceWithTx(ctx context.Context, tx *database.Transaction, consentID, orgID string, attributes map[string]string) error {
	if err := dao.DeleteByConsentIDWithTx(ctx, tx, consentID, orgID); err != nil {
		return fmt.Errorf("failed to delete existing attributes: %w", err)
	}

	return dao.CreateWithTx(ctx, tx, consentID, orgID, attributes)
}

// UpsertWithTx inserts or updates a single attribute inside a transaction
func (dao *ConsentAttributeDAO) UpsertWithTx(ctx context.Context, tx *database.Transaction, consentID, orgID, key, value string) error {
	query := `
		INSERT INTO FS_CONSENT_ATTRIBUTE (CONSENT_ID, ATT_KEY, ATT_VALUE, ORG_ID)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE ATT_VALUE = ?
	`

	_, err := tx.ExecContext(ctx, query, consentID, key, value, orgID, value)
	if err != nil {
		if database.IsDuplicateKeyError(err) {
			return &DuplicateAttributeError{Key: key}
		}
		return fmt.Errorf("failed to upsert consent attribute: %w", err)
	}

	return nil
}

// DeleteByConsentIDWithTx deletes all attributes for a consent using a transaction
func (dao *ConsentAttributeDAO) DeleteByConsentIDWithTx(ctx context.Context, tx *database.Transaction, consentID, orgID string) error {
	query := `DELETE FROM FS_CONSENT_ATTRIBUTE WHERE CONSENT_ID = ? AND ORG_ID = ?`

	_, err := tx.ExecContext(ctx, query, consentID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete consent attributes: %w", err)
	}

	return nil
}

// FindConsentIDsByAttribute finds all consent IDs that have a specific attribute key-value pair
func (dao *ConsentAttributeDAO) FindConsentIDsByAttribute(ctx context.Context, key, value, orgID string) ([]string, error) {
	query := `
		SELECT DISTINCT CONSENT_ID
		FROM FS_CONSENT_ATTRIBUTE
		WHERE ATT_KEY = ? AND ATT_VALUE = ? AND ORG_ID = ?
		ORDER BY CONSENT_ID
	`

	var consentIDs []string
	err := dao.db.SelectContext(ctx, &consentIDs, query, key, value, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to find consent IDs by attribute: %w", err)
	}

	return consentIDs, nil
}

// FindConsentIDsByAttributeKey finds all consent IDs that have a specific attribute key
func (dao *ConsentAttributeDAO) FindConsentIDsByAttributeKey(ctx context.Context, key, orgID string) ([]string, error) {
	query := `
		SELECT DISTINCT CONSENT_ID
		FROM FS_CONSENT_ATTRIBUTE
		WHERE ATT_KEY = ? AND ORG_ID = ?
		ORDER BY CONSENT_ID
	`

	var consentIDs []string
	err := dao.db.SelectContext(ctx, &consentIDs, query, key, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to find consent IDs by attribute key: %w", err)
	}

	return consentIDs, nil
}

package service

import (
	"context"
	"fmt"

	"github.com/wso2/financial-services-consent-mgt/internal/dao"
	"github.com/wso2/financial-services-consent-mgt/internal/database"
	"github.com/wso2/financial-services-consent-mgt/internal/models"
)

// ConsentStore aggregates the per-table DAOs into consent-level reads. It
// backs both the service facade and the idempotency validator, which consumes
// it through the narrow idempotency.Store interface.
type ConsentStore struct {
	consentDAO   *dao.ConsentDAO
	attributeDAO *dao.ConsentAttributeDAO
	authDAO      *dao.AuthResourceDAO
	mappingDAO   *dao.ConsentMappingDAO
	fileDAO      *dao.ConsentFileDAO
}

// NewConsentStore creates a new ConsentStore instance
func NewConsentStore(
	consentDAO *dao.ConsentDAO,
	attributeDAO *dao.ConsentAttributeDAO,
	authDAO *dao.AuthResourceDAO,
	mappingDAO *dao.ConsentMappingDAO,
	fileDAO *dao.ConsentFileDAO,
) *ConsentStore {
	return &ConsentStore{
		consentDAO:   consentDAO,
		attributeDAO: attributeDAO,
		authDAO:      authDAO,
		mappingDAO:   mappingDAO,
		fileDAO:      fileDAO,
	}
}

// GetDetailedConsent assembles the full consent aggregate: the consent row
// plus attributes, authorization resources and account mappings.
func (s *ConsentStore) GetDetailedConsent(ctx context.Context, consentID, orgID string) (*models.DetailedConsent, error) {
	consent, err := s.consentDAO.GetByID(ctx, consentID, orgID)
	if err != nil {
		return nil, err
	}

	attributes, err := s.attributeDAO.GetByConsentID(ctx, consentID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load consent attributes: %w", err)
	}

	authResources, err := s.authDAO.GetByConsentID(ctx, consentID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization resources: %w", err)
	}

	mappings, err := s.mappingDAO.GetByConsentID(ctx, consentID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account mappings: %w", err)
	}

	return &models.DetailedConsent{
		Consent:       *consent,
		Attributes:    attributes,
		AuthResources: authResources,
		Mappings:      mappings,
	}, nil
}

// GetDetailedConsentWithTx assembles the full aggregate inside a transaction,
// used by mutation paths that diff against the pre-amendment image.
func (s *ConsentStore) GetDetailedConsentWithTx(ctx context.Context, tx *database.Transaction, consentID, orgID string) (*models.DetailedConsent, error) {
	consent, err := s.consentDAO.GetByIDWithTx(ctx, tx, consentID, orgID)
	if err != nil {
		return nil, err
	}

	attributes, err := s.attributeDAO.GetByConsentIDWithTx(ctx, tx, consentID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load consent attributes: %w", err)
	}

	authResources, err := s.authDAO.GetByConsentIDWithTx(ctx, tx, consentID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization resources: %w", err)
	}

	mappings, err := s.mappingDAO.GetByConsentIDWithTx(ctx, tx, consentID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account mappings: %w", err)
	}

	return &models.DetailedConsent{
		Consent:       *consent,
		Attributes:    attributes,
		AuthResources: authResources,
		Mappings:      mappings,
	}, nil
}

// FindConsentIDsByAttribute finds consents carrying an attribute key-value pair
func (s *ConsentStore) FindConsentIDsByAttribute(ctx context.Context, key, value, orgID string) ([]string, error) {
	return s.attributeDAO.FindConsentIDsByAttribute(ctx, key, value, orgID)
}

// GetConsentFile retrieves the file stored for a consent
func (s *ConsentStore) GetConsentFile(ctx context.Context, consentID, orgID string) (*models.ConsentFile, error) {
	return s.fileDAO.GetByConsentID(ctx, consentID, orgID)
}

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wso2/financial-services-consent-mgt/internal/models"
)

// MockIdempotencyStore is a mock implementation of idempotency.Store
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) FindConsentIDsByAttribute(ctx context.Context, key, value, orgID string) ([]string, error) {
	args := m.Called(ctx, key, value, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockIdempotencyStore) GetDetailedConsent(ctx context.Context, consentID, orgID string) (*models.DetailedConsent, error) {
	args := m.Called(ctx, consentID, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DetailedConsent), args.Error(1)
}

func (m *MockIdempotencyStore) GetConsentFile(ctx context.Context, consentID, orgID string) (*models.ConsentFile, error) {
	args := m.Called(ctx, consentID, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConsentFile), args.Error(1)
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wso2/financial-services-consent-mgt/internal/config"
	"github.com/wso2/financial-services-consent-mgt/internal/dao"
	"github.com/wso2/financial-services-consent-mgt/internal/database"
	"github.com/wso2/financial-services-consent-mgt/internal/idempotency"
	"github.com/wso2/financial-services-consent-mgt/internal/models"
	"github.com/wso2/financial-services-consent-mgt/internal/service/mocks"
	"github.com/wso2/financial-services-consent-mgt/pkg/utils"
)

func serviceWithValidator(store idempotency.Store) *ConsentService {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	validator := idempotency.NewValidator(store, idempotency.Config{
		Enabled:             true,
		AllowedWindow:       24 * time.Hour,
		HeaderName:          "x-idempotency-key",
		AllowedConsentTypes: []string{"payments"},
	}, logger)

	return &ConsentService{
		validator: validator,
		logger:    logger,
	}
}

func validCreateRequest() *models.ConsentCreateRequest {
	return &models.ConsentCreateRequest{
		Receipt:       map[string]interface{}{"amount": "100", "currency": "GBP"},
		ConsentType:   "payments",
		CurrentStatus: models.StatusAwaitingAuthorisation,
	}
}

func createRequestContext() *RequestContext {
	return &RequestContext{
		ClientID:    "client-1",
		OrgID:       "org-1",
		Headers:     map[string]string{"x-idempotency-key": "ABC123"},
		RawPayload:  []byte(`{"amount":"100","currency":"GBP"}`),
		ContentType: "application/json",
	}
}

func storedPaymentConsent() *models.DetailedConsent {
	return &models.DetailedConsent{
		Consent: models.Consent{
			ConsentID:     "CONSENT-1111",
			Receipt:       models.JSON(`{"amount":"100","currency":"GBP"}`),
			ClientID:      "client-1",
			ConsentType:   "payments",
			CurrentStatus: models.StatusAwaitingAuthorisation,
			CreatedTime:   time.Now().UnixMilli() - time.Hour.Milliseconds(),
			OrgID:         "org-1",
		},
		Attributes: map[string]string{models.AttrIdempotencyKey: "ABC123"},
	}
}

func TestCreateConsent_ValidatesRequest(t *testing.T) {
	s := serviceWithValidator(&mocks.MockIdempotencyStore{})

	tests := []struct {
		name    string
		mutate  func(reqCtx *RequestContext, req *models.ConsentCreateRequest)
		wantErr string
	}{
		{
			name:    "missing client",
			mutate:  func(reqCtx *RequestContext, req *models.ConsentCreateRequest) { reqCtx.ClientID = "" },
			wantErr: "client",
		},
		{
			name:    "missing receipt",
			mutate:  func(reqCtx *RequestContext, req *models.ConsentCreateRequest) { req.Receipt = nil },
			wantErr: "receipt",
		},
		{
			name:    "unknown status",
			mutate:  func(reqCtx *RequestContext, req *models.ConsentCreateRequest) { req.CurrentStatus = "frozen" },
			wantErr: "unknown consent status",
		},
		{
			name: "expiry in the past",
			mutate: func(reqCtx *RequestContext, req *models.ConsentCreateRequest) {
				req.ExpiryTime = utils.GetCurrentTimeMillis() - 60_000
			},
			wantErr: "expiryTime",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqCtx := createRequestContext()
			req := validCreateRequest()
			tt.mutate(reqCtx, req)

			resp, replayed, err := s.CreateConsent(context.Background(), reqCtx, req)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Nil(t, resp)
			assert.False(t, replayed)
		})
	}
}

func TestCreateConsent_ReplayAnswersFromStoredConsent(t *testing.T) {
	store := &mocks.MockIdempotencyStore{}
	consent := storedPaymentConsent()
	store.On("FindConsentIDsByAttribute", mock.Anything, models.AttrIdempotencyKey, "ABC123", "org-1").
		Return([]string{"CONSENT-1111"}, nil)
	store.On("GetDetailedConsent", mock.Anything, "CONSENT-1111", "org-1").
		Return(consent, nil)

	s := serviceWithValidator(store)

	resp, replayed, err := s.CreateConsent(context.Background(), createRequestContext(), validCreateRequest())

	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, "CONSENT-1111", resp.ConsentID)
	assert.Equal(t, models.StatusAwaitingAuthorisation, resp.CurrentStatus)
	store.AssertExpectations(t)
}

func TestCreateConsent_KeyReuseIsRejected(t *testing.T) {
	store := &mocks.MockIdempotencyStore{}
	consent := storedPaymentConsent()
	store.On("FindConsentIDsByAttribute", mock.Anything, models.AttrIdempotencyKey, "ABC123", "org-1").
		Return([]string{"CONSENT-1111"}, nil)
	store.On("GetDetailedConsent", mock.Anything, "CONSENT-1111", "org-1").
		Return(consent, nil)

	s := serviceWithValidator(store)

	// same key, different payload
	reqCtx := createRequestContext()
	reqCtx.RawPayload = []byte(`{"amount":"999","currency":"GBP"}`)
	req := validCreateRequest()
	req.Receipt = map[string]interface{}{"amount": "999", "currency": "GBP"}

	resp, replayed, err := s.CreateConsent(context.Background(), reqCtx, req)

	assert.ErrorIs(t, err, ErrIdempotencyViolation)
	assert.Nil(t, resp)
	assert.False(t, replayed)
}

func TestCreateConsent_ClientMismatchRejectedWithSameError(t *testing.T) {
	store := &mocks.MockIdempotencyStore{}
	consent := storedPaymentConsent()
	store.On("FindConsentIDsByAttribute", mock.Anything, models.AttrIdempotencyKey, "ABC123", "org-1").
		Return([]string{"CONSENT-1111"}, nil)
	store.On("GetDetailedConsent", mock.Anything, "CONSENT-1111", "org-1").
		Return(consent, nil)

	s := serviceWithValidator(store)

	reqCtx := createRequestContext()
	reqCtx.ClientID = "client-2"

	_, _, err := s.CreateConsent(context.Background(), reqCtx, validCreateRequest())

	// must be indistinguishable from any other idempotency failure
	assert.ErrorIs(t, err, ErrIdempotencyViolation)
}

func TestCreateConsent_StoreFailureFailsClosed(t *testing.T) {
	store := &mocks.MockIdempotencyStore{}
	store.On("FindConsentIDsByAttribute", mock.Anything, models.AttrIdempotencyKey, "ABC123", "org-1").
		Return(nil, errors.New("connection refused"))

	s := serviceWithValidator(store)

	resp, replayed, err := s.CreateConsent(context.Background(), createRequestContext(), validCreateRequest())

	assert.ErrorIs(t, err, ErrIdempotencyViolation)
	assert.Nil(t, resp)
	assert.False(t, replayed)
}

func serviceWithMockDB(t *testing.T, store idempotency.Store) (*ConsentService, sqlmock.Sqlmock) {
	mockDB, smock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	db := database.Wrap(sqlx.NewDb(mockDB, "mysql"), logger)

	validator := idempotency.NewValidator(store, idempotency.Config{
		Enabled:             true,
		AllowedWindow:       24 * time.Hour,
		HeaderName:          "x-idempotency-key",
		AllowedConsentTypes: []string{"payments"},
	}, logger)

	return &ConsentService{
		consentDAO:   dao.NewConsentDAO(db),
		attributeDAO: dao.NewConsentAttributeDAO(db),
		validator:    validator,
		db:           db,
		logger:       logger,
	}, smock
}

// Two consents of the same client may share ordinary business attributes such
// as jwks_uri. A duplicate-key failure on one of those must surface as a plain
// conflict, never as an idempotency violation.
func TestCreateConsent_SharedBusinessAttributeIsNotAnIdempotencyConflict(t *testing.T) {
	s, smock := serviceWithMockDB(t, &mocks.MockIdempotencyStore{})

	smock.ExpectBegin()
	smock.ExpectExec("INSERT INTO FS_CONSENT").WillReturnResult(sqlmock.NewResult(0, 1))
	smock.ExpectExec("INSERT INTO FS_CONSENT_ATTRIBUTE").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	smock.ExpectRollback()

	reqCtx := createRequestContext()
	reqCtx.Headers = map[string]string{}
	req := validCreateRequest()
	req.Attributes = map[string]string{"jwks_uri": "https://bank.example/jwks"}

	resp, replayed, err := s.CreateConsent(context.Background(), reqCtx, req)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIdempotencyViolation)
	assert.ErrorIs(t, err, models.ErrDuplicateKey)
	assert.Nil(t, resp)
	assert.False(t, replayed)
	assert.NoError(t, smock.ExpectationsWereMet())
}

// Two concurrent creations racing on the same idempotency key: the loser hits
// the unique index on the stored key attribute and gets the conflict answer.
func TestCreateConsent_RacedIdempotencyKeyIsRejected(t *testing.T) {
	store := &mocks.MockIdempotencyStore{}
	store.On("FindConsentIDsByAttribute", mock.Anything, models.AttrIdempotencyKey, "ABC123", "org-1").
		Return([]string{}, nil)

	s, smock := serviceWithMockDB(t, store)

	smock.ExpectBegin()
	smock.ExpectExec("INSERT INTO FS_CONSENT").WillReturnResult(sqlmock.NewResult(0, 1))
	smock.ExpectExec("INSERT INTO FS_CONSENT_ATTRIBUTE").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	smock.ExpectRollback()

	resp, replayed, err := s.CreateConsent(context.Background(), createRequestContext(), validCreateRequest())

	assert.ErrorIs(t, err, ErrIdempotencyViolation)
	assert.Nil(t, resp)
	assert.False(t, replayed)
	assert.NoError(t, smock.ExpectationsWereMet())
}

func sweepService(t *testing.T) (*ConsentService, sqlmock.Sqlmock) {
	mockDB, smock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	db := database.Wrap(sqlx.NewDb(mockDB, "mysql"), logger)

	consentDAO := dao.NewConsentDAO(db)
	attributeDAO := dao.NewConsentAttributeDAO(db)
	authDAO := dao.NewAuthResourceDAO(db)
	mappingDAO := dao.NewConsentMappingDAO(db)

	return &ConsentService{
		consentDAO:   consentDAO,
		attributeDAO: attributeDAO,
		authDAO:      authDAO,
		mappingDAO:   mappingDAO,
		store:        NewConsentStore(consentDAO, attributeDAO, authDAO, mappingDAO, dao.NewConsentFileDAO(db)),
		recorder: NewAuditRecorder(dao.NewStatusAuditDAO(db), dao.NewConsentHistoryDAO(db),
			config.AmendmentHistoryConfig{Enabled: false}, logger),
		db:     db,
		logger: logger,
	}, smock
}

// expectStatusTransition queues the transactional query sequence UpdateConsentStatus
// issues when moving a consent to a new status.
func expectStatusTransition(smock sqlmock.Sqlmock, consentID, orgID, fromStatus string) {
	smock.ExpectBegin()
	smock.ExpectQuery("SELECT (.+) FROM FS_CONSENT WHERE CONSENT_ID = \\? AND ORG_ID = \\?").
		WithArgs(consentID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{
			"CONSENT_ID", "RECEIPT", "CREATED_TIME", "UPDATED_TIME", "CLIENT_ID",
			"CONSENT_TYPE", "CURRENT_STATUS", "EXPIRY_TIME", "RECURRING_INDICATOR", "ORG_ID",
		}).AddRow(consentID, `{}`, 1000, 1000, "client-1", "accounts", fromStatus, 5000, nil, orgID))
	smock.ExpectQuery("SELECT CONSENT_ID, ATT_KEY, ATT_VALUE, ORG_ID\\s+FROM FS_CONSENT_ATTRIBUTE").
		WithArgs(consentID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"CONSENT_ID", "ATT_KEY", "ATT_VALUE", "ORG_ID"}))
	smock.ExpectQuery("SELECT (.+)\\s+FROM FS_CONSENT_AUTH_RESOURCE").
		WithArgs(consentID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{
			"AUTH_ID", "CONSENT_ID", "AUTH_TYPE", "USER_ID", "AUTH_STATUS", "UPDATED_TIME", "ORG_ID",
		}))
	smock.ExpectQuery("SELECT m.MAPPING_ID, (.+)\\s+FROM FS_CONSENT_MAPPING m").
		WithArgs(consentID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{
			"MAPPING_ID", "AUTH_ID", "ACCOUNT_ID", "PERMISSION", "MAPPING_STATUS", "ORG_ID",
		}))
	smock.ExpectExec("UPDATE FS_CONSENT\\s+SET CURRENT_STATUS = \\?, UPDATED_TIME = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	smock.ExpectExec("INSERT INTO FS_CONSENT_STATUS_AUDIT").
		WillReturnResult(sqlmock.NewResult(1, 1))
	smock.ExpectCommit()
}

// Each sweep pass re-reads the first page of overdue consents rather than
// advancing an offset, because every consent it expires drops out of the
// candidate set. Two candidates arriving in separate passes must both expire.
func TestExpireOverdueConsents_SweepsWholeBacklog(t *testing.T) {
	s, smock := sweepService(t)

	overdueRow := func(consentID, orgID string) *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"CONSENT_ID", "RECEIPT", "CREATED_TIME", "UPDATED_TIME", "CLIENT_ID",
			"CONSENT_TYPE", "CURRENT_STATUS", "EXPIRY_TIME", "RECURRING_INDICATOR", "ORG_ID",
		}).AddRow(consentID, `{}`, 1000, 1000, "client-1", "accounts", "authorised", 5000, nil, orgID)
	}

	smock.ExpectQuery("SELECT (.+) FROM FS_CONSENT\\s+WHERE EXPIRY_TIME > 0").
		WillReturnRows(overdueRow("CONSENT-1", "org-1"))
	expectStatusTransition(smock, "CONSENT-1", "org-1", "authorised")
	smock.ExpectQuery("SELECT (.+) FROM FS_CONSENT\\s+WHERE EXPIRY_TIME > 0").
		WillReturnRows(overdueRow("CONSENT-2", "org-2"))
	expectStatusTransition(smock, "CONSENT-2", "org-2", "authorised")
	smock.ExpectQuery("SELECT (.+) FROM FS_CONSENT\\s+WHERE EXPIRY_TIME > 0").
		WillReturnRows(sqlmock.NewRows([]string{"CONSENT_ID"}))

	expired, err := s.ExpireOverdueConsents(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, 2, expired)
	assert.NoError(t, smock.ExpectationsWereMet())
}

// A consent the sweep cannot expire stays in the candidate set, so a pass that
// makes no progress must end the sweep instead of refetching the same row.
func TestExpireOverdueConsents_StopsWhenStuck(t *testing.T) {
	s, smock := sweepService(t)

	smock.ExpectQuery("SELECT (.+) FROM FS_CONSENT\\s+WHERE EXPIRY_TIME > 0").
		WillReturnRows(sqlmock.NewRows([]string{
			"CONSENT_ID", "RECEIPT", "CREATED_TIME", "UPDATED_TIME", "CLIENT_ID",
			"CONSENT_TYPE", "CURRENT_STATUS", "EXPIRY_TIME", "RECURRING_INDICATOR", "ORG_ID",
		}).AddRow("CONSENT-1", `{}`, 1000, 1000, "client-1", "accounts", "authorised", 5000, nil, "org-1"))
	smock.ExpectBegin()
	smock.ExpectQuery("SELECT (.+) FROM FS_CONSENT WHERE CONSENT_ID = \\? AND ORG_ID = \\?").
		WithArgs("CONSENT-1", "org-1").
		WillReturnError(errors.New("driver: bad connection"))
	smock.ExpectRollback()

	expired, err := s.ExpireOverdueConsents(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, 0, expired)
	assert.NoError(t, smock.ExpectationsWereMet())
}

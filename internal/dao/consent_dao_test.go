package dao

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/financial-services-consent-mgt/internal/database"
	"github.com/wso2/financial-services-consent-mgt/internal/models"
)

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return database.Wrap(sqlx.NewDb(mockDB, "mysql"), logger), mock
}

var consentRowColumns = []string{
	"CONSENT_ID", "RECEIPT", "CREATED_TIME", "UPDATED_TIME", "CLIENT_ID",
	"CONSENT_TYPE", "CURRENT_STATUS", "EXPIRY_TIME", "RECURRING_INDICATOR", "ORG_ID",
}

func TestConsentDAO_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	dao := NewConsentDAO(db)

	mock.ExpectQuery("SELECT (.+) FROM FS_CONSENT WHERE CONSENT_ID = \\? AND ORG_ID = \\?").
		WithArgs("CONSENT-1111", "org-1").
		WillReturnRows(sqlmock.NewRows(consentRowColumns).
			AddRow("CONSENT-1111", `{"scope":"accounts"}`, 1000, 2000, "client-1",
				"accounts", "authorised", 0, nil, "org-1"))

	consent, err := dao.GetByID(context.Background(), "CONSENT-1111", "org-1")

	require.NoError(t, err)
	assert.Equal(t, "CONSENT-1111", consent.ConsentID)
	assert.Equal(t, "client-1", consent.ClientID)
	assert.Equal(t, "authorised", consent.CurrentStatus)
	assert.JSONEq(t, `{"scope":"accounts"}`, string(consent.Receipt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentDAO_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	dao := NewConsentDAO(db)

	mock.ExpectQuery("SELECT (.+) FROM FS_CONSENT WHERE CONSENT_ID = \\? AND ORG_ID = \\?").
		WithArgs("CONSENT-miss", "org-1").
		WillReturnRows(sqlmock.NewRows(consentRowColumns))

	consent, err := dao.GetByID(context.Background(), "CONSENT-miss", "org-1")

	assert.Nil(t, consent)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentDAO_UpdateStatusWithTx(t *testing.T) {
	db, mock := newMockDB(t)
	dao := NewConsentDAO(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE FS_CONSENT").
		WithArgs("revoked", int64(5000), "CONSENT-1111", "org-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTx(context.Background())
	require.NoError(t, err)

	err = dao.UpdateStatusWithTx(context.Background(), tx, "CONSENT-1111", "org-1", "revoked", 5000)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentDAO_UpdateStatusWithTx_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	dao := NewConsentDAO(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE FS_CONSENT").
		WithArgs("revoked", int64(5000), "CONSENT-miss", "org-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := db.BeginTx(context.Background())
	require.NoError(t, err)

	err = dao.UpdateStatusWithTx(context.Background(), tx, "CONSENT-miss", "org-1", "revoked", 5000)
	assert.ErrorIs(t, err, models.ErrNotFound)
	require.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentDAO_Search_FiltersAndPagination(t *testing.T) {
	db, mock := newMockDB(t)
	dao := NewConsentDAO(db)

	mock.ExpectQuery("SELECT COUNT\\(DISTINCT c.CONSENT_ID\\) FROM FS_CONSENT c WHERE").
		WithArgs("org-1", "client-1", "authorised").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	mock.ExpectQuery("SELECT DISTINCT c.CONSENT_ID, (.+) FROM FS_CONSENT c").
		WithArgs("org-1", "client-1", "authorised", 10, 0).
		WillReturnRows(sqlmock.NewRows(consentRowColumns).
			AddRow("CONSENT-1", `{}`, 1000, 1000, "client-1", "accounts", "authorised", 0, nil, "org-1").
			AddRow("CONSENT-2", `{}`, 900, 900, "client-1", "accounts", "authorised", 0, nil, "org-1"))

	consents, total, err := dao.Search(context.Background(), &models.ConsentSearchParams{
		ClientIDs:       []string{"client-1"},
		ConsentStatuses: []string{"authorised"},
		Limit:           10,
		OrgID:           "org-1",
	})

	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, consents, 2)
	assert.Equal(t, "CONSENT-1", consents[0].ConsentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentDAO_FindExpiredOverdue(t *testing.T) {
	db, mock := newMockDB(t)
	dao := NewConsentDAO(db)

	mock.ExpectQuery("SELECT (.+) FROM FS_CONSENT\\s+WHERE EXPIRY_TIME > 0 AND EXPIRY_TIME <= \\? AND CURRENT_STATUS IN (.+) AND ORG_ID = \\?").
		WithArgs(int64(9000), "awaitingAuthorisation", "authorised", "awaitingFurtherAuthorisation", "org-1", 100).
		WillReturnRows(sqlmock.NewRows(consentRowColumns).
			AddRow("CONSENT-1", `{}`, 1000, 1000, "client-1", "accounts", "authorised", 5000, nil, "org-1"))

	consents, err := dao.FindExpiredOverdue(context.Background(), "org-1", 9000, 100)

	require.NoError(t, err)
	require.Len(t, consents, 1)
	assert.Equal(t, "CONSENT-1", consents[0].ConsentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentDAO_FindExpiredOverdue_AllOrgs(t *testing.T) {
	db, mock := newMockDB(t)
	dao := NewConsentDAO(db)

	mock.ExpectQuery("SELECT (.+) FROM FS_CONSENT\\s+WHERE EXPIRY_TIME > 0 AND EXPIRY_TIME <= \\? AND CURRENT_STATUS IN").
		WithArgs(int64(9000), "awaitingAuthorisation", "authorised", "awaitingFurtherAuthorisation", 100).
		WillReturnRows(sqlmock.NewRows(consentRowColumns).
			AddRow("CONSENT-1", `{}`, 1000, 1000, "client-1", "accounts", "authorised", 5000, nil, "org-1").
			AddRow("CONSENT-2", `{}`, 1000, 1000, "client-2", "payments", "authorised", 6000, nil, "org-2"))

	consents, err := dao.FindExpiredOverdue(context.Background(), "", 9000, 100)

	require.NoError(t, err)
	assert.Len(t, consents, 2)
	assert.Equal(t, "org-2", consents[1].OrgID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentAttributeDAO_CreateWithTx_DuplicateNamesKey(t *testing.T) {
	db, mock := newMockDB(t)
	dao := NewConsentAttributeDAO(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO FS_CONSENT_ATTRIBUTE").
		WithArgs("CONSENT-1", "jwks_uri", "https://bank.example/jwks", "org-1").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	tx, err := db.BeginTx(context.Background())
	require.NoError(t, err)

	err = dao.CreateWithTx(context.Background(), tx, "CONSENT-1", "org-1",
		map[string]string{"jwks_uri": "https://bank.example/jwks"})

	var dup *DuplicateAttributeError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "jwks_uri", dup.Key)
	assert.ErrorIs(t, err, models.ErrDuplicateKey)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentAttributeDAO_FindConsentIDsByAttribute(t *testing.T) {
	db, mock := newMockDB(t)
	dao := NewConsentAttributeDAO(db)

	mock.ExpectQuery("SELECT DISTINCT CONSENT_ID FROM FS_CONSENT_ATTRIBUTE").
		WithArgs("IdempotencyKey", "ABC123", "org-1").
		WillReturnRows(sqlmock.NewRows([]string{"CONSENT_ID"}).AddRow("CONSENT-1111"))

	ids, err := dao.FindConsentIDsByAttribute(context.Background(), "IdempotencyKey", "ABC123", "org-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"CONSENT-1111"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentHistoryDAO_GetByRecordIDs_Empty(t *testing.T) {
	db, _ := newMockDB(t)
	dao := NewConsentHistoryDAO(db)

	records, err := dao.GetByRecordIDs(context.Background(), nil, "org-1")

	require.NoError(t, err)
	assert.Nil(t, records)
}

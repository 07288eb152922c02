package registry

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresMock(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS domain_mappings").WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewSQLStoreFromDB(context.Background(), db, DialectPostgres)
	require.NoError(t, err)
	return store, mock
}

func TestSQLStorePostgresGet(t *testing.T) {
	store, mock := newPostgresMock(t)

	rows := sqlmock.NewRows([]string{"domain", "site_id", "scheme", "active", "updated_at"}).
		AddRow("shop.example", int64(2), int64(1), int64(1), int64(1_700_000_000))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT domain, site_id, scheme, active, updated_at FROM domain_mappings WHERE domain = $1")).
		WithArgs("shop.example").
		WillReturnRows(rows)

	m, err := store.Get(context.Background(), "Shop.Example")
	require.NoError(t, err)
	assert.Equal(t, "shop.example", m.Domain)
	assert.Equal(t, int64(2), m.SiteID)
	assert.True(t, m.ForceSSL)
	assert.True(t, m.Active)
	assert.Equal(t, int64(1_700_000_000), m.UpdatedAt.Unix())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorePostgresGetNotFound(t *testing.T) {
	store, mock := newPostgresMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM domain_mappings WHERE domain = $1")).
		WithArgs("missing.example").
		WillReturnRows(sqlmock.NewRows([]string{"domain", "site_id", "scheme", "active", "updated_at"}))

	_, err := store.Get(context.Background(), "missing.example")
	assert.ErrorIs(t, err, ErrDomainNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorePostgresPut(t *testing.T) {
	store, mock := newPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5)")).
		WithArgs("shop.example", int64(2), 1, 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Put(context.Background(), Mapping{Domain: "shop.example", SiteID: 2, ForceSSL: true, Active: true})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorePostgresSetSSLCapabilityMissing(t *testing.T) {
	store, mock := newPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE domain_mappings SET scheme = $1, updated_at = $2 WHERE domain = $3")).
		WithArgs(0, sqlmock.AnyArg(), "missing.example").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SetSSLCapability(context.Background(), "missing.example", false)
	assert.ErrorIs(t, err, ErrDomainNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorePostgresQueryError(t *testing.T) {
	store, mock := newPostgresMock(t)

	mock.ExpectQuery("FROM domain_mappings").WillReturnError(errors.New("connection refused"))

	_, err := store.Get(context.Background(), "shop.example")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDomainNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreSchemaError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	_, err = NewSQLStoreFromDB(context.Background(), db, DialectPostgres)
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &SQLStore{dialect: DialectSQLite}
	assert.Equal(t, "a = ? AND b = ?", lite.rebind("a = ? AND b = ?"))
}

func TestNewSQLStoreValidation(t *testing.T) {
	_, err := NewSQLStore(context.Background(), "mysql", "dsn")
	assert.Error(t, err)

	_, err = NewSQLStore(context.Background(), DialectSQLite, "")
	assert.Error(t, err)
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LegalDoc-Intelligence/internal/config"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
)

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "legaldoc",
		Password: "pw",
		DBName:   "legaldoc",
		SSLMode:  "disable",
		MaxConns: 7,
	}
}

func stubSQLOpen(t *testing.T, db *sql.DB, err error) *[]string {
	t.Helper()
	original := sqlOpen
	t.Cleanup(func() { sqlOpen = original })
	var calls []string
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		calls = append(calls, driver, dsn)
		return db, err
	}
	return &calls
}

func TestNewConnection_Success(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	calls := stubSQLOpen(t, db, nil)

	mock.ExpectPing()

	conn, err := NewConnection(testPostgresConfig(), logging.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, db, conn.DB())
	assert.Equal(t, []string{"pgx", "postgres://legaldoc:pw@localhost:5432/legaldoc?sslmode=disable"}, *calls)
	assert.Equal(t, 7, db.Stats().MaxOpenConnections)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewConnection_PingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	stubSQLOpen(t, db, nil)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	conn, err := NewConnection(testPostgresConfig(), nil)
	assert.Nil(t, conn)

	var appErr *pkgerrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, pkgerrors.ErrCodeDatabaseError, appErr.Code)
	assert.Equal(t, "localhost:5432", appErr.Detail)
	assert.Contains(t, appErr.Cause.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewConnection_OpenFailure(t *testing.T) {
	stubSQLOpen(t, nil, errors.New("open failed"))

	conn, err := NewConnection(testPostgresConfig(), nil)
	assert.Nil(t, conn)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func TestConfigurePool_Defaults(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	configurePool(db, config.PostgresConfig{})
	assert.Equal(t, 10, db.Stats().MaxOpenConnections)

	configurePool(db, config.PostgresConfig{MaxConns: 3, ConnMaxLifetime: time.Hour})
	assert.Equal(t, 3, db.Stats().MaxOpenConnections)
}

func TestConnection_HealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	conn := NewConnectionWithDB(db, nil)

	mock.ExpectPing()
	assert.NoError(t, conn.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("timeout"))
	err = conn.HealthCheck(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_Close_Idempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	conn := NewConnectionWithDB(db, logging.NewNopLogger())

	mock.ExpectClose()
	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM documents").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = WithTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", "d1")
			return err
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = WithTransaction(context.Background(), db, func(context.Context, *sql.Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and repanics", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = WithTransaction(context.Background(), db, func(context.Context, *sql.Tx) error { panic("bad") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
		err = WithTransaction(context.Background(), db, func(context.Context, *sql.Tx) error { return nil })
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
	})
}

//Personal.AI order the ending

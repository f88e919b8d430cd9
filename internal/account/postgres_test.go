package account

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmend/backend/internal/models"
)

var userCols = []string{"id", "email", "name", "password_hash", "image_url", "is_staff", "is_active", "apple_id", "reset_code", "created_at", "updated_at"}

func TestPostgresByEmail(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM users WHERE email = \\$1").
		WithArgs("ana@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "ana@example.com", "Ana", "hash", "https://cdn/x.png", false, true, nil, "1234567", at, at))
	mock.ExpectQuery("FROM users WHERE email = \\$1").
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows(userCols))

	store := NewPostgresStore(conn)
	u, err := store.ByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	require.NotNil(t, u.ImageURL)
	assert.Equal(t, "https://cdn/x.png", *u.ImageURL)
	assert.Nil(t, u.AppleID)
	require.NotNil(t, u.ResetCode)
	assert.Equal(t, "1234567", *u.ResetCode)

	_, err = store.ByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateDuplicateEmail(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	err = NewPostgresStore(conn).Create(context.Background(), &models.User{ID: "u1", Email: "ana@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetResetCodeTaken(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("UPDATE users SET reset_code").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_reset_code_key"})

	err = NewPostgresStore(conn).SetResetCode(context.Background(), "u1", "1234567")
	assert.ErrorIs(t, err, ErrCodeTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResetPasswordClearsCode(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("SET password_hash = \\$2, reset_code = NULL").
		WithArgs("u1", "newhash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresStore(conn).ResetPassword(context.Background(), "u1", "newhash"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteMissing(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("DELETE FROM users").
		WithArgs("u9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPostgresStore(conn).Delete(context.Background(), "u9")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

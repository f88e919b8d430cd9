package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmend/backend/internal/apierr"
)

func fixedNow() time.Time { return time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC) }

func TestCreateStoresIssuedPlan(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(sqlmock.AnyArg(), "u1", "free", "0.00",
			time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), true, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			"Free", 1, fixedNow()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewService(NewPostgresStore(conn))
	svc.now = fixedNow

	st, err := svc.Create(context.Background(), "u1", 1)
	require.NoError(t, err)
	assert.NotEmpty(t, st.Subscription.ID)
	require.NotNil(t, st.TrialValid)
	assert.True(t, *st.TrialValid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaidPlanHasNoTrialValidity(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("INSERT INTO subscriptions").WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewService(NewPostgresStore(conn))
	svc.now = fixedNow

	st, err := svc.Create(context.Background(), "u1", 3)
	require.NoError(t, err)
	assert.Equal(t, "29.99", st.Subscription.Amount.String())
	assert.Nil(t, st.TrialValid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUnknownPlanWritesNothing(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	_, err = NewService(NewPostgresStore(conn)).Create(context.Background(), "u1", 7)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeValidation))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrent(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	cols := []string{"id", "plan", "amount", "expiry_date", "is_active", "payment_date", "description", "plan_map_id", "created_at"}
	mock.ExpectQuery("FROM subscriptions").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"s1", "free", []byte("0.00"),
			time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), true, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC),
			"Free", int64(1), time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC),
		))
	mock.ExpectQuery("FROM subscriptions").
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows(cols))

	svc := NewService(NewPostgresStore(conn))
	svc.now = fixedNow

	st, err := svc.Current(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, st.Subscription)
	assert.Equal(t, 1, st.Subscription.PlanMapID)
	require.NotNil(t, st.TrialValid)
	assert.False(t, *st.TrialValid, "trial expired the day before")

	st, err = svc.Current(context.Background(), "u2")
	require.NoError(t, err)
	assert.Nil(t, st.Subscription)
	assert.Nil(t, st.TrialValid)
	require.NoError(t, mock.ExpectationsWereMet())
}

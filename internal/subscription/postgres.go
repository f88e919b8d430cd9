package subscription

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mindmend/backend/internal/models"
)

type PostgresStore struct {
	conn *sql.DB
}

func NewPostgresStore(conn *sql.DB) *PostgresStore {
	return &PostgresStore{conn: conn}
}

func (p *PostgresStore) Insert(ctx context.Context, sub *models.Subscription) error {
	_, err := p.conn.ExecContext(ctx, `
		INSERT INTO subscriptions (id, user_id, plan, amount, expiry_date, is_active, payment_date, description, plan_map_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sub.ID, sub.UserID, sub.Plan, sub.Amount,
		sub.ExpiryDate, sub.IsActive, sub.PaymentDate,
		sub.Description, sub.PlanMapID, sub.CreatedAt,
	)
	return err
}

func (p *PostgresStore) Latest(ctx context.Context, userID string) (*models.Subscription, error) {
	var (
		sub     = models.Subscription{UserID: userID}
		planMap sql.NullInt64
	)
	err := p.conn.QueryRowContext(ctx, `
		SELECT id, plan, amount, expiry_date, is_active, payment_date, description, plan_map_id, created_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		userID,
	).Scan(
		&sub.ID, &sub.Plan, &sub.Amount,
		&sub.ExpiryDate, &sub.IsActive, &sub.PaymentDate,
		&sub.Description, &planMap, &sub.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub.PlanMapID = int(planMap.Int64)
	return &sub, nil
}

package account

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mindmend/backend/internal/db"
	"github.com/mindmend/backend/internal/models"
)

const userColumns = `id, email, name, password_hash, image_url, is_staff, is_active, apple_id, reset_code, created_at, updated_at`

type PostgresStore struct {
	conn *sql.DB
	now  func() time.Time
}

func NewPostgresStore(conn *sql.DB) *PostgresStore {
	return &PostgresStore{conn: conn, now: time.Now}
}

func (p *PostgresStore) Create(ctx context.Context, u *models.User) error {
	now := p.now().UTC()
	_, err := p.conn.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, image_url, is_staff, is_active, apple_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.ImageURL, u.IsStaff, u.IsActive, u.AppleID, now,
	)
	if db.IsUniqueViolation(err, "users_email_key") {
		return ErrEmailTaken
	}
	if err != nil {
		return err
	}
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (p *PostgresStore) ByID(ctx context.Context, id string) (*models.User, error) {
	return p.one(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (p *PostgresStore) ByEmail(ctx context.Context, email string) (*models.User, error) {
	return p.one(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (p *PostgresStore) ByAppleID(ctx context.Context, appleID string) (*models.User, error) {
	return p.one(ctx, `SELECT `+userColumns+` FROM users WHERE apple_id = $1`, appleID)
}

func (p *PostgresStore) ByResetCode(ctx context.Context, code string) (*models.User, error) {
	return p.one(ctx, `SELECT `+userColumns+` FROM users WHERE reset_code = $1`, code)
}

func (p *PostgresStore) LinkApple(ctx context.Context, id, appleID string) error {
	return p.update(ctx, `UPDATE users SET apple_id = $2, updated_at = $3 WHERE id = $1`, id, appleID, p.now().UTC())
}

func (p *PostgresStore) SetResetCode(ctx context.Context, id, code string) error {
	err := p.update(ctx, `UPDATE users SET reset_code = $2, updated_at = $3 WHERE id = $1`, id, code, p.now().UTC())
	if db.IsUniqueViolation(err, "users_reset_code_key") {
		return ErrCodeTaken
	}
	return err
}

func (p *PostgresStore) ResetPassword(ctx context.Context, id, passwordHash string) error {
	return p.update(ctx, `UPDATE users SET password_hash = $2, reset_code = NULL, updated_at = $3 WHERE id = $1`, id, passwordHash, p.now().UTC())
}

func (p *PostgresStore) UpdateProfile(ctx context.Context, id string, name, imageURL *string) error {
	return p.update(ctx, `
		UPDATE users
		SET name = COALESCE($2, name), image_url = COALESCE($3, image_url), updated_at = $4
		WHERE id = $1`,
		id, name, imageURL, p.now().UTC(),
	)
}

func (p *PostgresStore) List(ctx context.Context) ([]models.User, error) {
	rows, err := p.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	return p.update(ctx, `DELETE FROM users WHERE id = $1`, id)
}

func (p *PostgresStore) one(ctx context.Context, query string, arg any) (*models.User, error) {
	u, err := scanUser(p.conn.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// update runs a single-row statement; no affected row is ErrNotFound.
func (p *PostgresStore) update(ctx context.Context, query string, args ...any) error {
	res, err := p.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*models.User, error) {
	var (
		u                         models.User
		image, appleID, resetCode sql.NullString
	)
	err := s.Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &image,
		&u.IsStaff, &u.IsActive, &appleID, &resetCode,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.ImageURL = nullable(image)
	u.AppleID = nullable(appleID)
	u.ResetCode = nullable(resetCode)
	return &u, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

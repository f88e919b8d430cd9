package contact

import (
	"context"
	"database/sql"

	"github.com/mindmend/backend/internal/db"
	"github.com/mindmend/backend/internal/models"
)

type PostgresStore struct {
	conn *sql.DB
}

func NewPostgresStore(conn *sql.DB) *PostgresStore {
	return &PostgresStore{conn: conn}
}

func (p *PostgresStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := p.conn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM contacts WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

func (p *PostgresStore) Insert(ctx context.Context, c *models.Contact) error {
	_, err := p.conn.ExecContext(ctx, `
		INSERT INTO contacts (id, name, email, message, encrypted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, c.Email, c.Message, c.Encrypted, c.CreatedAt,
	)
	if db.IsUniqueViolation(err, "contacts_email_key") {
		return ErrDuplicateEmail
	}
	return err
}

func (p *PostgresStore) List(ctx context.Context) ([]models.Contact, error) {
	rows, err := p.conn.QueryContext(ctx, `
		SELECT id, name, email, message, encrypted, created_at
		FROM contacts
		ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Contact{}
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Message, &c.Encrypted, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

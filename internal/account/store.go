package account

import (
	"context"
	"errors"

	"github.com/mindmend/backend/internal/models"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
	ErrCodeTaken  = errors.New("reset code already in use")
)

// Store is the user directory.
type Store interface {
	// Create inserts u. A duplicate email is ErrEmailTaken.
	Create(ctx context.Context, u *models.User) error
	ByID(ctx context.Context, id string) (*models.User, error)
	ByEmail(ctx context.Context, email string) (*models.User, error)
	ByAppleID(ctx context.Context, appleID string) (*models.User, error)
	ByResetCode(ctx context.Context, code string) (*models.User, error)
	LinkApple(ctx context.Context, id, appleID string) error
	// SetResetCode stores code on the user. A code held by another user is
	// ErrCodeTaken.
	SetResetCode(ctx context.Context, id, code string) error
	// ResetPassword sets the password hash and clears the reset code.
	ResetPassword(ctx context.Context, id, passwordHash string) error
	UpdateProfile(ctx context.Context, id string, name, imageURL *string) error
	List(ctx context.Context) ([]models.User, error)
	Delete(ctx context.Context, id string) error
}

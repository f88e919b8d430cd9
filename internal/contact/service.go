// Package contact stores "contact us" messages, one per email address.
package contact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindmend/backend/internal/apierr"
	"github.com/mindmend/backend/internal/models"
	"github.com/mindmend/backend/internal/validate"
)

// ErrDuplicateEmail is returned by a Store when the email is already on file.
var ErrDuplicateEmail = errors.New("contact email already exists")

type Store interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, c *models.Contact) error
	List(ctx context.Context) ([]models.Contact, error)
}

// Sealer encrypts message bodies at rest.
type Sealer interface {
	Seal(ctx context.Context, plaintext string) (string, error)
	Open(ctx context.Context, ciphertext string) (string, error)
}

type Message struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Message string `json:"message" validate:"required"`
}

type Service struct {
	store  Store
	sealer Sealer
	now    func() time.Time
}

// NewService returns a Service. A nil sealer stores messages as plain text.
func NewService(store Store, sealer Sealer) *Service {
	return &Service{store: store, sealer: sealer, now: time.Now}
}

// Submit stores msg. The returned contact carries the plain-text message.
func (s *Service) Submit(ctx context.Context, msg Message) (*models.Contact, error) {
	msg.Name = strings.TrimSpace(msg.Name)
	msg.Email = strings.TrimSpace(msg.Email)
	if err := validate.Struct("Failed to send message.", msg); err != nil {
		return nil, err
	}

	exists, err := s.store.EmailExists(ctx, msg.Email)
	if err != nil {
		return nil, fmt.Errorf("check contact email: %w", err)
	}
	if exists {
		return nil, duplicate()
	}

	c := models.Contact{
		ID:        uuid.NewString(),
		Name:      msg.Name,
		Email:     msg.Email,
		Message:   msg.Message,
		CreatedAt: s.now().UTC(),
	}
	stored := c
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(ctx, msg.Message)
		if err != nil {
			return nil, fmt.Errorf("seal contact message: %w", err)
		}
		stored.Message = sealed
		stored.Encrypted = true
	}

	if err := s.store.Insert(ctx, &stored); err != nil {
		// a concurrent submit may win the race past EmailExists
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, duplicate()
		}
		return nil, fmt.Errorf("insert contact: %w", err)
	}
	c.Encrypted = stored.Encrypted
	return &c, nil
}

// Inbox lists every contact message with bodies decrypted, oldest first.
func (s *Service) Inbox(ctx context.Context) ([]models.Contact, error) {
	contacts, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	for i := range contacts {
		if !contacts[i].Encrypted {
			continue
		}
		if s.sealer == nil {
			return nil, fmt.Errorf("contact %s is encrypted but no key is configured", contacts[i].ID)
		}
		plain, err := s.sealer.Open(ctx, contacts[i].Message)
		if err != nil {
			return nil, fmt.Errorf("open contact %s: %w", contacts[i].ID, err)
		}
		contacts[i].Message = plain
		contacts[i].Encrypted = false
	}
	return contacts, nil
}

func duplicate() error {
	return apierr.Conflict("Email already exists in database.")
}

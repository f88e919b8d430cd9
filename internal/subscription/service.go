package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mindmend/backend/internal/models"
)

type Store interface {
	Insert(ctx context.Context, sub *models.Subscription) error
	// Latest returns the user's most recently created subscription, or nil.
	Latest(ctx context.Context, userID string) (*models.Subscription, error)
}

// Status is a subscription together with its trial validity.
type Status struct {
	Subscription *models.Subscription
	TrialValid   *bool
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Create issues the plan planID to userID and stores it.
func (s *Service) Create(ctx context.Context, userID string, planID int) (*Status, error) {
	plan, err := Lookup(planID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sub := plan.Issue(userID, now)
	sub.ID = uuid.NewString()
	sub.CreatedAt = now.UTC()
	if err := s.store.Insert(ctx, &sub); err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	return &Status{Subscription: &sub, TrialValid: TrialValidity(&sub, now)}, nil
}

// Current returns the user's latest subscription and its trial validity.
// Both are nil when the user never subscribed.
func (s *Service) Current(ctx context.Context, userID string) (*Status, error) {
	sub, err := s.store.Latest(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("latest subscription: %w", err)
	}
	return &Status{Subscription: sub, TrialValid: TrialValidity(sub, s.now())}, nil
}

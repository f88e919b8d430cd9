package handlers

import (
	"strings"
	"time"

	"github.com/mindmend/backend/internal/account"
	"github.com/mindmend/backend/internal/models"
	"github.com/mindmend/backend/internal/scores"
	"github.com/mindmend/backend/internal/subscription"
)

// date renders as YYYY-MM-DD.
type date time.Time

func (d date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(d).Format(time.DateOnly) + `"`), nil
}

type userView struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Image *string `json:"image"`
}

func newUserView(u *models.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email, Image: u.ImageURL}
}

type subscriptionDetail struct {
	ID                string       `json:"id"`
	Subscription      string       `json:"subscription"`
	IsActive          bool         `json:"is_active"`
	PaymentDate       date         `json:"payment_date"`
	ExpiryDate        date         `json:"expiry_date"`
	Amount            models.Money `json:"amount"`
	SubscriptionMapID int          `json:"subscription_map_id"`
}

func newSubscriptionDetail(s *models.Subscription) *subscriptionDetail {
	if s == nil {
		return nil
	}
	return &subscriptionDetail{
		ID:                s.ID,
		Subscription:      s.Plan,
		IsActive:          s.IsActive,
		PaymentDate:       date(s.PaymentDate),
		ExpiryDate:        date(s.ExpiryDate),
		Amount:            s.Amount,
		SubscriptionMapID: s.PlanMapID,
	}
}

type sessionView struct {
	RefreshToken string              `json:"refresh_token"`
	AccessToken  string              `json:"access_token"`
	Email        string              `json:"email"`
	Name         string              `json:"name"`
	UserID       string              `json:"user_id"`
	Image        *string             `json:"image"`
	Subscription *subscriptionDetail `json:"subscription"`
	IsTrialValid *bool               `json:"isTrialValid"`
}

func newSessionView(s *account.Session) sessionView {
	v := sessionView{
		RefreshToken: s.Tokens.Refresh,
		AccessToken:  s.Tokens.Access,
		Email:        s.User.Email,
		Name:         s.User.Name,
		UserID:       s.User.ID,
		Image:        s.User.ImageURL,
	}
	if s.Status != nil {
		v.Subscription = newSubscriptionDetail(s.Status.Subscription)
		v.IsTrialValid = s.Status.TrialValid
	}
	return v
}

type createdSubscription struct {
	Subscription      string       `json:"subscription"`
	Amount            models.Money `json:"amount"`
	ExpiryDate        date         `json:"expiry_date"`
	IsActive          bool         `json:"is_active"`
	PaymentDate       date         `json:"payment_date"`
	Description       string       `json:"description"`
	SubscriptionMapID int          `json:"subscription_map_id"`
}

type createdSubscriptionView struct {
	Subscription createdSubscription `json:"subscription"`
	IsTrialValid *bool               `json:"isTrialValid"`
}

func newCreatedSubscriptionView(st *subscription.Status) createdSubscriptionView {
	s := st.Subscription
	return createdSubscriptionView{
		Subscription: createdSubscription{
			Subscription:      displayPlan(s.Plan),
			Amount:            s.Amount,
			ExpiryDate:        date(s.ExpiryDate),
			IsActive:          s.IsActive,
			PaymentDate:       date(s.PaymentDate),
			Description:       s.Description,
			SubscriptionMapID: s.PlanMapID,
		},
		IsTrialValid: st.TrialValid,
	}
}

// displayPlan turns "monthly" into "Monthly".
func displayPlan(kind string) string {
	if kind == "" {
		return kind
	}
	return strings.ToUpper(kind[:1]) + kind[1:]
}

type scoresView struct {
	User                string   `json:"user"`
	ImageValue          int      `json:"image_value"`
	GeneralEmotionValue int      `json:"general_emotion_value"`
	RevaluationOne      int      `json:"revaluation_one"`
	RevaluationTwo      int      `json:"revaluation_two"`
	SelectedEmotions    []string `json:"selected_emotions"`
}

func newScoresView(userName string, res *scores.Result) scoresView {
	r := res.Scores.Ratings
	return scoresView{
		User:                userName,
		ImageValue:          r.ImageValue,
		GeneralEmotionValue: r.GeneralEmotionValue,
		RevaluationOne:      r.RevaluationOne,
		RevaluationTwo:      r.RevaluationTwo,
		SelectedEmotions:    models.EmotionNames(res.Scores.Emotions),
	}
}

type recordView struct {
	models.Ratings
	SelectedEmotions []string  `json:"selected_emotions"`
	CreatedAt        time.Time `json:"created_at"`
}

func newRecordViews(records []models.ScoreRecord) []recordView {
	out := make([]recordView, len(records))
	for i, r := range records {
		out[i] = recordView{
			Ratings:          r.Ratings,
			SelectedEmotions: models.EmotionNames(r.Emotions),
			CreatedAt:        r.CreatedAt,
		}
	}
	return out
}

type contactView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

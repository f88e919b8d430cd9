// Package subscription resolves plan ids to fixed price and term and records
// the subscriptions users take out.
package subscription

import (
	"sort"
	"strconv"
	"time"

	"github.com/mindmend/backend/internal/apierr"
	"github.com/mindmend/backend/internal/models"
)

type Kind string

const (
	Free    Kind = "free"
	Monthly Kind = "monthly"
	Yearly  Kind = "yearly"
)

// Plan is one row of the fixed plan table.
type Plan struct {
	ID          int
	Kind        Kind
	Name        string
	Amount      models.Money
	TermDays    int
	Description string
	Duration    string
}

var plans = map[int]Plan{
	1: {ID: 1, Kind: Free, Name: "Free", Amount: 0, TermDays: 14, Description: "Free", Duration: "14 Days"},
	2: {ID: 2, Kind: Monthly, Name: "Monthly", Amount: 400, TermDays: 30, Description: "Full Customisation and Tracking", Duration: "1 month"},
	3: {ID: 3, Kind: Yearly, Name: "Yearly", Amount: 2999, TermDays: 365, Description: "Full Customisation and Tracking", Duration: "12 months"},
}

// Lookup returns the plan for id. Unknown ids are a validation error on
// subscription_id.
func Lookup(id int) (Plan, error) {
	p, ok := plans[id]
	if !ok {
		return Plan{}, apierr.FieldError("Not a valid subscription", "subscription_id", "Invalid subscription ID.")
	}
	return p, nil
}

// Issue builds a new active subscription for userID starting on now's date.
// Amount and description always come from the plan.
func (p Plan) Issue(userID string, now time.Time) models.Subscription {
	today := Day(now)
	return models.Subscription{
		UserID:      userID,
		Plan:        string(p.Kind),
		Amount:      p.Amount,
		PaymentDate: today,
		ExpiryDate:  today.AddDate(0, 0, p.TermDays),
		IsActive:    true,
		Description: p.Description,
		PlanMapID:   p.ID,
	}
}

// CatalogEntry is a plan as listed to clients.
type CatalogEntry struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Amount      models.Money `json:"amount"`
	Duration    string       `json:"duration"`
	ExpiryDate  *string      `json:"expiry_date"`
}

// Catalog lists every plan ordered by id.
func Catalog() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(plans))
	for _, p := range plans {
		out = append(out, CatalogEntry{
			ID:          strconv.Itoa(p.ID),
			Name:        p.Name,
			Description: p.Description,
			Amount:      p.Amount,
			Duration:    p.Duration,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TrialValidity reports whether sub is a usable free trial on today's date.
// It is nil when there is no subscription and for paid plans.
func TrialValidity(sub *models.Subscription, today time.Time) *bool {
	if sub == nil || Kind(sub.Plan) != Free {
		return nil
	}
	valid := sub.IsActive && !Day(sub.ExpiryDate).Before(Day(today))
	return &valid
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

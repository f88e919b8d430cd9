package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/mindmend/backend/internal/idempotency"
	"github.com/mindmend/backend/internal/subscription"
)

const createSubscriptionEndpoint = "POST /subscriptions/create/"

// ListSubscriptions handles GET /subscriptions/.
func (h *Handler) ListSubscriptions(_ context.Context, _ events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return respond(http.StatusOK, "Subscription plans retrieved successfully.", subscription.Catalog()), nil
}

// CreateSubscription handles POST /subscriptions/create/. A repeated
// Idempotency-Key replays the first response.
func (h *Handler) CreateSubscription(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, u, err := h.authenticate(ctx, req)
	if err != nil {
		return h.fail(ctx, err), nil
	}

	var in struct {
		SubscriptionID int `json:"subscription_id"`
	}
	if err := decodeJSON(req, "Not a valid subscription", &in); err != nil {
		return h.fail(ctx, err), nil
	}

	create := func() (any, error) {
		st, err := h.subscriptions.Create(ctx, u.ID, in.SubscriptionID)
		if err != nil {
			return nil, err
		}
		return newCreatedSubscriptionView(st), nil
	}

	key := header(req, "Idempotency-Key")
	if key == "" || h.idem == nil {
		data, err := create()
		if err != nil {
			return h.fail(ctx, err), nil
		}
		return respond(http.StatusCreated, "Subscription created successfully.", data), nil
	}

	raw, err := h.idem.Do(ctx, idempotency.Request{
		Key:      key,
		UserID:   u.ID,
		Endpoint: createSubscriptionEndpoint,
		Body:     req.Body,
	}, create)
	if err != nil {
		return h.fail(ctx, err), nil
	}
	return respond(http.StatusCreated, "Subscription created successfully.", json.RawMessage(raw)), nil
}

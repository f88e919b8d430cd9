// Package handlers turns API Gateway proxy requests into service calls. Every
// Lambda and the local server share these methods.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/mindmend/backend/internal/account"
	"github.com/mindmend/backend/internal/apierr"
	"github.com/mindmend/backend/internal/auth"
	"github.com/mindmend/backend/internal/contact"
	"github.com/mindmend/backend/internal/idempotency"
	"github.com/mindmend/backend/internal/logging"
	"github.com/mindmend/backend/internal/models"
	"github.com/mindmend/backend/internal/scores"
	"github.com/mindmend/backend/internal/subscription"
)

// Func is the signature of every endpoint.
type Func func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

type Accounts interface {
	Signup(ctx context.Context, in account.SignupInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*account.Session, error)
	GoogleLogin(ctx context.Context, email, name string) (*account.Session, error)
	AppleLogin(ctx context.Context, appleID, email, name string) (*account.Session, error)
	Logout(ctx context.Context, userID, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, code, newPassword string) (string, error)
	UpdateProfile(ctx context.Context, u *models.User, in account.ProfileUpdate) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	DeleteUser(ctx context.Context, actor *models.User, targetID string) error
}

type Scores interface {
	Submit(ctx context.Context, userID string, sub scores.Submission) (*scores.Result, error)
	History(ctx context.Context, userID string) ([]models.ScoreRecord, error)
	Emotions(ctx context.Context) ([]models.Emotion, error)
}

type Subscriptions interface {
	Create(ctx context.Context, userID string, planID int) (*subscription.Status, error)
}

type Contacts interface {
	Submit(ctx context.Context, msg contact.Message) (*models.Contact, error)
	Inbox(ctx context.Context) ([]models.Contact, error)
}

// Idempotency replays the stored result of a repeated request.
type Idempotency interface {
	Do(ctx context.Context, req idempotency.Request, fn func() (any, error)) (json.RawMessage, error)
}

type Deps struct {
	Accounts      Accounts
	Scores        Scores
	Subscriptions Subscriptions
	Contacts      Contacts
	Idempotency   Idempotency
	Log           *logging.Logger
}

type Handler struct {
	accounts      Accounts
	scores        Scores
	subscriptions Subscriptions
	contacts      Contacts
	idem          Idempotency
	log           *logging.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		accounts:      d.Accounts,
		scores:        d.Scores,
		subscriptions: d.Subscriptions,
		contacts:      d.Contacts,
		idem:          d.Idempotency,
		log:           d.Log,
	}
}

// Instrument tags the context with a request id and logs the outcome of fn.
func (h *Handler) Instrument(fn Func) Func {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		start := time.Now()
		if logging.TraceID(ctx) == "" {
			id := req.RequestContext.RequestID
			if id == "" {
				id = logging.NewTraceID()
			}
			ctx = logging.WithTraceID(ctx, id)
		}

		resp, err := fn(ctx, req)
		status := resp.StatusCode
		if err != nil {
			status = 500
		}
		h.log.LogRequest(ctx, req.HTTPMethod, req.Path, status, time.Since(start))
		return resp, err
	}
}

// authenticate resolves the bearer token of req to a user.
func (h *Handler) authenticate(ctx context.Context, req events.APIGatewayProxyRequest) (context.Context, *models.User, error) {
	token, err := auth.BearerToken(header(req, "Authorization"))
	if errors.Is(err, auth.ErrMissingToken) {
		return ctx, nil, apierr.Unauthorized("Authentication credentials were not provided.")
	}
	if err != nil {
		return ctx, nil, apierr.Unauthorized("Given token not valid for any token type")
	}
	u, err := h.accounts.Authenticate(ctx, token)
	if err != nil {
		return ctx, nil, err
	}
	return logging.WithUserID(ctx, u.ID), u, nil
}

func (h *Handler) authenticateStaff(ctx context.Context, req events.APIGatewayProxyRequest) (context.Context, *models.User, error) {
	ctx, u, err := h.authenticate(ctx, req)
	if err != nil {
		return ctx, nil, err
	}
	if !u.IsStaff {
		return ctx, nil, apierr.Forbidden("You do not have permission to perform this action.")
	}
	return ctx, u, nil
}

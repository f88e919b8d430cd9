package handlers

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/mindmend/backend/internal/contact"
)

// ContactUs handles POST /contact-us/.
func (h *Handler) ContactUs(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var in contact.Message
	if err := decodeJSON(req, "Failed to send message.", &in); err != nil {
		return h.fail(ctx, err), nil
	}

	c, err := h.contacts.Submit(ctx, in)
	if err != nil {
		return h.fail(ctx, err), nil
	}
	return respond(http.StatusCreated, "Message sent successfully.", map[string]string{
		"email":      c.Email,
		"message":    c.Message,
		"contact_id": c.ID,
	}), nil
}

// ListContacts handles GET /contact-us/. Staff only.
func (h *Handler) ListContacts(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, _, err := h.authenticateStaff(ctx, req)
	if err != nil {
		return h.fail(ctx, err), nil
	}

	inbox, err := h.contacts.Inbox(ctx)
	if err != nil {
		return h.fail(ctx, err), nil
	}
	views := make([]contactView, len(inbox))
	for i, c := range inbox {
		views[i] = contactView{ID: c.ID, Name: c.Name, Email: c.Email, Message: c.Message, CreatedAt: c.CreatedAt}
	}
	return respond(http.StatusOK, "Messages retrieved successfully.", views), nil
}

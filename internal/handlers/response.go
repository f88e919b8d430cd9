package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"

	"github.com/mindmend/backend/internal/apierr"
)

// envelope is the body of every JSON response.
type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
	Code    string `json:"code,omitempty"`
}

var jsonHeaders = map[string]string{
	"Content-Type": "application/json",
}

func respond(status int, message string, data any) events.APIGatewayProxyResponse {
	if data == nil {
		data = struct{}{}
	}
	body, err := json.Marshal(envelope{Message: message, Data: data})
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"message":"An unexpected error occurred","data":{},"code":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: jsonHeaders, Body: string(body)}
}

// fail maps err to its response and logs it. Internal causes are logged, not
// returned.
func (h *Handler) fail(ctx context.Context, err error) events.APIGatewayProxyResponse {
	ae := apierr.From(err)

	entry := h.log.WithContext(ctx).WithFields(logrus.Fields{
		"code":   ae.Code,
		"status": ae.Status,
	})
	if ae.Status >= http.StatusInternalServerError {
		entry.WithError(err).Error(ae.Message)
	} else {
		entry.Warn(ae.Message)
	}

	var data any = struct{}{}
	if len(ae.Fields) > 0 {
		data = ae.Fields
	}
	body, _ := json.Marshal(envelope{Message: ae.Message, Data: data, Code: string(ae.Code)})
	return events.APIGatewayProxyResponse{StatusCode: ae.Status, Headers: jsonHeaders, Body: string(body)}
}

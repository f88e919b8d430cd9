package handlers

import (
	"bytes"
	"context"
	"html/template"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

var resetFormTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Reset your MindMend password</title>
</head>
<body>
<h1>Reset your password</h1>
<form id="reset-form">
  <input type="hidden" name="UID" value="{{.UID}}">
  <label>New password <input type="password" name="new_password" required></label>
  <label>Confirm password <input type="password" name="confirm_password" required></label>
  <button type="submit">Reset password</button>
</form>
<p id="status"></p>
<script>
document.getElementById("reset-form").addEventListener("submit", async function (e) {
  e.preventDefault();
  var f = e.target, status = document.getElementById("status");
  if (f.new_password.value !== f.confirm_password.value) {
    status.textContent = "Passwords do not match.";
    return;
  }
  var res = await fetch({{.ConfirmURL}}, {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({UID: f.UID.value, new_password: f.new_password.value})
  });
  var body = await res.json();
  status.textContent = body.message;
});
</script>
</body>
</html>
`))

// PasswordResetForm handles GET /reset-password/form/{uid}/.
func (h *Handler) PasswordResetForm(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var buf bytes.Buffer
	err := resetFormTemplate.Execute(&buf, struct {
		UID        string
		ConfirmURL string
	}{
		UID:        req.PathParameters["uid"],
		ConfirmURL: "../../confirm/",
	})
	if err != nil {
		return h.fail(ctx, err), nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
		Body:       buf.String(),
	}, nil
}

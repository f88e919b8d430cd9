package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/mindmend/backend/internal/account"
	"github.com/mindmend/backend/internal/apierr"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup handles POST /signup/.
func (h *Handler) Signup(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var in account.SignupInput
	if err := decodeJSON(req, "Failed to create user.", &in); err != nil {
		return h.fail(ctx, err), nil
	}

	u, err := h.accounts.Signup(ctx, in)
	if err != nil {
		return h.fail(ctx, err), nil
	}

	h.log.WithContext(ctx).WithField("new_user_id", u.ID).Info("user signed up")
	return respond(http.StatusCreated, "User created successfully.", map[string]string{
		"id":    u.ID,
		"name":  u.Name,
		"email": u.Email,
	}), nil
}

// DeleteUser handles DELETE /signup/{id}/.
func (h *Handler) DeleteUser(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, actor, err := h.authenticate(ctx, req)
	if err != nil {
		return h.fail(ctx, err), nil
	}

	if err := h.accounts.DeleteUser(ctx, actor, req.PathParameters["id"]); err != nil {
		return h.fail(ctx, err), nil
	}
	return respond(http.StatusOK, "User deleted successfully", nil), nil
}

// Login handles POST /login/.
func (h *Handler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var in credentials
	if err := decodeJSON(req, "Invalid Credentials. Try Again.", &in); err != nil {
		return h.fail(ctx, err), nil
	}

	sess, err := h.accounts.Login(ctx, in.Email, in.Password)
	if err != nil {
		return h.fail(ctx, err), nil
	}
	return respond(http.StatusOK, "Logged in successfully.", newSessionView(sess)), nil
}

// GoogleLogin handles POST /google_login/.
func (h *Handler) GoogleLogin(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var in struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := decodeJSON(req, "Email and name are required", &in); err != nil {
		return h.fail(ctx, err), nil
	}

	sess, err := h.accounts.GoogleLogin(ctx, in.Email, in.Name)
	if err != nil {
		return h.fail(ctx, err), nil
	}
	return respond(http.StatusOK, "Login successful", newSessionView(sess)), nil
}

// AppleLogin handles POST /apple_login/.
func (h *Handler) AppleLogin(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var in struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := decodeJSON(req, "Apple ID is required", &in); err != nil {
		return h.fail(ctx, err), nil
	}

	sess, err := h.accounts.AppleLogin(ctx, in.ID, in.Email, in.Name)
	if err != nil {
		return h.fail(ctx, err), nil
	}
	return respond(http.StatusOK, "Login successful", newSessionView(sess)), nil
}

// Logout handles POST /logout/.
func (h *Handler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, u, err := h.authenticate(ctx, req)
	if err != nil {
		return h.fail(ctx, err), nil
	}

	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(req, "Refresh token is required.", &in); err != nil {
		return h.fail(ctx, err), nil
	}

	if err := h.accounts.Logout(ctx, u.ID, in.RefreshToken); err != nil {
		return h.fail(ctx, err), nil
	}
	return respond(http.StatusOK, "User logged out successfully.", nil), nil
}

// RefreshToken handles POST /token/refresh/.
func (h *Handler) RefreshToken(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	if err := decodeJSON(req, "Refresh token is required.", &in); err != nil {
		return h.fail(ctx, err), nil
	}

	access, err := h.accounts.Refresh(ctx, in.Refresh)
	if err != nil {
		return h.fail(ctx, err), nil
	}
	return respond(http.StatusOK, "Token refreshed successfully.", map[string]string{"access": access}), nil
}

// PasswordReset handles POST /reset-password/.
func (h *Handler) PasswordReset(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var in struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(req, "Email is required.", &in); err != nil {
		return h.fail(ctx, err), nil
	}

	if err := h.accounts.RequestPasswordReset(ctx, in.Email); err != nil {
		return h.fail(ctx, err), nil
	}
	return respond(http.StatusOK, "Password reset link has been sent to your email.", nil), nil
}

// PasswordResetConfirm handles POST /reset-password/confirm/.
func (h *Handler) PasswordResetConfirm(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var in struct {
		UID         string `json:"UID"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(req, "UID and new password are required.", &in); err != nil {
		return h.fail(ctx, err), nil
	}

	userID, err := h.accounts.ConfirmPasswordReset(ctx, in.UID, in.NewPassword)
	if err != nil {
		return h.fail(ctx, err), nil
	}
	return respond(http.StatusOK, "Password has been reset successfully.", map[string]string{"user_id": userID}), nil
}

// UpdateProfile handles PUT /profile/update/. The body is multipart form data
// with optional name and image parts, or JSON with name and a base64 image.
func (h *Handler) UpdateProfile(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, u, err := h.authenticate(ctx, req)
	if err != nil {
		return h.fail(ctx, err), nil
	}

	in, err := profileInput(req)
	if err != nil {
		return h.fail(ctx, err), nil
	}

	updated, err := h.accounts.UpdateProfile(ctx, u, in)
	if err != nil {
		return h.fail(ctx, err), nil
	}
	return respond(http.StatusOK, "Profile updated successfully.", map[string]*string{
		"name":  &updated.Name,
		"image": updated.ImageURL,
	}), nil
}

func profileInput(req events.APIGatewayProxyRequest) (account.ProfileUpdate, error) {
	var in account.ProfileUpdate

	f, err := parseMultipart(req)
	if err != nil {
		return in, err
	}
	if f != nil {
		if name, ok := f.Values["name"]; ok {
			in.Name = &name
		}
		if file, ok := f.Files["image"]; ok && len(file.Data) > 0 {
			in.Image = &account.Upload{Filename: file.Filename, Data: file.Data}
		}
		return in, nil
	}

	var js struct {
		Name      *string `json:"name"`
		Image     *string `json:"image"`
		ImageName string  `json:"image_name"`
	}
	if err := decodeJSON(req, "Failed to update profile.", &js); err != nil {
		return in, err
	}
	in.Name = js.Name
	if js.Image != nil && *js.Image != "" {
		raw := *js.Image
		if _, data, ok := strings.Cut(raw, ";base64,"); ok {
			raw = data
		}
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return in, apierr.FieldError("Failed to update profile.", "image", "Image must be base64 encoded.")
		}
		name := js.ImageName
		if name == "" {
			name = "profile"
		}
		in.Image = &account.Upload{Filename: name, Data: data}
	}
	return in, nil
}

// ListUsers handles GET /users/. Staff only.
func (h *Handler) ListUsers(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, _, err := h.authenticateStaff(ctx, req)
	if err != nil {
		return h.fail(ctx, err), nil
	}

	users, err := h.accounts.ListUsers(ctx)
	if err != nil {
		return h.fail(ctx, err), nil
	}
	if len(users) == 0 {
		return respond(http.StatusOK, "No users in the database.", []userView{}), nil
	}

	views := make([]userView, len(users))
	names := make([]string, len(users))
	for i := range users {
		views[i] = newUserView(&users[i])
		names[i] = users[i].Name
	}
	return respond(http.StatusOK, "Users retrieved successfully.", struct {
		Users []userView `json:"users"`
		Names []string   `json:"names"`
	}{views, names}), nil
}

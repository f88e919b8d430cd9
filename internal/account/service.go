// Package account owns user accounts and sessions: signup, password and
// social sign-in, token refresh and logout, password reset and profiles.
package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mindmend/backend/internal/apierr"
	"github.com/mindmend/backend/internal/auth"
	"github.com/mindmend/backend/internal/mail"
	"github.com/mindmend/backend/internal/models"
	"github.com/mindmend/backend/internal/subscription"
	"github.com/mindmend/backend/internal/tokenstore"
	"github.com/mindmend/backend/internal/validate"
)

const (
	resetCodeMin      = 1000000
	resetCodeMax      = 9999999
	resetCodeAttempts = 10
)

// Revoker blacklists refresh tokens.
type Revoker interface {
	Revoke(ctx context.Context, jti, userID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Subscriptions reports a user's latest subscription.
type Subscriptions interface {
	Current(ctx context.Context, userID string) (*subscription.Status, error)
}

type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Images stores profile pictures and returns their URL.
type Images interface {
	Save(ctx context.Context, userID, filename string, data []byte) (string, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Users         Store
	Tokens        *auth.Issuer
	Revoked       Revoker
	Subscriptions Subscriptions
	Mailer        Mailer
	Images        Images
	ResetBaseURL  string
}

type Service struct {
	Deps
	newCode  func() (string, error)
	hashCost int
}

func NewService(d Deps) *Service {
	return &Service{
		Deps:     d,
		newCode:  randomResetCode,
		hashCost: bcrypt.DefaultCost,
	}
}

// Session is the result of any successful sign-in.
type Session struct {
	Tokens auth.TokenPair
	User   *models.User
	Status *subscription.Status
}

type SignupInput struct {
	Name     string `json:"name" validate:"max=255"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
}

// Signup creates a password account.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if in.Email == "" || in.Password == "" {
		return nil, apierr.Validation("Both email and password are required.", nil)
	}
	if err := validate.Struct("Failed to create user.", in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, apierr.FieldError("User with this email already exists.", "email", "User with this email already exists.")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login checks email and password.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apierr.Validation("Both email and password are required.", nil)
	}

	bad := apierr.Invalid("Invalid Credentials. Try Again.", nil)
	u, err := s.Users.ByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, bad
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive || !u.HasUsablePassword() {
		return nil, bad
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, bad
	}
	return s.session(ctx, u)
}

// GoogleLogin signs in the account for email, creating it on first use. The
// Google identity is taken as asserted by the client.
func (s *Service) GoogleLogin(ctx context.Context, email, name string) (*Session, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || name == "" {
		return nil, apierr.Validation("Email and name are required", nil)
	}

	u, err := s.Users.ByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		u, err = s.createSocial(ctx, email, name, nil)
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, apierr.Unauthorized("User account is disabled.")
	}
	return s.session(ctx, u)
}

// AppleLogin signs in by Apple user id. The first sign-in needs email and
// name, and links an existing account with that email or creates one.
func (s *Service) AppleLogin(ctx context.Context, appleID, email, name string) (*Session, error) {
	appleID = strings.TrimSpace(appleID)
	if appleID == "" {
		return nil, apierr.Validation("Apple ID is required", nil)
	}

	u, err := s.Users.ByAppleID(ctx, appleID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		u, err = s.firstAppleLogin(ctx, appleID, normalizeEmail(email), strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("load user by apple id: %w", err)
	}
	if !u.IsActive {
		return nil, apierr.Unauthorized("User account is disabled.")
	}
	return s.session(ctx, u)
}

func (s *Service) firstAppleLogin(ctx context.Context, appleID, email, name string) (*models.User, error) {
	if email == "" || name == "" {
		return nil, apierr.Validation("Email and name are required for the first time login", nil)
	}
	u, err := s.Users.ByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return s.createSocial(ctx, email, name, &appleID)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := s.Users.LinkApple(ctx, u.ID, appleID); err != nil {
		return nil, fmt.Errorf("link apple id: %w", err)
	}
	u.AppleID = &appleID
	return u, nil
}

// createSocial creates an account without a usable password. Losing a
// creation race to another sign-in returns the winner's account.
func (s *Service) createSocial(ctx context.Context, email, name string, appleID *string) (*models.User, error) {
	u := &models.User{
		ID:       uuid.NewString(),
		Email:    email,
		Name:     name,
		IsActive: true,
		AppleID:  appleID,
	}
	err := s.Users.Create(ctx, u)
	if errors.Is(err, ErrEmailTaken) {
		return s.Users.ByEmail(ctx, email)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Service) session(ctx context.Context, u *models.User) (*Session, error) {
	pair, err := s.Tokens.IssuePair(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	st, err := s.Subscriptions.Current(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Tokens: pair, User: u, Status: st}, nil
}

// Logout blacklists refreshToken, which must belong to userID.
func (s *Service) Logout(ctx context.Context, userID, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return apierr.Validation("Refresh token is required.", nil)
	}
	bad := apierr.Invalid("Invalid token or token has already been blacklisted.", nil)

	claims, err := s.Tokens.Parse(refreshToken, auth.RefreshToken)
	if err != nil || claims.UserID != userID {
		return bad
	}
	err = s.Revoked.Revoke(ctx, claims.ID, claims.UserID, claims.ExpiresAt.Time)
	if errors.Is(err, tokenstore.ErrAlreadyRevoked) {
		return bad
	}
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// Refresh exchanges a live refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return "", apierr.Validation("Refresh token is required.", nil).WithField("refresh", "This field is required.")
	}
	bad := apierr.Unauthorized("Token is invalid or expired")

	claims, err := s.Tokens.Parse(refreshToken, auth.RefreshToken)
	if err != nil {
		return "", bad
	}
	revoked, err := s.Revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return "", err
	}
	if revoked {
		return "", apierr.Unauthorized("Token is blacklisted")
	}
	u, err := s.Users.ByID(ctx, claims.UserID)
	if errors.Is(err, ErrNotFound) {
		return "", bad
	}
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive {
		return "", bad
	}
	return s.Tokens.IssueAccess(u.ID)
}

// Authenticate resolves an access token to an active user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.Tokens.Parse(accessToken, auth.AccessToken)
	if err != nil {
		return nil, apierr.Unauthorized("Given token not valid for any token type")
	}
	u, err := s.Users.ByID(ctx, claims.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.Unauthorized("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive {
		return nil, apierr.Unauthorized("User is inactive")
	}
	return u, nil
}

// RequestPasswordReset stores a fresh one-time code on the account for email
// and mails the reset link.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apierr.NotFound("User with this email does not exist.")
	}
	u, err := s.Users.ByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return apierr.NotFound("User with this email does not exist.")
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	code, err := s.assignResetCode(ctx, u.ID)
	if err != nil {
		return err
	}

	link := s.ResetLink(code)
	err = s.Mailer.Send(ctx, mail.Message{
		To:      u.Email,
		Subject: "Password Reset Link",
		Text:    "Please click the following link to reset your password: " + link,
		HTML: `<html><body><p>This is an important message.</p>` +
			`<p>Please click the following link to reset your password:</p>` +
			`<a href="` + link + `">` + link + `</a></body></html>`,
	})
	if err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

func (s *Service) assignResetCode(ctx context.Context, userID string) (string, error) {
	for i := 0; i < resetCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", fmt.Errorf("generate reset code: %w", err)
		}
		err = s.Users.SetResetCode(ctx, userID, code)
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("store reset code: %w", err)
		}
		return code, nil
	}
	return "", fmt.Errorf("no free reset code after %d attempts", resetCodeAttempts)
}

// ResetLink is the URL of the reset form for code.
func (s *Service) ResetLink(code string) string {
	return strings.TrimRight(s.ResetBaseURL, "/") + "/reset-password/form/" + code + "/"
}

// ConfirmPasswordReset sets a new password for the holder of code and
// consumes the code. It returns the user's id.
func (s *Service) ConfirmPasswordReset(ctx context.Context, code, newPassword string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" || newPassword == "" {
		return "", apierr.Validation("UID and new password are required.", nil)
	}
	u, err := s.Users.ByResetCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return "", apierr.NotFound("Invalid UID.")
	}
	if err != nil {
		return "", fmt.Errorf("load user by reset code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := s.Users.ResetPassword(ctx, u.ID, string(hash)); err != nil {
		return "", fmt.Errorf("reset password: %w", err)
	}
	return u.ID, nil
}

// Upload is a file sent with a profile update.
type Upload struct {
	Filename string
	Data     []byte
}

type ProfileUpdate struct {
	Name  *string `json:"name" validate:"omitempty,max=255,displayname"`
	Image *Upload `json:"-"`
}

// UpdateProfile changes u's name and picture. Omitted fields are kept.
func (s *Service) UpdateProfile(ctx context.Context, u *models.User, in ProfileUpdate) (*models.User, error) {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
		if name == u.Email {
			return nil, apierr.Validation("name cannot be the same as email.", nil)
		}
		if name == "" {
			return nil, apierr.FieldError("Failed to update profile.", "name", "This field may not be blank.")
		}
	}
	if err := validate.Struct("Failed to update profile.", in); err != nil {
		return nil, err
	}

	var imageURL *string
	if in.Image != nil {
		url, err := s.Images.Save(ctx, u.ID, in.Image.Filename, in.Image.Data)
		if err != nil {
			return nil, err
		}
		imageURL = &url
	}

	if err := s.Users.UpdateProfile(ctx, u.ID, in.Name, imageURL); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	out := *u
	if in.Name != nil {
		out.Name = *in.Name
	}
	if imageURL != nil {
		out.ImageURL = imageURL
	}
	return &out, nil
}

// ListUsers lists every account.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.Users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// DeleteUser removes targetID. Users may delete themselves; staff may delete
// anyone.
func (s *Service) DeleteUser(ctx context.Context, actor *models.User, targetID string) error {
	if actor.ID != targetID && !actor.IsStaff {
		return apierr.Forbidden("You do not have permission to perform this action.")
	}
	if _, err := uuid.Parse(targetID); err != nil {
		return apierr.NotFound("No user matches the given query.")
	}
	err := s.Users.Delete(ctx, targetID)
	if errors.Is(err, ErrNotFound) {
		return apierr.NotFound("No user matches the given query.")
	}
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// normalizeEmail trims and lower-cases the domain part.
func normalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	return local + "@" + strings.ToLower(domain)
}

func randomResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(resetCodeMax-resetCodeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+resetCodeMin, 10), nil
}

package account

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mindmend/backend/internal/apierr"
	"github.com/mindmend/backend/internal/auth"
	"github.com/mindmend/backend/internal/mail"
	"github.com/mindmend/backend/internal/models"
	"github.com/mindmend/backend/internal/subscription"
	"github.com/mindmend/backend/internal/tokenstore"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
	order []string
}

func newMemUsers() *memUsers { return &memUsers{users: map[string]*models.User{}} }

func (m *memUsers) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		if u, ok := m.users[id]; ok && match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	if _, err := m.ByEmail(context.Background(), u.Email); err == nil {
		return ErrEmailTaken
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	m.order = append(m.order, u.ID)
	return nil
}

func (m *memUsers) ByID(_ context.Context, id string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.ID == id })
}

func (m *memUsers) ByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email == email })
}

func (m *memUsers) ByAppleID(_ context.Context, appleID string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.AppleID != nil && *u.AppleID == appleID })
}

func (m *memUsers) ByResetCode(_ context.Context, code string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.ResetCode != nil && *u.ResetCode == code })
}

func (m *memUsers) mutate(id string, fn func(*models.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	return nil
}

func (m *memUsers) LinkApple(_ context.Context, id, appleID string) error {
	return m.mutate(id, func(u *models.User) { u.AppleID = &appleID })
}

func (m *memUsers) SetResetCode(ctx context.Context, id, code string) error {
	if other, err := m.ByResetCode(ctx, code); err == nil && other.ID != id {
		return ErrCodeTaken
	}
	return m.mutate(id, func(u *models.User) { u.ResetCode = &code })
}

func (m *memUsers) ResetPassword(_ context.Context, id, hash string) error {
	return m.mutate(id, func(u *models.User) {
		u.PasswordHash = hash
		u.ResetCode = nil
	})
}

func (m *memUsers) UpdateProfile(_ context.Context, id string, name, imageURL *string) error {
	return m.mutate(id, func(u *models.User) {
		if name != nil {
			u.Name = *name
		}
		if imageURL != nil {
			u.ImageURL = imageURL
		}
	})
}

func (m *memUsers) List(context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, id := range m.order {
		if u, ok := m.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

type memRevoker struct{ revoked map[string]bool }

func (r *memRevoker) Revoke(_ context.Context, jti, _ string, _ time.Time) error {
	if r.revoked[jti] {
		return tokenstore.ErrAlreadyRevoked
	}
	r.revoked[jti] = true
	return nil
}

func (r *memRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	return r.revoked[jti], nil
}

type stubSubscriptions struct{ byUser map[string]*models.Subscription }

func (s stubSubscriptions) Current(_ context.Context, userID string) (*subscription.Status, error) {
	sub := s.byUser[userID]
	return &subscription.Status{Subscription: sub, TrialValid: subscription.TrialValidity(sub, time.Now())}, nil
}

type outbox struct{ sent []mail.Message }

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.sent = append(o.sent, msg)
	return nil
}

type stubImages struct {
	err   error
	saved []string
}

func (s *stubImages) Save(_ context.Context, userID, filename string, _ []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, filename)
	return "https://cdn.example.com/profile_images/" + userID + "/" + filename, nil
}

type fixture struct {
	svc     *Service
	users   *memUsers
	revoker *memRevoker
	subs    stubSubscriptions
	outbox  *outbox
	images  *stubImages
}

func newFixture() *fixture {
	f := &fixture{
		users:   newMemUsers(),
		revoker: &memRevoker{revoked: map[string]bool{}},
		subs:    stubSubscriptions{byUser: map[string]*models.Subscription{}},
		outbox:  &outbox{},
		images:  &stubImages{},
	}
	f.svc = NewService(Deps{
		Users:         f.users,
		Tokens:        auth.NewIssuer("test-secret", time.Hour, 24*time.Hour),
		Revoked:       f.revoker,
		Subscriptions: f.subs,
		Mailer:        f.outbox,
		Images:        f.images,
		ResetBaseURL:  "https://app.example.com/mindmend/",
	})
	f.svc.hashCost = bcrypt.MinCost
	return f
}

func (f *fixture) signup(t *testing.T, email, password string) *models.User {
	t.Helper()
	u, err := f.svc.Signup(context.Background(), SignupInput{Name: "Ana", Email: email, Password: password})
	require.NoError(t, err)
	return u
}

func TestSignupAndLogin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	u := f.signup(t, "ana@Example.COM", "s3cret")
	assert.Equal(t, "ana@example.com", u.Email)
	assert.True(t, u.HasUsablePassword())

	sess, err := f.svc.Login(ctx, "ana@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.User.ID)
	assert.NotEmpty(t, sess.Tokens.Access)
	assert.NotEmpty(t, sess.Tokens.Refresh)
	assert.Nil(t, sess.Status.Subscription)
	assert.Nil(t, sess.Status.TrialValid)

	_, err = f.svc.Login(ctx, "ana@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid Credentials. Try Again.", apierr.From(err).Message)

	_, err = f.svc.Login(ctx, "nobody@example.com", "s3cret")
	assert.True(t, apierr.Is(err, apierr.CodeInvalid))
}

func TestLoginReportsTrial(t *testing.T) {
	f := newFixture()
	u := f.signup(t, "ana@example.com", "pw")
	f.subs.byUser[u.ID] = &models.Subscription{Plan: "free", IsActive: true, ExpiryDate: time.Now().AddDate(0, 0, 3)}

	sess, err := f.svc.Login(context.Background(), "ana@example.com", "pw")
	require.NoError(t, err)
	require.NotNil(t, sess.Status.TrialValid)
	assert.True(t, *sess.Status.TrialValid)
}

func TestSignupValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, SignupInput{Email: "ana@example.com"})
	assert.Equal(t, "Both email and password are required.", apierr.From(err).Message)

	_, err = f.svc.Signup(ctx, SignupInput{Email: "not-an-email", Password: "x"})
	assert.Contains(t, apierr.From(err).Fields, "email")

	f.signup(t, "ana@example.com", "pw")
	_, err = f.svc.Signup(ctx, SignupInput{Email: "ana@example.com", Password: "pw2"})
	require.Error(t, err)
	ae := apierr.From(err)
	assert.Equal(t, apierr.CodeValidation, ae.Code)
	assert.Equal(t, "User with this email already exists.", ae.Message)
}

func TestSocialAccountsCannotPasswordLogin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sess, err := f.svc.GoogleLogin(ctx, "g@example.com", "Gee")
	require.NoError(t, err)
	assert.False(t, sess.User.HasUsablePassword())

	_, err = f.svc.Login(ctx, "g@example.com", "")
	assert.Error(t, err)
	_, err = f.svc.Login(ctx, "g@example.com", "anything")
	assert.True(t, apierr.Is(err, apierr.CodeInvalid))
}

func TestGoogleLoginGetOrCreate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	existing := f.signup(t, "ana@example.com", "pw")

	sess, err := f.svc.GoogleLogin(ctx, "ana@example.com", "Someone Else")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, sess.User.ID)
	assert.Equal(t, "Ana", sess.User.Name)

	_, err = f.svc.GoogleLogin(ctx, "ana@example.com", "")
	assert.Equal(t, "Email and name are required", apierr.From(err).Message)
}

func TestAppleLogin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.AppleLogin(ctx, "", "", "")
	assert.Equal(t, "Apple ID is required", apierr.From(err).Message)

	_, err = f.svc.AppleLogin(ctx, "apple-1", "", "")
	assert.Equal(t, "Email and name are required for the first time login", apierr.From(err).Message)

	existing := f.signup(t, "ana@example.com", "pw")
	sess, err := f.svc.AppleLogin(ctx, "apple-1", "ana@example.com", "Ana")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, sess.User.ID, "first login links the existing email account")

	sess, err = f.svc.AppleLogin(ctx, "apple-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, sess.User.ID, "later logins need only the apple id")

	sess, err = f.svc.AppleLogin(ctx, "apple-2", "new@example.com", "New")
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID, sess.User.ID)
	assert.False(t, sess.User.HasUsablePassword())
}

func TestLogoutAndRefresh(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.signup(t, "ana@example.com", "pw")
	sess, err := f.svc.Login(ctx, "ana@example.com", "pw")
	require.NoError(t, err)

	access, err := f.svc.Refresh(ctx, sess.Tokens.Refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, access)

	_, err = f.svc.Refresh(ctx, sess.Tokens.Access)
	assert.True(t, apierr.Is(err, apierr.CodeUnauthorized), "access tokens cannot refresh")

	err = f.svc.Logout(ctx, "someone-else", sess.Tokens.Refresh)
	assert.True(t, apierr.Is(err, apierr.CodeInvalid))

	require.NoError(t, f.svc.Logout(ctx, sess.User.ID, sess.Tokens.Refresh))
	err = f.svc.Logout(ctx, sess.User.ID, sess.Tokens.Refresh)
	assert.Equal(t, "Invalid token or token has already been blacklisted.", apierr.From(err).Message)

	_, err = f.svc.Refresh(ctx, sess.Tokens.Refresh)
	assert.Equal(t, "Token is blacklisted", apierr.From(err).Message)

	err = f.svc.Logout(ctx, sess.User.ID, "")
	assert.Equal(t, "Refresh token is required.", apierr.From(err).Message)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.signup(t, "ana@example.com", "pw")
	sess, err := f.svc.Login(ctx, "ana@example.com", "pw")
	require.NoError(t, err)

	got, err := f.svc.Authenticate(ctx, sess.Tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = f.svc.Authenticate(ctx, sess.Tokens.Refresh)
	assert.True(t, apierr.Is(err, apierr.CodeUnauthorized))

	require.NoError(t, f.users.Delete(ctx, u.ID))
	_, err = f.svc.Authenticate(ctx, sess.Tokens.Access)
	assert.True(t, apierr.Is(err, apierr.CodeUnauthorized))
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.signup(t, "ana@example.com", "old")

	codes := []string{"1234567", "7654321"}
	f.svc.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	// another account already holds the first code
	other := f.signup(t, "bo@example.com", "pw")
	require.NoError(t, f.users.SetResetCode(ctx, other.ID, "1234567"))

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ana@example.com"))
	require.Len(t, f.outbox.sent, 1)
	msg := f.outbox.sent[0]
	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, "Password Reset Link", msg.Subject)
	assert.Contains(t, msg.Text, "https://app.example.com/mindmend/reset-password/form/7654321/")

	id, err := f.svc.ConfirmPasswordReset(ctx, "7654321", "new-pass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)

	_, err = f.svc.Login(ctx, "ana@example.com", "old")
	assert.Error(t, err)
	_, err = f.svc.Login(ctx, "ana@example.com", "new-pass")
	assert.NoError(t, err)

	_, err = f.svc.ConfirmPasswordReset(ctx, "7654321", "again")
	assert.Equal(t, "Invalid UID.", apierr.From(err).Message, "codes are single use")
}

func TestPasswordResetErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	err := f.svc.RequestPasswordReset(ctx, "ghost@example.com")
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))
	assert.Empty(t, f.outbox.sent)

	_, err = f.svc.ConfirmPasswordReset(ctx, "", "x")
	assert.Equal(t, "UID and new password are required.", apierr.From(err).Message)
}

func TestRandomResetCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := randomResetCode()
		require.NoError(t, err)
		assert.Len(t, code, 7)
		assert.GreaterOrEqual(t, code, "1000000")
		assert.LessOrEqual(t, code, "9999999")
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.signup(t, "ana@example.com", "pw")

	name := "Ana Maria"
	got, err := f.svc.UpdateProfile(ctx, u, ProfileUpdate{
		Name:  &name,
		Image: &Upload{Filename: "me.png", Data: []byte("png")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", got.Name)
	require.NotNil(t, got.ImageURL)
	assert.Contains(t, *got.ImageURL, "me.png")

	stored, err := f.users.ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", stored.Name)
}

func TestUpdateProfileRejects(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.signup(t, "ana@example.com", "pw")

	email := "ana@example.com"
	_, err := f.svc.UpdateProfile(ctx, u, ProfileUpdate{Name: &email})
	assert.Equal(t, "name cannot be the same as email.", apierr.From(err).Message)

	bad := "<b>"
	_, err = f.svc.UpdateProfile(ctx, u, ProfileUpdate{Name: &bad})
	assert.Contains(t, apierr.From(err).Fields, "name")

	f.images.err = apierr.FieldError("Failed to process image.", "image", "unknown format")
	_, err = f.svc.UpdateProfile(ctx, u, ProfileUpdate{Image: &Upload{Filename: "x", Data: []byte("x")}})
	assert.True(t, apierr.Is(err, apierr.CodeValidation))

	stored, err := f.users.ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", stored.Name)
	assert.Nil(t, stored.ImageURL)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ana := f.signup(t, "ana@example.com", "pw")
	bo := f.signup(t, "bo@example.com", "pw")

	err := f.svc.DeleteUser(ctx, ana, bo.ID)
	assert.True(t, apierr.Is(err, apierr.CodeForbidden))

	staff := *bo
	staff.IsStaff = true
	require.NoError(t, f.svc.DeleteUser(ctx, &staff, ana.ID))

	err = f.svc.DeleteUser(ctx, &staff, ana.ID)
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))

	err = f.svc.DeleteUser(ctx, &staff, "42")
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))

	require.NoError(t, f.svc.DeleteUser(ctx, bo, bo.ID))
	users, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "Ana@example.com", normalizeEmail("  Ana@EXAMPLE.com "))
	assert.Equal(t, "plain", normalizeEmail("plain"))
	assert.Equal(t, "", normalizeEmail(" "))
}

package session

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/go-api-accounts/internal/domain"
	"github.com/go-api-accounts/internal/infrastructure/google"
	jwtinfra "github.com/go-api-accounts/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockGoogle struct{ mock.Mock }

func (m *mockGoogle) Exchange(ctx context.Context, code string) (*google.Identity, error) {
	args := m.Called(ctx, code)
	if i, _ := args.Get(0).(*google.Identity); i != nil {
		return i, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockGoogle) VerifyIDToken(ctx context.Context, token string) (*google.Identity, error) {
	args := m.Called(ctx, token)
	if i, _ := args.Get(0).(*google.Identity); i != nil {
		return i, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

func newProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return jwtinfra.NewProviderFromKey(key, 15*time.Minute, time.Hour)
}

func newTestService(t *testing.T) (Service, *mockUserStore, *mockGoogle, *jwtinfra.Provider) {
	t.Helper()
	users, g, p := &mockUserStore{}, &mockGoogle{}, newProvider(t)
	return NewService(ServiceDeps{UserRepo: users, JWTProvider: p, Google: g}), users, g, p
}

func userWithPassword(t *testing.T, pw string, active bool) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return &domain.User{UserID: "u1", Email: "jane@example.com", PasswordHash: string(hash), IsActive: active}
}

// --- Login ---

func TestLogin_HappyPath(t *testing.T) {
	svc, users, _, p := newTestService(t)
	ctx := context.Background()
	u := userWithPassword(t, "s3cretpass", true)

	users.On("GetByEmail", ctx, "jane@example.com").Return(u, nil)
	users.On("Update", ctx, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		_, ok := m["last_login_at"]
		return ok && len(m) == 1
	})).Return(nil)

	res, err := svc.Login(ctx, domain.LoginRequest{Email: "jane@EXAMPLE.com", Password: "s3cretpass"})
	require.NoError(t, err)
	assert.Equal(t, u, res.User)
	assert.NotNil(t, res.User.LastLoginAt)

	claims, err := p.VerifyType(res.Access, jwtinfra.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "jane@example.com", claims.Email)
	_, err = p.VerifyType(res.Refresh, jwtinfra.TypeRefresh)
	assert.NoError(t, err)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	ctx := context.Background()
	users.On("GetByEmail", ctx, mock.Anything).Return(userWithPassword(t, "s3cretpass", true), nil)

	_, err := svc.Login(ctx, domain.LoginRequest{Email: "jane@example.com", Password: "nope-nope"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	ctx := context.Background()
	users.On("GetByEmail", ctx, mock.Anything).Return(nil, domain.ErrNotFound)

	_, err := svc.Login(ctx, domain.LoginRequest{Email: "who@example.com", Password: "whatever1"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestLogin_Inactive(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	ctx := context.Background()
	users.On("GetByEmail", ctx, mock.Anything).Return(userWithPassword(t, "s3cretpass", false), nil)

	_, err := svc.Login(ctx, domain.LoginRequest{Email: "jane@example.com", Password: "s3cretpass"})
	assert.ErrorIs(t, err, domain.ErrInactiveAccount)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestLogin_GoogleOnlyAccountHasNoPassword(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	ctx := context.Background()
	users.On("GetByEmail", ctx, mock.Anything).Return(&domain.User{UserID: "u1", IsActive: true}, nil)

	_, err := svc.Login(ctx, domain.LoginRequest{Email: "jane@example.com", Password: "anything1"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestLogin_UpdateFailureDoesNotBlock(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	ctx := context.Background()
	users.On("GetByEmail", ctx, mock.Anything).Return(userWithPassword(t, "s3cretpass", true), nil)
	users.On("Update", ctx, "u1", mock.Anything).Return(errors.New("throttled"))

	res, err := svc.Login(ctx, domain.LoginRequest{Email: "jane@example.com", Password: "s3cretpass"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Access)
}

// --- Refresh / Verify ---

func TestRefresh(t *testing.T) {
	svc, users, _, p := newTestService(t)
	ctx := context.Background()
	u := &domain.User{UserID: "u1", Email: "jane@example.com", IsActive: true}
	users.On("Get", ctx, "u1").Return(u, nil)

	refresh, err := p.SignRefresh("u1")
	require.NoError(t, err)
	access, err := svc.Refresh(ctx, refresh)
	require.NoError(t, err)
	claims, err := p.VerifyType(access, jwtinfra.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	svc, _, _, p := newTestService(t)
	access, err := p.SignAccess(&domain.User{UserID: "u1"})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), access)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRefresh_DeletedUser(t *testing.T) {
	svc, users, _, p := newTestService(t)
	ctx := context.Background()
	users.On("Get", ctx, "u1").Return(nil, domain.ErrNotFound)
	refresh, err := p.SignRefresh("u1")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, refresh)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerify(t *testing.T) {
	svc, _, _, p := newTestService(t)
	access, err := p.SignAccess(&domain.User{UserID: "u1"})
	require.NoError(t, err)

	assert.NoError(t, svc.Verify(context.Background(), access))
	assert.ErrorIs(t, svc.Verify(context.Background(), "garbage"), domain.ErrUnauthorized)

	other := newProvider(t)
	foreign, err := other.SignAccess(&domain.User{UserID: "u1"})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Verify(context.Background(), foreign), domain.ErrUnauthorized)
}

// --- Google ---

func TestGoogle_CreatesUserOnFirstSignIn(t *testing.T) {
	svc, users, g, _ := newTestService(t)
	ctx := context.Background()
	g.On("Exchange", ctx, "auth-code").Return(&google.Identity{
		Sub: "g-1", Email: "New@Gmail.com", EmailVerified: true, FirstName: "New", LastName: "User",
	}, nil)
	users.On("GetByEmail", ctx, "New@gmail.com").Return(nil, domain.ErrNotFound)
	var created *domain.User
	users.On("Create", ctx, mock.AnythingOfType("*domain.User")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*domain.User) }).
		Return(nil)

	res, err := svc.Google(ctx, GoogleRequest{Code: "auth-code"})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, domain.SourceGoogle, created.RegistrationSource)
	assert.True(t, created.IsActive)
	assert.Empty(t, created.PasswordHash)
	assert.Equal(t, "New", created.FirstName)
	assert.NotEmpty(t, res.Access)
	assert.NotEmpty(t, res.Refresh)
}

func TestGoogle_UpdatesExistingUser(t *testing.T) {
	svc, users, g, _ := newTestService(t)
	ctx := context.Background()
	existing := &domain.User{UserID: "u1", Email: "jane@example.com", RegistrationSource: domain.SourceLocal}
	g.On("VerifyIDToken", ctx, "id-token").Return(&google.Identity{
		Email: "jane@example.com", EmailVerified: true, FirstName: "Jane", LastName: "Doe",
	}, nil)
	users.On("GetByEmail", ctx, "jane@example.com").Return(existing, nil)
	users.On("Update", ctx, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		return m["registration_source"] == domain.SourceGoogle && m["is_active"] == true
	})).Return(nil)

	res, err := svc.Google(ctx, GoogleRequest{IDToken: "id-token"})
	require.NoError(t, err)
	assert.True(t, res.User.IsActive)
	assert.Equal(t, "Doe", res.User.LastName)
	users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGoogle_InactiveLocalAccountLosesPassword(t *testing.T) {
	svc, users, g, _ := newTestService(t)
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("squatterPass1"), bcrypt.MinCost)
	require.NoError(t, err)
	existing := &domain.User{
		UserID: "u1", Email: "jane@example.com", PasswordHash: string(hash),
		RegistrationSource: domain.SourceLocal,
	}
	g.On("VerifyIDToken", ctx, "id-token").Return(&google.Identity{
		Email: "jane@example.com", EmailVerified: true, FirstName: "Jane", LastName: "Doe",
	}, nil)
	users.On("GetByEmail", ctx, "jane@example.com").Return(existing, nil)
	users.On("Update", ctx, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		h, ok := m["password_hash"]
		return ok && h == "" && m["is_active"] == true
	})).Return(nil)

	res, err := svc.Google(ctx, GoogleRequest{IDToken: "id-token"})
	require.NoError(t, err)
	assert.True(t, res.User.IsActive)
	assert.Empty(t, res.User.PasswordHash)

	_, err = svc.Login(ctx, domain.LoginRequest{Email: "jane@example.com", Password: "squatterPass1"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestGoogle_ActiveLocalAccountKeepsPassword(t *testing.T) {
	svc, users, g, _ := newTestService(t)
	ctx := context.Background()
	existing := &domain.User{
		UserID: "u1", Email: "jane@example.com", PasswordHash: "$2a$04$existing",
		RegistrationSource: domain.SourceLocal, IsActive: true,
	}
	g.On("VerifyIDToken", ctx, "id-token").Return(&google.Identity{
		Email: "jane@example.com", EmailVerified: true,
	}, nil)
	users.On("GetByEmail", ctx, "jane@example.com").Return(existing, nil)
	users.On("Update", ctx, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		_, ok := m["password_hash"]
		return !ok
	})).Return(nil)

	res, err := svc.Google(ctx, GoogleRequest{IDToken: "id-token"})
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$existing", res.User.PasswordHash)
}

func TestGoogle_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("no credential", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		_, err := svc.Google(ctx, GoogleRequest{})
		assert.ErrorIs(t, err, domain.ErrBadRequest)
	})
	t.Run("exchange fails", func(t *testing.T) {
		svc, _, g, _ := newTestService(t)
		g.On("Exchange", ctx, "bad").Return(nil, errors.New("invalid_grant"))
		_, err := svc.Google(ctx, GoogleRequest{Code: "bad"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
	t.Run("unverified email", func(t *testing.T) {
		svc, users, g, _ := newTestService(t)
		g.On("Exchange", ctx, "c").Return(&google.Identity{Email: "x@example.com"}, nil)
		_, err := svc.Google(ctx, GoogleRequest{Code: "c"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
	})
	t.Run("not configured", func(t *testing.T) {
		svc := NewService(ServiceDeps{UserRepo: &mockUserStore{}, JWTProvider: newProvider(t)})
		_, err := svc.Google(ctx, GoogleRequest{Code: "c"})
		assert.ErrorIs(t, err, domain.ErrBadRequest)
	})
}

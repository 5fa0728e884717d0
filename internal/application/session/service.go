package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-api-accounts/internal/domain"
	"github.com/go-api-accounts/internal/infrastructure/google"
	jwtinfra "github.com/go-api-accounts/internal/infrastructure/jwt"
	"github.com/go-api-accounts/internal/pkg/id"
	"github.com/go-api-accounts/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// Attribute names used in partial update maps.
const (
	fieldFirstName          = "first_name"
	fieldLastName           = "last_name"
	fieldIsActive           = "is_active"
	fieldLastLoginAt        = "last_login_at"
	fieldRegistrationSource = "registration_source"
	fieldPasswordHash       = "password_hash"
)

// GoogleRequest carries either an authorization code or an ID token obtained by the client.
type GoogleRequest struct {
	Code    string `json:"code"`
	IDToken string `json:"id_token"`
}

// LoginResult is a JWT pair together with the user it was issued for.
type LoginResult struct {
	User    *domain.User `json:"user"`
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
}

type Service interface {
	Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Verify(ctx context.Context, token string) error
	Google(ctx context.Context, req GoogleRequest) (*LoginResult, error)
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type tokenIssuer interface {
	SignAccess(u *domain.User) (string, error)
	SignRefresh(userID string) (string, error)
	Verify(token string) (*jwtinfra.Claims, error)
	VerifyType(token, tokenType string) (*jwtinfra.Claims, error)
}

type identityProvider interface {
	Exchange(ctx context.Context, code string) (*google.Identity, error)
	VerifyIDToken(ctx context.Context, token string) (*google.Identity, error)
}

type service struct {
	users  userStore
	tokens tokenIssuer
	google identityProvider
	now    func() time.Time
}

type ServiceDeps struct {
	UserRepo    userStore
	JWTProvider tokenIssuer
	// Google is optional; without it Google sign-in answers ErrBadRequest.
	Google identityProvider
}

func NewService(deps ServiceDeps) Service {
	return &service{
		users:  deps.UserRepo,
		tokens: deps.JWTProvider,
		google: deps.Google,
		now:    time.Now,
	}
}

func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}
	u, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if !u.IsActive {
		return nil, domain.ErrInactiveAccount
	}
	s.touchLogin(ctx, u)
	return s.pair(u)
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.VerifyType(refreshToken, jwtinfra.TypeRefresh)
	if err != nil {
		return "", fmt.Errorf("invalid refresh token: %w", domain.ErrUnauthorized)
	}
	u, err := s.users.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("invalid refresh token: %w", domain.ErrUnauthorized)
		}
		return "", err
	}
	if !u.IsActive {
		return "", domain.ErrInactiveAccount
	}
	return s.tokens.SignAccess(u)
}

func (s *service) Verify(_ context.Context, token string) error {
	if _, err := s.tokens.Verify(token); err != nil {
		return fmt.Errorf("token is invalid or expired: %w", domain.ErrUnauthorized)
	}
	return nil
}

// Google signs a user in with a Google identity, creating the account on first
// use. The account is active immediately since Google vouches for the address.
func (s *service) Google(ctx context.Context, req GoogleRequest) (*LoginResult, error) {
	if s.google == nil {
		return nil, fmt.Errorf("google sign-in is not configured: %w", domain.ErrBadRequest)
	}
	var (
		ident *google.Identity
		err   error
	)
	switch {
	case req.IDToken != "":
		ident, err = s.google.VerifyIDToken(ctx, req.IDToken)
	case req.Code != "":
		ident, err = s.google.Exchange(ctx, req.Code)
	default:
		return nil, fmt.Errorf("%w: %w", domain.ErrBadRequest, validate.FieldErrors{"code": "is required"})
	}
	if err != nil {
		slog.Warn("google identity rejected", "error", err)
		return nil, fmt.Errorf("invalid google credentials: %w", domain.ErrUnauthorized)
	}
	if ident.Email == "" {
		return nil, fmt.Errorf("google did not return an email: %w", domain.ErrBadRequest)
	}
	if !ident.EmailVerified {
		return nil, fmt.Errorf("google email is not verified: %w", domain.ErrUnauthorized)
	}

	email := domain.NormalizeEmail(ident.Email)
	now := s.now().UTC()
	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		u = &domain.User{
			UserID:             id.New(),
			Email:              email,
			FirstName:          ident.FirstName,
			LastName:           ident.LastName,
			RegistrationSource: domain.SourceGoogle,
			IsActive:           true,
			LastLoginAt:        &now,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.users.Create(ctx, u); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		updates := map[string]interface{}{
			fieldFirstName:          ident.FirstName,
			fieldLastName:           ident.LastName,
			fieldRegistrationSource: domain.SourceGoogle,
			fieldIsActive:           true,
			fieldLastLoginAt:        now,
		}
		// An unconfirmed local password was never proven to belong to the
		// Google-verified owner of this email.
		clearHash := !u.IsActive && u.PasswordHash != ""
		if clearHash {
			updates[fieldPasswordHash] = ""
		}
		if err := s.users.Update(ctx, u.UserID, updates); err != nil {
			return nil, err
		}
		if clearHash {
			slog.Info("unconfirmed password discarded on google sign-in", "user_id", u.UserID)
			u.PasswordHash = ""
		}
		u.FirstName, u.LastName = ident.FirstName, ident.LastName
		u.RegistrationSource = domain.SourceGoogle
		u.IsActive = true
		u.LastLoginAt = &now
	}
	return s.pair(u)
}

// touchLogin records the login time. A failure does not block the login.
func (s *service) touchLogin(ctx context.Context, u *domain.User) {
	now := s.now().UTC()
	if err := s.users.Update(ctx, u.UserID, map[string]interface{}{fieldLastLoginAt: now}); err != nil {
		slog.Warn("update last login", "user_id", u.UserID, "error", err)
		return
	}
	u.LastLoginAt = &now
}

func (s *service) pair(u *domain.User) (*LoginResult, error) {
	access, err := s.tokens.SignAccess(u)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.SignRefresh(u.UserID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: u, Access: access, Refresh: refresh}, nil
}

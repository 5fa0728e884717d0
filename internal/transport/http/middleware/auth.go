package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-api-accounts/internal/domain"
	jwtinfra "github.com/go-api-accounts/internal/infrastructure/jwt"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller.
type Principal struct {
	UserID  string
	Email   string
	IsStaff bool
	// Scheme is "Bearer" for JWT access tokens and "Token" for API keys.
	Scheme string
}

type tokenVerifier interface {
	VerifyType(token, tokenType string) (*jwtinfra.Claims, error)
}

// APIKeyResolver resolves an activation API key to its owner.
type APIKeyResolver interface {
	GetAPITokenByKey(ctx context.Context, key string) (*domain.APIToken, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
}

// Auth accepts "Authorization: Bearer <access jwt>" or, when keys is non-nil,
// "Authorization: Token <api key>", and injects the Principal into the context.
func Auth(verifier tokenVerifier, keys APIKeyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, credential, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || credential == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			var p *Principal
			switch {
			case strings.EqualFold(scheme, "Bearer"):
				claims, err := verifier.VerifyType(credential, jwtinfra.TypeAccess)
				if err != nil {
					writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
					return
				}
				p = &Principal{UserID: claims.UserID, Email: claims.Email, IsStaff: claims.IsStaff, Scheme: "Bearer"}
			case strings.EqualFold(scheme, "Token") && keys != nil:
				u, err := resolveKey(r.Context(), keys, credential)
				if err != nil {
					writeJSONError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				p = &Principal{UserID: u.UserID, Email: u.Email, IsStaff: u.IsStaff, Scheme: "Token"}
			default:
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func resolveKey(ctx context.Context, keys APIKeyResolver, key string) (*domain.User, error) {
	tok, err := keys.GetAPITokenByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	u, err := keys.Get(ctx, tok.UserID)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, domain.ErrInactiveAccount
	}
	return u, nil
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the authenticated caller from the request context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

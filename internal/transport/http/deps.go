package http

import (
	"context"

	"github.com/go-api-accounts/internal/domain"
	"github.com/go-api-accounts/internal/infrastructure/google"
)

// UserRepository is the minimal interface the router requires from a user store.
// Both the DynamoDB and the Postgres repositories satisfy it.
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	// Activate sets is_active and returns the user's API token, storing candidate if none exists.
	Activate(ctx context.Context, userID string, candidate *domain.APIToken) (*domain.APIToken, error)
	GetAPITokenByKey(ctx context.Context, key string) (*domain.APIToken, error)
}

// Confirmation issues and consumes one-time codes.
type Confirmation interface {
	Issue(ctx context.Context, userID string) (string, error)
	VerifyAndConsume(ctx context.Context, userID, candidate string) (bool, error)
}

// TaskQueue accepts background work without blocking the request.
type TaskQueue interface {
	Enqueue(ctx context.Context, name string, args map[string]string) (string, error)
}

// GoogleClient resolves Google credentials to an identity.
type GoogleClient interface {
	Exchange(ctx context.Context, code string) (*google.Identity, error)
	VerifyIDToken(ctx context.Context, token string) (*google.Identity, error)
}

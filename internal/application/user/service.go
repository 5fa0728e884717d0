package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-api-accounts/internal/domain"
	"github.com/go-api-accounts/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// Attribute names used in partial update maps.
const (
	fieldFirstName    = "first_name"
	fieldLastName     = "last_name"
	fieldPhone        = "phone_number"
	fieldBirthday     = "birthday"
	fieldPasswordHash = "password_hash"
)

type Service interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.User, error)
	ChangePassword(ctx context.Context, userID string, req domain.ChangePasswordRequest) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type service struct {
	repo     userStore
	hashCost int
}

type ServiceDeps struct {
	UserRepo userStore
	HashCost int // defaults to bcrypt.DefaultCost
}

func NewService(deps ServiceDeps) Service {
	cost := deps.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &service{repo: deps.UserRepo, hashCost: cost}
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) UpdateProfile(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.User, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}
	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates[fieldFirstName] = *req.FirstName
	}
	if req.LastName != nil {
		updates[fieldLastName] = *req.LastName
	}
	if req.Phone != nil {
		updates[fieldPhone] = validate.NormalizePhone(*req.Phone)
	}
	if req.Birthday != nil {
		b, err := time.Parse("2006-01-02", *req.Birthday)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrBadRequest,
				validate.FieldErrors{"birthday": "must use format YYYY-MM-DD"})
		}
		updates[fieldBirthday] = b
	}
	if len(updates) > 0 {
		if err := s.repo.Update(ctx, userID, updates); err != nil {
			return nil, err
		}
	}
	return s.repo.Get(ctx, userID)
}

func (s *service) ChangePassword(ctx context.Context, userID string, req domain.ChangePasswordRequest) error {
	if err := validate.Struct(req); err != nil {
		var fe validate.FieldErrors
		if errors.As(err, &fe) {
			if _, ok := fe["new_password"]; ok {
				return fmt.Errorf("%w: %w", domain.ErrWeakPassword, err)
			}
		}
		return fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}
	if req.NewPassword != req.NewPassword2 {
		return fmt.Errorf("%w: %w", domain.ErrPasswordMismatch,
			validate.FieldErrors{"new_password2": "passwords do not match"})
	}
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.OldPassword)) != nil {
		return fmt.Errorf("%w: %w", domain.ErrBadRequest,
			validate.FieldErrors{"old_password": "is incorrect"})
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.hashCost)
	if err != nil {
		return err
	}
	return s.repo.Update(ctx, userID, map[string]interface{}{fieldPasswordHash: string(hash)})
}

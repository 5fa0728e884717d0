package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-api-accounts/internal/domain"
	"github.com/go-api-accounts/internal/pkg/id"
	"github.com/go-api-accounts/internal/pkg/token"
	"github.com/go-api-accounts/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// RegisterResult is what a caller learns about a fresh registration.
// Code is only filled when debug exposure is enabled.
type RegisterResult struct {
	UserID   string `json:"user_id"`
	CodeSent bool   `json:"code_sent"`
	Code     string `json:"confirmation_code,omitempty"`
}

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*RegisterResult, error)
	Confirm(ctx context.Context, req domain.ConfirmRequest) (*domain.APIToken, error)
	Resend(ctx context.Context, req domain.ResendRequest) error
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Activate(ctx context.Context, userID string, candidate *domain.APIToken) (*domain.APIToken, error)
}

type codeIssuer interface {
	Issue(ctx context.Context, userID string) (string, error)
	VerifyAndConsume(ctx context.Context, userID, candidate string) (bool, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, name string, args map[string]string) (string, error)
}

type service struct {
	users       userStore
	codes       codeIssuer
	tasks       enqueuer
	alertAdmin  bool
	exposeCodes bool
	hashCost    int
	now         func() time.Time
}

type ServiceDeps struct {
	UserRepo     userStore
	Confirmation codeIssuer
	Tasks        enqueuer
	// AlertAdmin enqueues a notify_admin task when the code store is down during registration.
	AlertAdmin bool
	// ExposeCodes puts the plaintext code into RegisterResult. Development only.
	ExposeCodes bool
	// HashCost defaults to bcrypt.DefaultCost.
	HashCost int
}

func NewService(deps ServiceDeps) Service {
	cost := deps.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &service{
		users:       deps.UserRepo,
		codes:       deps.Confirmation,
		tasks:       deps.Tasks,
		alertAdmin:  deps.AlertAdmin,
		exposeCodes: deps.ExposeCodes,
		hashCost:    cost,
		now:         time.Now,
	}
}

func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*RegisterResult, error) {
	if err := validate.Struct(req); err != nil {
		var fe validate.FieldErrors
		if errors.As(err, &fe) {
			if _, ok := fe["password"]; ok {
				return nil, fmt.Errorf("%w: %w", domain.ErrWeakPassword, err)
			}
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}
	if req.Password != req.Password2 {
		return nil, fmt.Errorf("%w: %w", domain.ErrPasswordMismatch,
			validate.FieldErrors{"password2": "passwords do not match"})
	}

	email := domain.NormalizeEmail(req.Email)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, domain.ErrDuplicateEmail
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	var birthday *time.Time
	if req.Birthday != "" {
		b, err := time.Parse("2006-01-02", req.Birthday)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrBadRequest,
				validate.FieldErrors{"birthday": "must use format YYYY-MM-DD"})
		}
		birthday = &b
	}
	var phone *string
	if req.Phone != nil && *req.Phone != "" {
		p := validate.NormalizePhone(*req.Phone)
		phone = &p
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:             id.New(),
		Email:              email,
		PasswordHash:       string(hash),
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Phone:              phone,
		Birthday:           birthday,
		RegistrationSource: domain.SourceLocal,
		IsActive:           false,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	code, err := s.codes.Issue(ctx, u.UserID)
	if err != nil {
		// The account stays inactive; the user recovers through resend.
		slog.Error("issue confirmation code", "user_id", u.UserID, "error", err)
		if errors.Is(err, domain.ErrStoreUnavailable) {
			s.notifyAdmin(ctx, "code_store_unavailable", fmt.Sprintf("registration of user %s: %v", u.UserID, err))
		}
		return nil, err
	}

	res := &RegisterResult{UserID: u.UserID, CodeSent: true}
	if _, err := s.tasks.Enqueue(ctx, domain.TaskSendConfirmationEmail, map[string]string{
		"email": u.Email,
		"code":  code,
	}); err != nil {
		slog.Warn("enqueue confirmation email", "user_id", u.UserID, "error", err)
		res.CodeSent = false
	}
	if s.exposeCodes {
		res.Code = code
	}
	return res, nil
}

func (s *service) Confirm(ctx context.Context, req domain.ConfirmRequest) (*domain.APIToken, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}
	ok, err := s.codes.VerifyAndConsume(ctx, req.UserID, req.Code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidOrExpiredCode
	}

	u, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Error("confirmed code for missing user", "user_id", req.UserID)
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}

	key, err := token.NewAPIKey()
	if err != nil {
		return nil, err
	}
	tok, err := s.users.Activate(ctx, u.UserID, &domain.APIToken{
		Key:       key,
		UserID:    u.UserID,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Error("user removed before activation", "user_id", u.UserID)
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return tok, nil
}

// Resend issues a fresh code for an inactive account. Unknown and already active
// addresses are indistinguishable from success to the caller.
func (s *service) Resend(ctx context.Context, req domain.ResendRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}
	u, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if u.IsActive {
		return nil
	}
	sms := req.Channel == "sms"
	if sms && (u.Phone == nil || *u.Phone == "") {
		slog.Info("sms resend requested without phone", "user_id", u.UserID)
		return nil
	}

	code, err := s.codes.Issue(ctx, u.UserID)
	if err != nil {
		// Answer like an unknown address so the outage does not reveal the account.
		slog.Error("issue code on resend", "user_id", u.UserID, "error", err)
		if errors.Is(err, domain.ErrStoreUnavailable) {
			s.notifyAdmin(ctx, "code_store_unavailable", fmt.Sprintf("resend for user %s: %v", u.UserID, err))
		}
		return nil
	}
	task, args := domain.TaskSendConfirmationEmail, map[string]string{"email": u.Email, "code": code}
	if sms {
		task, args = domain.TaskSendConfirmationSMS, map[string]string{"phone": *u.Phone, "code": code}
	}
	if _, err := s.tasks.Enqueue(ctx, task, args); err != nil {
		slog.Warn("enqueue resend", "user_id", u.UserID, "task", task, "error", err)
	}
	return nil
}

func (s *service) notifyAdmin(ctx context.Context, kind, details string) {
	if !s.alertAdmin {
		return
	}
	if _, err := s.tasks.Enqueue(ctx, domain.TaskNotifyAdmin, map[string]string{
		"error_type": kind,
		"details":    details,
	}); err != nil {
		slog.Warn("enqueue admin alert", "error", err)
	}
}

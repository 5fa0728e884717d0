package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-api-accounts/internal/domain"
	"github.com/go-api-accounts/internal/infrastructure/queue"
)

type mailer interface {
	SendEmail(to, subject, body string) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type registrar interface {
	Register(name string, h queue.Handler)
}

// Service delivers account notifications from background tasks.
type Service struct {
	mailer     mailer
	sms        smsSender
	adminEmail string
	now        func() time.Time
}

type ServiceDeps struct {
	Mailer     mailer
	SMSSender  smsSender // optional; SMS tasks fail permanently without it
	AdminEmail string
}

func NewService(deps ServiceDeps) *Service {
	return &Service{
		mailer:     deps.Mailer,
		sms:        deps.SMSSender,
		adminEmail: deps.AdminEmail,
		now:        time.Now,
	}
}

// RegisterHandlers binds every notification task to q.
func (s *Service) RegisterHandlers(q registrar) {
	q.Register(domain.TaskSendConfirmationEmail, s.SendConfirmationEmail)
	q.Register(domain.TaskSendConfirmationSMS, s.SendConfirmationSMS)
	q.Register(domain.TaskNotifyAdmin, s.NotifyAdmin)
}

func (s *Service) SendConfirmationEmail(_ context.Context, args map[string]string) error {
	email, code := args["email"], args["code"]
	if email == "" || code == "" {
		return queue.Permanent(errors.New("send_confirmation_email: email and code required"))
	}
	return s.mailer.SendEmail(email, "Confirm your account",
		fmt.Sprintf("Your confirmation code: %s\n\nDo not share it with anyone.", code))
}

func (s *Service) SendConfirmationSMS(ctx context.Context, args map[string]string) error {
	phone, code := args["phone"], args["code"]
	if phone == "" || code == "" {
		return queue.Permanent(errors.New("send_confirmation_sms: phone and code required"))
	}
	if s.sms == nil {
		return queue.Permanent(errors.New("send_confirmation_sms: no SMS sender configured"))
	}
	return s.sms.SendSMS(ctx, phone, "Your confirmation code: "+code)
}

// NotifyAdmin mails the configured administrator. Without an admin address
// the alert is only logged.
func (s *Service) NotifyAdmin(_ context.Context, args map[string]string) error {
	kind, details := args["error_type"], args["details"]
	if s.adminEmail == "" {
		slog.Warn("admin alert dropped, ADMIN_EMAIL not set", "error_type", kind)
		return nil
	}
	body := fmt.Sprintf("Time: %s\nError type: %s\n\nDetails:\n%s\n\n--\nAutomatic monitoring notification.",
		s.now().UTC().Format("2006-01-02 15:04:05"), kind, details)
	return s.mailer.SendEmail(s.adminEmail, "Critical error: "+kind, body)
}

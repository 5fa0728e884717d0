package resend

import (
	"fmt"

	"github.com/resend/resend-go/v3"

	"github.com/go-api-accounts/internal/config"
)

type emailSender interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Mailer delivers plain-text email through the Resend API.
type Mailer struct {
	emails emailSender
	from   string
}

func NewMailer(cfg *config.Config) *Mailer {
	client := resend.NewClient(cfg.ResendAPIKey)
	return &Mailer{emails: client.Emails, from: cfg.SMTPFrom}
}

func (m *Mailer) SendEmail(to, subject, body string) error {
	_, err := m.emails.Send(&resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	return nil
}

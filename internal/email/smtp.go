package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/careteam/mdt-api/config"
)

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPService creates a gomail-backed notification sender.
func NewSMTPService(cfg config.SMTPConfig) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) SendWelcome(ctx context.Context, to, name string) error {
	body := fmt.Sprintf("Hello %s,\n\nYour account has been created. You can now sign in and start collaborating on cases.", name)
	return s.send(ctx, to, "Welcome to the MDT network", body)
}

func (s *smtpService) SendInvitation(ctx context.Context, to, mdtName, specialty string) error {
	body := fmt.Sprintf("You have been invited to join the case %q", mdtName)
	if specialty != "" {
		body += fmt.Sprintf(" for the %s position", specialty)
	}
	body += ".\n\nSign in to review the case summary and respond."
	return s.send(ctx, to, "New case invitation", body)
}

func (s *smtpService) SendInvitationResolved(ctx context.Context, to, mdtName, receiverName, status string) error {
	body := fmt.Sprintf("%s has %s the invitation to the case %q.", receiverName, status, mdtName)
	return s.send(ctx, to, "Invitation update", body)
}

func (s *smtpService) send(ctx context.Context, to, subject, body string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

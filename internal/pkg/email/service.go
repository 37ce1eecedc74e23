// internal/pkg/email/service.go
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/your-org/milkcart-backend/internal/config"
)

// Service sends transactional email over SMTP. When email is disabled
// in config every send is a logged no-op.
type Service struct {
	config *config.Config
	log    *logrus.Logger
}

// NewService creates a new email service
func NewService(cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{
		config: cfg,
		log:    log,
	}
}

// Email represents an outgoing message
type Email struct {
	To          []string
	Subject     string
	HTMLContent string
}

// Send delivers the email via SMTP
func (s *Service) Send(email *Email) error {
	if !s.config.Email.Enabled {
		s.log.WithFields(logrus.Fields{
			"to":      email.To,
			"subject": email.Subject,
		}).Debug("email disabled, skipping send")
		return nil
	}

	cfg := s.config.Email
	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", cfg.FromName, cfg.FromEmail)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(email.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", email.Subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(email.HTMLContent)

	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, cfg.FromEmail, email.To, msg.Bytes()); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// SendOrderConfirmation emails the customer after an order is confirmed
func (s *Service) SendOrderConfirmation(to, userName, orderNumber, total string) error {
	html, err := render(orderConfirmationTemplate, map[string]string{
		"UserName":    userName,
		"OrderNumber": orderNumber,
		"Total":       total,
		"Company":     s.config.Company.Name,
	})
	if err != nil {
		return err
	}

	return s.Send(&Email{
		To:          []string{to},
		Subject:     fmt.Sprintf("Order Confirmation - %s", orderNumber),
		HTMLContent: html,
	})
}

// SendWelcome emails a new account holder
func (s *Service) SendWelcome(to, userName string) error {
	html, err := render(welcomeTemplate, map[string]string{
		"UserName": userName,
		"Company":  s.config.Company.Name,
	})
	if err != nil {
		return err
	}

	return s.Send(&Email{
		To:          []string{to},
		Subject:     fmt.Sprintf("Welcome to %s!", s.config.Company.Name),
		HTMLContent: html,
	})
}

func render(tmpl string, data map[string]string) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse email template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render email template: %w", err)
	}
	return buf.String(), nil
}

const welcomeTemplate = `<html><body>
<h2>Welcome to {{.Company}}, {{.UserName}}!</h2>
<p>Your account is ready. Fresh milk is a few taps away.</p>
</body></html>`

const orderConfirmationTemplate = `<html><body>
<h2>Thanks for your order, {{.UserName}}!</h2>
<p>Order <strong>{{.OrderNumber}}</strong> has been confirmed.</p>
<p>Total: <strong>{{.Total}}</strong></p>
<p>— {{.Company}}</p>
</body></html>`

package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendgridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender envia el codigo via la API transaccional de SendGrid.
type SendGridSender struct {
	client   sendgridClient
	from     string
	fromName string
	sandbox  bool
}

func NewSendGridSender(apiKey, from, fromName string, sandbox bool) (*SendGridSender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("sendgrid from is required")
	}
	return &SendGridSender{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
		sandbox:  sandbox,
	}, nil
}

func (s *SendGridSender) SendLoginOTP(ctx context.Context, toEmail string, code string, expiresAt time.Time) error {
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("to email is required")
	}

	msg := s.buildMessage(toEmail, code, expiresAt)
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send failed: status %d", resp.StatusCode)
	}
	return nil
}

func (s *SendGridSender) buildMessage(toEmail, code string, expiresAt time.Time) *mail.SGMailV3 {
	from := mail.NewEmail(s.fromName, s.from)
	to := mail.NewEmail("", toEmail)
	html := fmt.Sprintf("<p>Your login code is <strong>%s</strong>.</p><p>It expires at %s UTC.</p>",
		code, expiresAt.UTC().Format(time.RFC3339))
	msg := mail.NewSingleEmail(from, loginOTPSubject, to, loginOTPBody(code, expiresAt), html)
	if s.sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		msg.MailSettings = ms
	}
	return msg
}

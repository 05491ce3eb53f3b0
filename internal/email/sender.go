package email

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sender define la interfaz para envio del codigo de login.
type Sender interface {
	SendLoginOTP(ctx context.Context, toEmail string, code string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendLoginOTP(_ context.Context, _ string, _ string, _ time.Time) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

const loginOTPSubject = "Your login code"

func loginOTPBody(code string, expiresAt time.Time) string {
	return fmt.Sprintf(
		"Your login code is %s.\nIt expires at %s UTC.\nIf you did not try to sign in, you can ignore this email.\n",
		code,
		expiresAt.UTC().Format(time.RFC3339),
	)
}

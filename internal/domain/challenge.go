package domain

import "time"

type ChallengeState string

const (
	ChallengePending   ChallengeState = "pending"
	ChallengeVerified  ChallengeState = "verified"
	ChallengeExpired   ChallengeState = "expired"
	ChallengeExhausted ChallengeState = "exhausted"
)

// Terminal indica si el estado ya no admite transiciones.
func (s ChallengeState) Terminal() bool {
	return s != ChallengePending
}

// LoginChallenge representa una verificacion OTP en curso, identificada por
// un token opaco. El codigo en claro nunca se guarda.
type LoginChallenge struct {
	Token       string         `json:"token"`
	UserID      string         `json:"user_id"`
	Email       string         `json:"email"`
	OTPHash     string         `json:"otp_hash"`
	State       ChallengeState `json:"state"`
	Attempts    int            `json:"attempts"`
	ResendCount int            `json:"resend_count"`
	RememberMe  bool           `json:"remember_me"`
	IssuedAt    time.Time      `json:"issued_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Version     int64          `json:"version"`
}

// Consumed es verdadero una vez que el challenge llego a un estado terminal.
func (c LoginChallenge) Consumed() bool {
	return c.State.Terminal()
}

// ExpiredAt indica si la ventana del codigo ya paso en el instante now.
func (c LoginChallenge) ExpiredAt(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

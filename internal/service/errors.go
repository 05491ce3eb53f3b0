package service

import "errors"

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrChallengeNotFound    = errors.New("challenge not found")
	ErrChallengeExpired     = errors.New("challenge expired")
	ErrTooManyAttempts      = errors.New("too many attempts")
	ErrInvalidCode          = errors.New("invalid code")
	ErrResendLimitExceeded  = errors.New("resend limit exceeded")
	ErrRateLimited          = errors.New("rate limited")
	ErrDeliveryUnavailable  = errors.New("otp delivery unavailable")
	ErrChallengeContention  = errors.New("challenge update contention")
	ErrSessionInvalid       = errors.New("session invalid")
	ErrSessionExpired       = errors.New("session expired")
	ErrServiceNotConfigured = errors.New("service not configured")
)

// ErrorKind devuelve el identificador estable de un error del flujo de login.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrChallengeNotFound):
		return "challenge_not_found"
	case errors.Is(err, ErrChallengeExpired):
		return "challenge_expired"
	case errors.Is(err, ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrResendLimitExceeded):
		return "resend_limit_exceeded"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrDeliveryUnavailable):
		return "delivery_unavailable"
	default:
		return "internal_error"
	}
}

package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"stepup-auth/internal/domain"
	"stepup-auth/internal/email"
	"stepup-auth/internal/repository"
)

const (
	defaultOTPTTL      = 5 * time.Minute
	defaultMaxAttempts = 5
	defaultMaxResends  = 3

	maxSwapRetries  = 8
	maxTokenRetries = 3
)

// ChallengeOptions fija los limites de cada challenge.
type ChallengeOptions struct {
	TTL         time.Duration
	MaxAttempts int
	MaxResends  int
}

// ChallengeManager coordina emision, reenvio y verificacion de challenges OTP.
// Cada transicion es un ciclo leer-mutar-CAS sobre el almacen; la entrega del
// correo ocurre siempre despues de confirmar la escritura.
type ChallengeManager struct {
	logger      *zap.Logger
	store       repository.ChallengeRepository
	sender      email.Sender
	ttl         time.Duration
	maxAttempts int
	maxResends  int
	now         func() time.Time
}

func NewChallengeManager(logger *zap.Logger, store repository.ChallengeRepository, sender email.Sender, opts ChallengeOptions) *ChallengeManager {
	if opts.TTL <= 0 {
		opts.TTL = defaultOTPTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.MaxResends < 0 {
		opts.MaxResends = defaultMaxResends
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChallengeManager{
		logger:      logger,
		store:       store,
		sender:      sender,
		ttl:         opts.TTL,
		maxAttempts: opts.MaxAttempts,
		maxResends:  opts.MaxResends,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type IssuedChallenge struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// VerifiedChallenge trae el usuario del challenge; UserID viene informado
// incluso cuando la verificacion falla, si el challenge existia.
type VerifiedChallenge struct {
	UserID     string
	RememberMe bool
}

// Issue crea siempre un challenge nuevo para el usuario y envia el codigo.
func (m *ChallengeManager) Issue(ctx context.Context, user domain.User, rememberMe bool) (IssuedChallenge, error) {
	if m.store == nil || m.sender == nil {
		return IssuedChallenge{}, ErrServiceNotConfigured
	}

	code, hash, err := generateOTP()
	if err != nil {
		return IssuedChallenge{}, err
	}

	now := m.now()
	ch := domain.LoginChallenge{
		UserID:     user.ID,
		Email:      user.Email,
		OTPHash:    hash,
		State:      domain.ChallengePending,
		RememberMe: rememberMe,
		IssuedAt:   now,
		ExpiresAt:  now.Add(m.ttl),
		Version:    1,
	}

	for i := 0; ; i++ {
		ch.Token, err = newChallengeToken()
		if err != nil {
			return IssuedChallenge{}, err
		}
		err = m.store.Put(ctx, ch)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrChallengeExists) || i+1 >= maxTokenRetries {
			return IssuedChallenge{}, err
		}
	}

	m.logger.Info("login challenge issued",
		zap.String("user_id", ch.UserID),
		zap.Time("expires_at", ch.ExpiresAt),
	)

	issued := IssuedChallenge{Token: ch.Token, UserID: ch.UserID, ExpiresAt: ch.ExpiresAt}
	if err := m.deliver(ctx, ch, code); err != nil {
		return IssuedChallenge{UserID: ch.UserID}, err
	}
	return issued, nil
}

// Verify consume el challenge si el codigo coincide.
func (m *ChallengeManager) Verify(ctx context.Context, token, code string) (VerifiedChallenge, error) {
	if m.store == nil {
		return VerifiedChallenge{}, ErrServiceNotConfigured
	}

	ch, err := m.transition(ctx, token, func(ch *domain.LoginChallenge, now time.Time) (bool, error) {
		if changed, err := m.checkPending(ch, now); err != nil {
			return changed, err
		}
		if ch.Attempts >= m.maxAttempts {
			ch.State = domain.ChallengeExhausted
			return true, ErrTooManyAttempts
		}
		if isValidOTPCode(code) && verifyOTP(code, ch.OTPHash) {
			ch.State = domain.ChallengeVerified
			return true, nil
		}
		ch.Attempts++
		if ch.Attempts >= m.maxAttempts {
			ch.State = domain.ChallengeExhausted
			return true, ErrTooManyAttempts
		}
		return true, ErrInvalidCode
	})

	result := VerifiedChallenge{UserID: ch.UserID, RememberMe: ch.RememberMe}
	if err != nil {
		return result, err
	}
	m.logger.Info("login challenge verified", zap.String("user_id", ch.UserID))
	return result, nil
}

// Resend reemplaza el codigo, reinicia intentos y abre una ventana completa.
func (m *ChallengeManager) Resend(ctx context.Context, token string) (IssuedChallenge, error) {
	if m.store == nil || m.sender == nil {
		return IssuedChallenge{}, ErrServiceNotConfigured
	}

	var code string
	ch, err := m.transition(ctx, token, func(ch *domain.LoginChallenge, now time.Time) (bool, error) {
		if changed, err := m.checkPending(ch, now); err != nil {
			return changed, err
		}
		if ch.ResendCount >= m.maxResends {
			return false, ErrResendLimitExceeded
		}
		fresh, hash, err := generateOTP()
		if err != nil {
			return false, err
		}
		code = fresh
		ch.OTPHash = hash
		ch.Attempts = 0
		ch.ExpiresAt = now.Add(m.ttl)
		ch.ResendCount++
		return true, nil
	})
	if err != nil {
		return IssuedChallenge{UserID: ch.UserID}, err
	}

	m.logger.Info("login challenge resent",
		zap.String("user_id", ch.UserID),
		zap.Int("resend_count", ch.ResendCount),
	)

	issued := IssuedChallenge{Token: ch.Token, UserID: ch.UserID, ExpiresAt: ch.ExpiresAt}
	if err := m.deliver(ctx, ch, code); err != nil {
		return IssuedChallenge{UserID: ch.UserID}, err
	}
	return issued, nil
}

// checkPending rechaza challenges terminales y marca como expirado uno cuya
// ventana ya paso. Devuelve true si modifico el challenge.
func (m *ChallengeManager) checkPending(ch *domain.LoginChallenge, now time.Time) (bool, error) {
	switch ch.State {
	case domain.ChallengeVerified:
		return false, ErrChallengeNotFound
	case domain.ChallengeExpired:
		return false, ErrChallengeExpired
	case domain.ChallengeExhausted:
		return false, ErrTooManyAttempts
	}
	if ch.ExpiredAt(now) {
		ch.State = domain.ChallengeExpired
		return true, ErrChallengeExpired
	}
	return false, nil
}

// transition aplica mutate sobre la version actual y la confirma con CAS,
// reintentando ante conflictos. Si mutate devuelve changed=false no escribe.
// El error de mutate se devuelve despues de confirmar la escritura.
func (m *ChallengeManager) transition(
	ctx context.Context,
	token string,
	mutate func(ch *domain.LoginChallenge, now time.Time) (bool, error),
) (domain.LoginChallenge, error) {
	for attempt := 0; attempt < maxSwapRetries; attempt++ {
		current, err := m.store.Get(ctx, token)
		if errors.Is(err, repository.ErrChallengeNotFound) {
			return domain.LoginChallenge{}, ErrChallengeNotFound
		}
		if err != nil {
			return domain.LoginChallenge{}, err
		}

		expected := current.Version
		changed, outcome := mutate(&current, m.now())
		if !changed {
			return current, outcome
		}

		err = m.store.CompareAndSwap(ctx, expected, current)
		switch {
		case err == nil:
			current.Version = expected + 1
			return current, outcome
		case errors.Is(err, repository.ErrVersionConflict):
			continue
		case errors.Is(err, repository.ErrChallengeNotFound):
			return domain.LoginChallenge{}, ErrChallengeNotFound
		default:
			return domain.LoginChallenge{}, err
		}
	}
	m.logger.Warn("login challenge contention", zap.Int("retries", maxSwapRetries))
	return domain.LoginChallenge{}, ErrChallengeContention
}

func (m *ChallengeManager) deliver(ctx context.Context, ch domain.LoginChallenge, code string) error {
	if err := m.sender.SendLoginOTP(ctx, ch.Email, code, ch.ExpiresAt); err != nil {
		m.logger.Warn("login otp delivery failed", zap.Error(err), zap.String("user_id", ch.UserID))
		return ErrDeliveryUnavailable
	}
	return nil
}

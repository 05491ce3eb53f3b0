package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"stepup-auth/internal/domain"
	"stepup-auth/internal/repository"
)

// LoginService coordina el login en dos pasos: contraseña y luego OTP.
type LoginService struct {
	logger     *zap.Logger
	users      repository.UserRepository
	passwords  *PasswordVerifier
	challenges *ChallengeManager
	sessions   *SessionIssuer
	limiter    LoginRateLimiter
	audit      AuditSink
	now        func() time.Time
}

func NewLoginService(
	logger *zap.Logger,
	users repository.UserRepository,
	passwords *PasswordVerifier,
	challenges *ChallengeManager,
	sessions *SessionIssuer,
	limiter LoginRateLimiter,
	audit AuditSink,
) *LoginService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = NewZapAuditSink(logger)
	}
	return &LoginService{
		logger:     logger,
		users:      users,
		passwords:  passwords,
		challenges: challenges,
		sessions:   sessions,
		limiter:    limiter,
		audit:      audit,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RequestMeta trae datos del request usados solo para auditoria.
type RequestMeta struct {
	ClientIP string
}

type SessionResult struct {
	Session domain.Session
	User    domain.UserProjection
}

// Login valida credenciales y siempre devuelve un challenge nuevo.
func (s *LoginService) Login(ctx context.Context, emailAddr, password string, rememberMe bool, meta RequestMeta) (IssuedChallenge, error) {
	user, err := s.authenticate(ctx, emailAddr, password)
	if err != nil {
		s.record(ctx, AuditActionLogin, user.ID, err, meta)
		return IssuedChallenge{}, err
	}

	issued, err := s.challenges.Issue(ctx, user, rememberMe)
	s.record(ctx, AuditActionLogin, user.ID, err, meta)
	if err != nil {
		return IssuedChallenge{}, err
	}
	return issued, nil
}

// VerifyOTP consume el challenge y emite la sesion.
func (s *LoginService) VerifyOTP(ctx context.Context, token, code string, rememberMe bool, meta RequestMeta) (SessionResult, error) {
	verified, err := s.challenges.Verify(ctx, strings.TrimSpace(token), strings.TrimSpace(code))
	if err != nil {
		s.record(ctx, AuditActionVerifyOTP, verified.UserID, err, meta)
		return SessionResult{}, err
	}

	user, err := s.users.GetByID(ctx, verified.UserID)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Error("load user after otp failed", zap.Error(err), zap.String("user_id", verified.UserID))
			return SessionResult{}, err
		}
		err = ErrInvalidCredentials
	} else if !user.Active() {
		err = ErrInvalidCredentials
	}
	if err != nil {
		s.record(ctx, AuditActionVerifyOTP, verified.UserID, err, meta)
		return SessionResult{}, err
	}

	session, err := s.sessions.Issue(user, rememberMe || verified.RememberMe)
	if err != nil {
		s.logger.Error("issue session failed", zap.Error(err), zap.String("user_id", user.ID))
		return SessionResult{}, err
	}
	s.record(ctx, AuditActionVerifyOTP, user.ID, nil, meta)
	return SessionResult{Session: session, User: user.Projection()}, nil
}

// ResendOTP envia un codigo nuevo para el challenge.
func (s *LoginService) ResendOTP(ctx context.Context, token string, meta RequestMeta) (IssuedChallenge, error) {
	issued, err := s.challenges.Resend(ctx, strings.TrimSpace(token))
	s.record(ctx, AuditActionResendOTP, issued.UserID, err, meta)
	if err != nil {
		return IssuedChallenge{}, err
	}
	return issued, nil
}

// authenticate no distingue entre email desconocido, contraseña incorrecta y
// cuenta deshabilitada. Devuelve el usuario cuando lo encontro, aun con error.
func (s *LoginService) authenticate(ctx context.Context, emailAddr, password string) (domain.User, error) {
	if s.users == nil || s.passwords == nil || s.challenges == nil {
		return domain.User{}, ErrServiceNotConfigured
	}

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		if err := s.passwords.CompareDecoy(ctx, password); err != nil {
			return domain.User{}, err
		}
		return domain.User{}, ErrInvalidCredentials
	}
	if s.limiter != nil && !s.limiter.Allow(emailAddr) {
		return domain.User{}, ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Error("credential lookup failed", zap.Error(err))
			return domain.User{}, err
		}
		if err := s.passwords.CompareDecoy(ctx, password); err != nil {
			return domain.User{}, err
		}
		return domain.User{}, ErrInvalidCredentials
	}

	ok, err := s.passwords.Compare(ctx, user.PasswordHash, password)
	if err != nil {
		return user, err
	}
	if !ok || !user.Active() {
		return user, ErrInvalidCredentials
	}
	return user, nil
}

func (s *LoginService) record(ctx context.Context, action, userID string, err error, meta RequestMeta) {
	s.audit.Record(ctx, newAuditEvent(action, userID, err, meta, s.now()))
}

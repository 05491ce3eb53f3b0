package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stepup-auth/internal/domain"
)

const (
	AuditActionLogin     = "login"
	AuditActionVerifyOTP = "verify_otp"
	AuditActionResendOTP = "resend_otp"
)

// AuditSink recibe un evento por cada resultado del flujo de login.
type AuditSink interface {
	Record(ctx context.Context, ev domain.AuditEvent)
}

// AuditRepository persiste eventos de auditoria.
type AuditRepository interface {
	Create(ctx context.Context, ev domain.AuditEvent) error
}

func newAuditEvent(action, userID string, err error, meta RequestMeta, now time.Time) domain.AuditEvent {
	return domain.AuditEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		Outcome:   ErrorKind(err),
		ClientIP:  meta.ClientIP,
		CreatedAt: now,
	}
}

type zapAuditSink struct {
	logger *zap.Logger
}

func NewZapAuditSink(logger *zap.Logger) AuditSink {
	return &zapAuditSink{logger: logger}
}

func (s *zapAuditSink) Record(_ context.Context, ev domain.AuditEvent) {
	s.logger.Info("auth audit",
		zap.String("event_id", ev.ID),
		zap.String("action", ev.Action),
		zap.String("outcome", ev.Outcome),
		zap.String("user_id", ev.UserID),
		zap.String("client_ip", ev.ClientIP),
		zap.Time("at", ev.CreatedAt),
	)
}

type repoAuditSink struct {
	logger *zap.Logger
	repo   AuditRepository
}

// NewRepositoryAuditSink guarda eventos en la base; los errores solo se loguean.
func NewRepositoryAuditSink(logger *zap.Logger, repo AuditRepository) AuditSink {
	return &repoAuditSink{logger: logger, repo: repo}
}

func (s *repoAuditSink) Record(ctx context.Context, ev domain.AuditEvent) {
	if err := s.repo.Create(ctx, ev); err != nil {
		s.logger.Warn("persist audit event failed", zap.Error(err), zap.String("event_id", ev.ID))
	}
}

type multiAuditSink []AuditSink

func NewMultiAuditSink(sinks ...AuditSink) AuditSink {
	out := make(multiAuditSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiAuditSink) Record(ctx context.Context, ev domain.AuditEvent) {
	for _, s := range m {
		s.Record(ctx, ev)
	}
}

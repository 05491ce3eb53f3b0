package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stepup-auth/internal/repository"
)

// ChallengeJanitor borra periodicamente challenges cuya expiracion paso hace
// mas de retention.
type ChallengeJanitor struct {
	logger    *zap.Logger
	store     repository.ChallengeRepository
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewChallengeJanitor(logger *zap.Logger, store repository.ChallengeRepository, interval, retention time.Duration) *ChallengeJanitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if retention < 0 {
		retention = 0
	}
	return &ChallengeJanitor{
		logger:    logger,
		store:     store,
		interval:  interval,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run bloquea hasta que ctx se cancela.
func (j *ChallengeJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				j.logger.Warn("challenge sweep failed", zap.Error(err))
			}
		}
	}
}

func (j *ChallengeJanitor) Sweep(ctx context.Context) (int64, error) {
	n, err := j.store.DeleteExpired(ctx, j.now().Add(-j.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.Info("expired login challenges purged", zap.Int64("count", n))
	}
	return n, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"stepup-auth/internal/domain"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExists   = errors.New("challenge token already exists")
	ErrVersionConflict   = errors.New("challenge version conflict")
)

// ChallengeRepository es el almacen de challenges. CompareAndSwap solo
// escribe si la version guardada coincide con expectedVersion, y deja la
// fila con expectedVersion+1.
type ChallengeRepository interface {
	Get(ctx context.Context, token string) (domain.LoginChallenge, error)
	Put(ctx context.Context, challenge domain.LoginChallenge) error
	CompareAndSwap(ctx context.Context, expectedVersion int64, challenge domain.LoginChallenge) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

const uniqueViolation = "23505"

// PgChallengeRepository guarda challenges en login_challenges con bloqueo
// optimista sobre la columna version.
type PgChallengeRepository struct {
	pool *pgxpool.Pool
}

func NewPgChallengeRepository(pool *pgxpool.Pool) *PgChallengeRepository {
	return &PgChallengeRepository{pool: pool}
}

func (r *PgChallengeRepository) Get(ctx context.Context, token string) (domain.LoginChallenge, error) {
	const query = `
		SELECT token, user_id, email, otp_hash, state, attempts, resend_count,
		       remember_me, issued_at, expires_at, version
		FROM login_challenges
		WHERE token = $1
	`
	var (
		ch    domain.LoginChallenge
		state string
	)
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&ch.Token,
		&ch.UserID,
		&ch.Email,
		&ch.OTPHash,
		&state,
		&ch.Attempts,
		&ch.ResendCount,
		&ch.RememberMe,
		&ch.IssuedAt,
		&ch.ExpiresAt,
		&ch.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LoginChallenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return domain.LoginChallenge{}, fmt.Errorf("get challenge: %w", err)
	}
	ch.State = domain.ChallengeState(state)
	return ch, nil
}

func (r *PgChallengeRepository) Put(ctx context.Context, ch domain.LoginChallenge) error {
	const query = `
		INSERT INTO login_challenges
			(token, user_id, email, otp_hash, state, attempts, resend_count,
			 remember_me, issued_at, expires_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		ch.Token,
		ch.UserID,
		ch.Email,
		ch.OTPHash,
		string(ch.State),
		ch.Attempts,
		ch.ResendCount,
		ch.RememberMe,
		ch.IssuedAt,
		ch.ExpiresAt,
		ch.Version,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrChallengeExists
	}
	if err != nil {
		return fmt.Errorf("put challenge: %w", err)
	}
	return nil
}

func (r *PgChallengeRepository) CompareAndSwap(ctx context.Context, expectedVersion int64, ch domain.LoginChallenge) error {
	const query = `
		UPDATE login_challenges
		SET otp_hash = $3, state = $4, attempts = $5, resend_count = $6,
		    expires_at = $7, version = version + 1
		WHERE token = $1 AND version = $2
	`
	tag, err := r.pool.Exec(ctx, query,
		ch.Token,
		expectedVersion,
		ch.OTPHash,
		string(ch.State),
		ch.Attempts,
		ch.ResendCount,
		ch.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("update challenge: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// Sin filas: o cambio la version o el janitor borro el registro.
	if _, err := r.Get(ctx, ch.Token); errors.Is(err, ErrChallengeNotFound) {
		return ErrChallengeNotFound
	}
	return ErrVersionConflict
}

func (r *PgChallengeRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM login_challenges WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}

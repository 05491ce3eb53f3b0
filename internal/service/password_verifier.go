package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// PasswordVerifier compara hashes bcrypt con un limite de comparaciones
// simultaneas. Las cuentas inexistentes se comparan contra un hash señuelo
// para que la respuesta tarde lo mismo.
type PasswordVerifier struct {
	sem   *semaphore.Weighted
	decoy []byte
}

func NewPasswordVerifier(workers, cost int) (*PasswordVerifier, error) {
	if workers <= 0 {
		workers = 1
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	seed := make([]byte, 18)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	decoy, err := bcrypt.GenerateFromPassword([]byte(base64.StdEncoding.EncodeToString(seed)), cost)
	if err != nil {
		return nil, err
	}
	return &PasswordVerifier{
		sem:   semaphore.NewWeighted(int64(workers)),
		decoy: decoy,
	}, nil
}

// Compare devuelve true si password corresponde a hash. Un hash vacio se
// compara contra el señuelo y siempre falla.
func (v *PasswordVerifier) Compare(ctx context.Context, hash, password string) (bool, error) {
	if hash == "" {
		_, err := v.compare(ctx, v.decoy, password)
		return false, err
	}
	return v.compare(ctx, []byte(hash), password)
}

// CompareDecoy consume el mismo tiempo que una comparacion real.
func (v *PasswordVerifier) CompareDecoy(ctx context.Context, password string) error {
	_, err := v.compare(ctx, v.decoy, password)
	return err
}

func (v *PasswordVerifier) compare(ctx context.Context, hash []byte, password string) (bool, error) {
	if err := v.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer v.sem.Release(1)
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil, nil
}

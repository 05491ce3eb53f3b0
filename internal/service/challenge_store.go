package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"stepup-auth/internal/domain"
	"stepup-auth/internal/repository"
)

type memoryChallengeStore struct {
	mu    sync.Mutex
	items map[string]domain.LoginChallenge
}

// NewMemoryChallengeStore crea un almacen de challenges para un solo proceso.
func NewMemoryChallengeStore() repository.ChallengeRepository {
	return &memoryChallengeStore{
		items: make(map[string]domain.LoginChallenge),
	}
}

func (s *memoryChallengeStore) Get(_ context.Context, token string) (domain.LoginChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.items[token]
	if !ok {
		return domain.LoginChallenge{}, repository.ErrChallengeNotFound
	}
	return ch, nil
}

func (s *memoryChallengeStore) Put(_ context.Context, ch domain.LoginChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[ch.Token]; exists {
		return repository.ErrChallengeExists
	}
	s.items[ch.Token] = ch
	return nil
}

func (s *memoryChallengeStore) CompareAndSwap(_ context.Context, expectedVersion int64, ch domain.LoginChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[ch.Token]
	if !ok {
		return repository.ErrChallengeNotFound
	}
	if cur.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	ch.Version = expectedVersion + 1
	s.items[ch.Token] = ch
	return nil
}

func (s *memoryChallengeStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for token, ch := range s.items {
		if ch.ExpiresAt.Before(before) {
			delete(s.items, token)
			n++
		}
	}
	return n, nil
}

// redisChallengeCASScript reemplaza el registro solo si la version guardada
// coincide con ARGV[1]. Devuelve -1 si no existe, 0 si hubo conflicto.
const redisChallengeCASScript = `
local cur = redis.call("GET", KEYS[1])
if not cur then
  return -1
end
local obj = cjson.decode(cur)
if tonumber(obj["version"]) ~= tonumber(ARGV[1]) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`

type redisChallengeClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisChallengeStore struct {
	client    redisChallengeClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisChallengeStore guarda challenges como JSON con TTL nativo igual a
// expiresAt + retention.
func NewRedisChallengeStore(client redisChallengeClient, retention time.Duration) repository.ChallengeRepository {
	if client == nil {
		return nil
	}
	if retention < 0 {
		retention = 0
	}
	return &redisChallengeStore{
		client:    client,
		prefix:    "auth:challenge:",
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *redisChallengeStore) Get(ctx context.Context, token string) (domain.LoginChallenge, error) {
	if strings.TrimSpace(token) == "" {
		return domain.LoginChallenge{}, repository.ErrChallengeNotFound
	}
	raw, err := s.client.Get(ctx, s.prefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.LoginChallenge{}, repository.ErrChallengeNotFound
	}
	if err != nil {
		return domain.LoginChallenge{}, fmt.Errorf("redis get challenge: %w", err)
	}
	var ch domain.LoginChallenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return domain.LoginChallenge{}, fmt.Errorf("decode challenge: %w", err)
	}
	return ch, nil
}

func (s *redisChallengeStore) Put(ctx context.Context, ch domain.LoginChallenge) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.prefix+ch.Token, payload, s.ttlFor(ch)).Result()
	if err != nil {
		return fmt.Errorf("redis put challenge: %w", err)
	}
	if !ok {
		return repository.ErrChallengeExists
	}
	return nil
}

func (s *redisChallengeStore) CompareAndSwap(ctx context.Context, expectedVersion int64, ch domain.LoginChallenge) error {
	ch.Version = expectedVersion + 1
	payload, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	ttlMillis := s.ttlFor(ch).Milliseconds()
	res, err := s.client.Eval(ctx, redisChallengeCASScript, []string{s.prefix + ch.Token}, expectedVersion, string(payload), ttlMillis).Int()
	if err != nil {
		return fmt.Errorf("redis swap challenge: %w", err)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return repository.ErrChallengeNotFound
	default:
		return repository.ErrVersionConflict
	}
}

// DeleteExpired no hace nada: Redis expira las claves por TTL.
func (s *redisChallengeStore) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (s *redisChallengeStore) ttlFor(ch domain.LoginChallenge) time.Duration {
	ttl := ch.ExpiresAt.Add(s.retention).Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

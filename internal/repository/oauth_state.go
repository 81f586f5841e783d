package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	oauthStateKeyPrefix = "oauth_state:"

	// DefaultOAuthStateTTL время, за которое пользователь должен пройти страницу согласия.
	DefaultOAuthStateTTL = 10 * time.Minute
)

// OAuthStateStore одноразовые CSRF-значения OAuth callback. Consume удаляет значение:
// повторный callback с тем же state получает ErrNotFound.
type OAuthStateStore interface {
	SaveOAuthState(ctx context.Context, csrfState string, dashboardID int64, ttl time.Duration) error
	ConsumeOAuthState(ctx context.Context, csrfState string) (int64, error)
}

// RedisOAuthStateStore хранит state в Redis с TTL.
type RedisOAuthStateStore struct {
	client *redis.Client
}

func NewRedisOAuthStateStore(client *redis.Client) *RedisOAuthStateStore {
	return &RedisOAuthStateStore{client: client}
}

func (s *RedisOAuthStateStore) SaveOAuthState(ctx context.Context, csrfState string, dashboardID int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, oauthStateKeyPrefix+csrfState, dashboardID, ttl).Err(); err != nil {
		return &StorageError{Op: "save oauth state", Transient: true, Err: err}
	}
	return nil
}

func (s *RedisOAuthStateStore) ConsumeOAuthState(ctx context.Context, csrfState string) (int64, error) {
	val, err := s.client.GetDel(ctx, oauthStateKeyPrefix+csrfState).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, &StorageError{Op: "consume oauth state", Transient: true, Err: err}
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupted oauth state value %q: %w", val, err)
	}
	return id, nil
}

type oauthState struct {
	dashboardID int64
	expiresAt   time.Time
}

// MemoryOAuthStateStore хранит state в памяти процесса. Подходит только для одного экземпляра.
type MemoryOAuthStateStore struct {
	mu     sync.Mutex
	states map[string]oauthState
	now    func() time.Time
}

func NewMemoryOAuthStateStore() *MemoryOAuthStateStore {
	return &MemoryOAuthStateStore{states: make(map[string]oauthState), now: time.Now}
}

func (s *MemoryOAuthStateStore) SaveOAuthState(_ context.Context, csrfState string, dashboardID int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, st := range s.states {
		if now.After(st.expiresAt) {
			delete(s.states, k)
		}
	}
	s.states[csrfState] = oauthState{dashboardID: dashboardID, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryOAuthStateStore) ConsumeOAuthState(_ context.Context, csrfState string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[csrfState]
	delete(s.states, csrfState)
	if !ok || s.now().After(st.expiresAt) {
		return 0, ErrNotFound
	}
	return st.dashboardID, nil
}

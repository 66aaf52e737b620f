package oauthstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/studyhub/connector/pkg/domain"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "connector:oauth_state:"

// RedisStore shares states between replicas. Consume relies on GETDEL so a
// state can be redeemed at most once even under concurrent callbacks.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

type RedisOpts struct {
	URL       string
	KeyPrefix string
}

var _ domain.StateStore = (*RedisStore)(nil)

func NewRedisStore(ctx context.Context, opts RedisOpts) (*RedisStore, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("%w: REDIS_URL is required for the redis state store", domain.ErrConfiguration)
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid REDIS_URL: %w", domain.ErrConfiguration, err)
	}

	client := redis.NewClient(redisOpts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, opts.KeyPrefix), nil
}

func NewRedisStoreFromClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

func (s *RedisStore) key(state string) string {
	return s.keyPrefix + state
}

func (s *RedisStore) Save(ctx context.Context, state domain.AuthorizationState) error {
	ttl := state.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("authorization state already expired")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization state: %w", err)
	}

	if err := s.client.Set(ctx, s.key(state.State), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save authorization state: %w", err)
	}

	return nil
}

func (s *RedisStore) Consume(ctx context.Context, state string) (domain.AuthorizationState, error) {
	if state == "" {
		return domain.AuthorizationState{}, domain.ErrInvalidState
	}

	data, err := s.client.GetDel(ctx, s.key(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AuthorizationState{}, domain.ErrInvalidState
	}
	if err != nil {
		return domain.AuthorizationState{}, fmt.Errorf("failed to consume authorization state: %w", err)
	}

	var stored domain.AuthorizationState
	if err := json.Unmarshal(data, &stored); err != nil {
		return domain.AuthorizationState{}, fmt.Errorf("%w: corrupt state payload", domain.ErrInvalidState)
	}

	if stored.Expired(s.now()) {
		return domain.AuthorizationState{}, domain.ErrInvalidState
	}

	return stored, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

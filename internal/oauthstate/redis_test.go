package oauthstate

import (
	"context"
	"testing"
	"time"

	"github.com/studyhub/connector/internal/testcontainers"
	"github.com/studyhub/connector/pkg/domain"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisStore_RequiresURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisOpts{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewRedisStore(context.Background(), RedisOpts{URL: "not a url"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestRedisStore_Integration(t *testing.T) {
	addr := testcontainers.RedisAddr(t)
	ctx := context.Background()

	s, err := NewRedisStore(ctx, RedisOpts{URL: "redis://" + addr + "/0", KeyPrefix: "test:state:"})
	require.NoError(t, err)
	defer s.Close()

	t.Run("state is single use", func(t *testing.T) {
		state, err := NewState("user-1", time.Now(), time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, state))

		consumed, err := s.Consume(ctx, state.State)
		require.NoError(t, err)
		assert.Equal(t, "user-1", consumed.UserID)

		_, err = s.Consume(ctx, state.State)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("key expires with the state", func(t *testing.T) {
		state, err := NewState("user-1", time.Now(), time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, state))

		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()

		ttl, err := client.TTL(ctx, "test:state:"+state.State).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Minute)
	})

	t.Run("expired state cannot be saved", func(t *testing.T) {
		err := s.Save(ctx, domain.AuthorizationState{State: "old", ExpiresAt: time.Now().Add(-time.Second)})
		assert.Error(t, err)
	})
}

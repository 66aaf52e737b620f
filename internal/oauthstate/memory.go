package oauthstate

import (
	"context"
	"sync"
	"time"

	"github.com/studyhub/connector/pkg/domain"

	"github.com/rs/zerolog/log"
)

// MemoryStore keeps states in process. It suits a single instance; use
// RedisStore when the callback may land on a different replica.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]domain.AuthorizationState
	now    func() time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

var _ domain.StateStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		states:      make(map[string]domain.AuthorizationState),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	go s.cleanupLoop(time.Minute)

	return s
}

func (s *MemoryStore) Save(ctx context.Context, state domain.AuthorizationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.State] = state

	return nil
}

func (s *MemoryStore) Consume(ctx context.Context, state string) (domain.AuthorizationState, error) {
	if err := ctx.Err(); err != nil {
		return domain.AuthorizationState{}, err
	}

	s.mu.Lock()
	stored, ok := s.states[state]
	delete(s.states, state)
	s.mu.Unlock()

	if !ok || state == "" {
		return domain.AuthorizationState{}, domain.ErrInvalidState
	}

	if stored.Expired(s.now()) {
		log.Warn().Str("user_id", stored.UserID).Msg("Authorization state expired")
		return domain.AuthorizationState{}, domain.ErrInvalidState
	}

	return stored, nil
}

// Close stops the background cleanup.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for key, state := range s.states {
		if state.Expired(now) {
			delete(s.states, key)
			count++
		}
	}

	if count > 0 {
		log.Debug().Int("count", count).Msg("Cleaned up expired authorization states")
	}
}

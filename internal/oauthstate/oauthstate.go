// Package oauthstate issues and stores the single-use state values that bind
// a provider redirect to the application user who started the flow.
package oauthstate

import (
	"fmt"
	"strings"
	"time"

	"github.com/studyhub/connector/pkg/domain"

	"github.com/google/uuid"
)

const DefaultTTL = 10 * time.Minute

// NewState creates an unguessable state for userID that expires after ttl.
func NewState(userID string, now time.Time, ttl time.Duration) (domain.AuthorizationState, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.AuthorizationState{}, fmt.Errorf("%w: user id is required to start authorization", domain.ErrUnauthenticated)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now = now.UTC()

	return domain.AuthorizationState{
		State:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

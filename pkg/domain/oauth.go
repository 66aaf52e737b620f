package domain

import (
	"context"
	"time"
)

// AttemptState tracks one connection attempt from redirect to discovery.
type AttemptState string

const (
	AttemptStateAwaitingRedirect  AttemptState = "awaiting_redirect"
	AttemptStateExchanging        AttemptState = "exchanging"
	AttemptStateConnected         AttemptState = "connected"
	AttemptStateFailed            AttemptState = "failed"
	AttemptStateDiscovering       AttemptState = "discovering"
	AttemptStateDiscovered        AttemptState = "discovered"
	AttemptStateDiscoveryDegraded AttemptState = "discovery_degraded"
)

// Succeeded reports whether the attempt ended with a saved connection.
// A degraded discovery is still a successful connection.
func (s AttemptState) Succeeded() bool {
	switch s {
	case AttemptStateConnected, AttemptStateDiscovering, AttemptStateDiscovered, AttemptStateDiscoveryDegraded:
		return true
	}
	return false
}

// AuthorizationState binds a provider redirect back to the user who started it.
type AuthorizationState struct {
	State     string    `json:"state"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s AuthorizationState) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// StateStore keeps pending authorization states. Consume is single-use: it
// atomically returns and deletes the state, and fails with ErrInvalidState
// when the state is unknown or expired.
type StateStore interface {
	Save(ctx context.Context, state AuthorizationState) error
	Consume(ctx context.Context, state string) (AuthorizationState, error)
}

// ResourceLister enumerates page-like resources visible to an access token.
type ResourceLister interface {
	ListPages(ctx context.Context, accessToken SecretToken) ([]ListedResource, error)
}

// ListedResource is a provider object as returned by a ResourceLister, before
// it is attributed to a user.
type ListedResource struct {
	ID     string
	Object string
	Name   string
	URL    string
}

// DiscoveryJob identifies the connection whose resources must be enumerated.
// It never carries the token; workers load it from the ConnectionStore.
type DiscoveryJob struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	AttemptID   string `json:"attempt_id,omitempty"`
}

type DiscoveryDispatcher interface {
	Dispatch(ctx context.Context, job DiscoveryJob) error
}

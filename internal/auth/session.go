package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/studyhub/connector/pkg/domain"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAudience is the audience the study app's identity provider stamps on
// signed-in user tokens.
const DefaultAudience = "authenticated"

// SessionClaims are the claims of an application user access token. The
// subject is the application user id.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Session is the verified identity of the caller.
type Session struct {
	UserID string
	Email  string
}

// SessionVerifier verifies HS256 user access tokens
type SessionVerifier struct {
	secret   []byte
	audience string
}

func NewSessionVerifier(secret, audience string) (*SessionVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: session secret is required", domain.ErrConfiguration)
	}

	return &SessionVerifier{
		secret:   []byte(secret),
		audience: audience,
	}, nil
}

// Verify checks the signature, expiry and audience of tokenString.
func (v *SessionVerifier) Verify(tokenString string) (Session, error) {
	if tokenString == "" {
		return Session{}, fmt.Errorf("%w: missing access token", domain.ErrUnauthenticated)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}

	claims := &SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, options...)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}

	if !token.Valid {
		return Session{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}

	if claims.Subject == "" {
		return Session{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}

	return Session{
		UserID: claims.Subject,
		Email:  claims.Email,
	}, nil
}

// SessionSigner issues tokens the verifier accepts. The identity provider
// normally does this; the signer serves local tooling and tests.
type SessionSigner struct {
	secret   []byte
	audience string
}

func NewSessionSigner(secret, audience string) *SessionSigner {
	return &SessionSigner{
		secret:   []byte(secret),
		audience: audience,
	}
}

func (s *SessionSigner) Sign(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := SessionClaims{
		Email: email,
		Role:  DefaultAudience,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return token, nil
}

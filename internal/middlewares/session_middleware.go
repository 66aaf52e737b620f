package middlewares

import (
	"strings"

	"github.com/studyhub/connector/internal/auth"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

type sessionKey struct{}

// AccessTokenQueryParam lets a browser navigation authenticate where it cannot
// set a header.
const AccessTokenQueryParam = "access_token"

type SessionVerifier interface {
	Verify(tokenString string) (auth.Session, error)
}

// SessionMiddleware rejects requests without a valid user access token and
// stores the verified session for the handlers.
func SessionMiddleware(verifier SessionVerifier) fiber.Handler {
	return func(c fiber.Ctx) error {
		tokenString := bearerToken(c.Get(fiber.HeaderAuthorization))
		if tokenString == "" {
			tokenString = c.Query(AccessTokenQueryParam)
		}

		session, err := verifier.Verify(tokenString)
		if err != nil {
			log.Debug().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("Session verification failed")

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or missing access token",
			})
		}

		c.Locals(sessionKey{}, session)

		return c.Next()
	}
}

// SessionFromCtx returns the session stored by SessionMiddleware.
func SessionFromCtx(c fiber.Ctx) (auth.Session, bool) {
	session, ok := c.Locals(sessionKey{}).(auth.Session)
	return session, ok
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}

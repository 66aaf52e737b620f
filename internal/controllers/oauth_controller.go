package controllers

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/studyhub/connector/internal/managers"
	"github.com/studyhub/connector/internal/middlewares"
	"github.com/studyhub/connector/pkg/domain"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

type ConnectionFlow interface {
	StartAuthorization(ctx context.Context, userID string) (managers.AuthorizationRequest, error)
	HandleCallback(ctx context.Context, redirectURL string) (managers.CallbackResult, error)
}

// OAuthController serves the provider authorization round trip
type OAuthController struct {
	flow ConnectionFlow
}

type OAuthControllerDependencies struct {
	ConnectionFlow ConnectionFlow
}

func NewOAuthController(deps OAuthControllerDependencies) *OAuthController {
	return &OAuthController{
		flow: deps.ConnectionFlow,
	}
}

// Authorize sends the signed-in user to the provider consent page. With
// ?format=json the URL is returned instead so a SPA can open it itself.
func (c *OAuthController) Authorize(ctx fiber.Ctx) error {
	session, ok := middlewares.SessionFromCtx(ctx)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
	}

	request, err := c.flow.StartAuthorization(ctx.RequestCtx(), session.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", session.UserID).Msg("Failed to start authorization")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to start authorization")
	}

	if ctx.Query("format") == "json" {
		return ctx.JSON(request)
	}

	return ctx.Redirect().Status(fiber.StatusFound).To(request.URL)
}

// Callback completes the attempt from the provider redirect and renders the
// outcome for the user.
func (c *OAuthController) Callback(ctx fiber.Ctx) error {
	redirectURL := ctx.BaseURL() + ctx.OriginalURL()

	result, err := c.flow.HandleCallback(ctx.RequestCtx(), redirectURL)
	if err != nil {
		log.Warn().
			Err(err).
			Str("attempt_id", result.AttemptID).
			Str("user_id", result.UserID).
			Msg("OAuth callback failed")

		return renderPage(ctx, fiber.StatusBadRequest, "callback_failure.html", failureView{
			Message: callbackFailureMessage(err),
		})
	}

	return renderPage(ctx, fiber.StatusOK, "callback_success.html", successView{
		WorkspaceName:     result.WorkspaceName,
		DiscoveryDegraded: result.State == domain.AttemptStateDiscoveryDegraded,
	})
}

func callbackFailureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidState):
		return "This authorization link is invalid, expired or was already used."
	case errors.Is(err, domain.ErrMissingCode):
		return err.Error()
	case errors.Is(err, domain.ErrExchangeRejected):
		return exchangeRejectedMessage(err)
	case errors.Is(err, domain.ErrPersistence):
		return "The connection could not be saved."
	default:
		return "The connection could not be completed."
	}
}

var providerErrorCode = regexp.MustCompile(`^[a-z_]{1,64}$`)

// exchangeRejectedMessage describes a rejected exchange without the
// provider's response body, which is only logged. Just the OAuth error code
// is shown, and only when it looks like one.
func exchangeRejectedMessage(err error) string {
	var rejected *domain.ExchangeRejectedError
	if !errors.As(err, &rejected) || rejected.StatusCode == 0 {
		return "The token exchange with Notion could not be completed."
	}

	code := gjson.Get(rejected.Body, "error").String()
	if !providerErrorCode.MatchString(code) {
		return fmt.Sprintf("Notion rejected the authorization (status %d).", rejected.StatusCode)
	}

	return fmt.Sprintf("Notion rejected the authorization (status %d: %s).", rejected.StatusCode, code)
}

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/studyhub/connector/internal/initialization"
	"github.com/studyhub/connector/internal/version"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the OAuth callback host",
		Long: `Start the HTTP host that begins authorization, receives the provider's redirect and
serves the user's connections. When OPERATOR_USER_ID is set the operator's authorization
status is checked first and an authorization URL is printed if none is stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return withContainer(ctx, runStart)
		},
	}

	return cmd
}

func runStart(ctx context.Context, container *initialization.Container) error {
	config := container.Config()

	log.Info().Str("version", version.GetVersion()).Msg("Starting connector")

	deps, err := container.BuildServerDependencies()
	if err != nil {
		return err
	}

	if config.OperatorUserID != "" {
		status, err := deps.ConnectionManager.CheckAuthorization(ctx, config.OperatorUserID)
		if err != nil {
			return err
		}

		if status.Authorized {
			log.Info().Str("user_id", config.OperatorUserID).Msg("Operator already authorized")
		} else {
			log.Info().
				Str("user_id", config.OperatorUserID).
				Str("authorization_url", status.Authorization.URL).
				Time("expires_at", status.Authorization.ExpiresAt).
				Msg("Open the authorization URL to connect a Notion workspace")
		}
	}

	log.Info().Str("address", config.ListenAddress()).Str("redirect_url", config.RedirectURL).Msg("Callback host listening")

	if err := deps.App.Listen(config.ListenAddress(), fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}

	if deps.InlineDispatcher != nil {
		deps.InlineDispatcher.Wait()
	}

	log.Info().Msg("Connector stopped")
	return nil
}

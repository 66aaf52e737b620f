package cli

import (
	"context"
	"fmt"

	"github.com/studyhub/connector/internal/initialization"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewAuthorizeURLCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authorize-url",
		Short: "Print an authorization URL for a user",
		Long: `Issue a single-use state for the user and print the provider authorization URL.
The running host must share the state store, so REDIS_URL should be set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := requireUser(cmd)
			if err != nil {
				return err
			}

			return withContainer(cmd.Context(), func(ctx context.Context, container *initialization.Container) error {
				return runAuthorizeURL(ctx, container, userID)
			})
		},
	}

	cmd.Flags().String("user", "", "StudyHub user ID")

	return cmd
}

func runAuthorizeURL(ctx context.Context, container *initialization.Container, userID string) error {
	if container.Config().RedisURL == "" {
		log.Warn().Msg("REDIS_URL is not set; the state is kept in this process only and the callback host will reject it")
	}

	manager, _, err := container.BuildConnectionManager()
	if err != nil {
		return err
	}

	request, err := manager.StartAuthorization(ctx, userID)
	if err != nil {
		return err
	}

	fmt.Println(request.URL)
	fmt.Printf("Expires at: %s\n", request.ExpiresAt.Format("2006-01-02 15:04:05"))

	return nil
}

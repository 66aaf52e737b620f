package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/studyhub/connector/internal/initialization"
	notionintegration "github.com/studyhub/connector/pkg/integrations/notion"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a user's connected workspaces",
		Long:  `Display the Notion workspaces connected for a user, their discovery status and whether the stored token is still accepted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := requireUser(cmd)
			if err != nil {
				return err
			}

			return withContainer(cmd.Context(), func(ctx context.Context, container *initialization.Container) error {
				return runStatus(ctx, container, userID)
			})
		},
	}

	cmd.Flags().String("user", "", "StudyHub user ID")

	return cmd
}

func runStatus(ctx context.Context, container *initialization.Container, userID string) error {
	connections, err := container.Store().ListConnections(ctx, userID)
	if err != nil {
		return err
	}

	if len(connections) == 0 {
		fmt.Println("❌ No Notion workspace connected")
		fmt.Printf("Run '%s authorize-url --user %s' to connect one\n", os.Args[0], userID)
		return nil
	}

	resources, err := container.Store().ListDiscoveredResources(ctx, userID)
	if err != nil {
		return err
	}

	tester := container.ConnectionTester()

	fmt.Printf("✅ %d workspace(s) connected, %d page(s) discovered\n", len(connections), len(resources))

	for _, conn := range connections {
		valid, err := tester.TestConnection(ctx, conn.AccessToken)
		if err != nil {
			log.Debug().Err(err).Str("workspace_id", conn.WorkspaceID).Msg("Token check failed")
		}

		tokenStatus := describeTokenCheck(valid, err)

		fmt.Printf("   %s (%s)\n", conn.WorkspaceName, conn.WorkspaceID)
		fmt.Printf("      Discovery: %s\n", conn.DiscoveryStatus)
		fmt.Printf("      Token: %s\n", tokenStatus)
		fmt.Printf("      Updated: %s\n", conn.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

// describeTokenCheck separates a token the provider refused from a check
// that never got an answer.
func describeTokenCheck(valid bool, err error) string {
	if valid && err == nil {
		return "valid"
	}

	var apiErr *notionintegration.APIError
	if errors.As(err, &apiErr) {
		return "rejected"
	}

	return "unknown"
}

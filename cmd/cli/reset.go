package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/studyhub/connector/internal/initialization"

	"github.com/spf13/cobra"
)

func NewResetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove a user's connections",
		Long:  `Delete every stored Notion connection and discovered page for a user. The user has to authorize again afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := requireUser(cmd)
			if err != nil {
				return err
			}

			return withContainer(cmd.Context(), func(ctx context.Context, container *initialization.Container) error {
				return runReset(ctx, container, userID)
			})
		},
	}

	cmd.Flags().String("user", "", "StudyHub user ID")

	return cmd
}

func runReset(ctx context.Context, container *initialization.Container, userID string) error {
	manager, _, err := container.BuildConnectionManager()
	if err != nil {
		return err
	}

	deleted, err := manager.Disconnect(ctx, userID)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Removed %d connection(s)\n", deleted)
	fmt.Printf("Run '%s authorize-url --user %s' to connect again\n", os.Args[0], userID)
	return nil
}

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/studyhub/connector/internal/initialization"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "connector",
		Short: "StudyHub Notion connector",
		Long: `The StudyHub connector links a user's Notion workspace to StudyHub through OAuth,
stores the resulting access token and discovers the pages the integration can read.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(NewStartCommand())
	rootCmd.AddCommand(NewWorkerCommand())
	rootCmd.AddCommand(NewAuthorizeURLCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewResetCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withContainer loads the configuration, builds the container and closes it
// once run returns.
func withContainer(ctx context.Context, run func(ctx context.Context, container *initialization.Container) error) error {
	config, err := initialization.LoadConfig()
	if err != nil {
		return err
	}

	container, err := initialization.NewContainer(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}

	defer func() {
		if err := container.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to release resources")
		}
	}()

	return run(ctx, container)
}

func requireUser(cmd *cobra.Command) (string, error) {
	userID, _ := cmd.Flags().GetString("user")
	if userID == "" {
		return "", fmt.Errorf("--user is required")
	}
	return userID, nil
}

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/studyhub/connector/internal/initialization"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewWorkerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the resource discovery worker",
		Long:  `Consume resource discovery jobs from the Redis queue. Requires REDIS_URL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return withContainer(ctx, runWorker)
		},
	}

	return cmd
}

func runWorker(ctx context.Context, container *initialization.Container) error {
	worker, err := container.BuildWorker()
	if err != nil {
		return err
	}

	log.Info().Int("concurrency", container.Config().WorkerConcurrency).Msg("Starting discovery worker")

	if err := worker.Run(ctx); err != nil {
		return err
	}

	log.Info().Msg("Discovery worker stopped")
	return nil
}

package discovery

import (
	"context"
	"sync"

	"github.com/studyhub/connector/pkg/domain"

	"github.com/rs/zerolog/log"
)

// InlineDispatcher runs each job on its own goroutine inside the HTTP host.
// Jobs run on a background context because the dispatching request context
// may be recycled as soon as the handler returns. Wait blocks until every
// running job has finished.
type InlineDispatcher struct {
	runner JobRunner
	wg     sync.WaitGroup
}

var _ domain.DiscoveryDispatcher = (*InlineDispatcher)(nil)

func NewInlineDispatcher(runner JobRunner) *InlineDispatcher {
	return &InlineDispatcher{runner: runner}
}

func (d *InlineDispatcher) Dispatch(_ context.Context, job domain.DiscoveryJob) error {
	jobCtx := context.Background()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		if err := d.runner.Run(jobCtx, job); err != nil {
			log.Warn().
				Err(err).
				Str("attempt_id", job.AttemptID).
				Str("user_id", job.UserID).
				Msg("Discovery job failed")
		}
	}()

	return nil
}

func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/studyhub/connector/pkg/domain"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

const (
	TypeDiscoverResources = "discovery:resources"

	QueueName = "discovery"

	DefaultMaxRetry    = 3
	DefaultConcurrency = 4

	maxRetryDelay = 30 * time.Second
)

// NewDiscoverResourcesTask builds the queue task for job. The payload only
// names the connection.
func NewDiscoverResourcesTask(job domain.DiscoveryJob) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal discovery job: %w", err)
	}

	return asynq.NewTask(TypeDiscoverResources, payload), nil
}

// QueueDispatcher hands jobs to a worker process through Redis.
type QueueDispatcher struct {
	client   *asynq.Client
	maxRetry int
	timeout  time.Duration
}

type QueueDispatcherOpts struct {
	MaxRetry int
	Timeout  time.Duration
}

var _ domain.DiscoveryDispatcher = (*QueueDispatcher)(nil)

func NewQueueDispatcher(client *asynq.Client, opts QueueDispatcherOpts) *QueueDispatcher {
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = DefaultMaxRetry
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	return &QueueDispatcher{
		client:   client,
		maxRetry: opts.MaxRetry,
		timeout:  opts.Timeout,
	}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, job domain.DiscoveryJob) error {
	task, err := NewDiscoverResourcesTask(job)
	if err != nil {
		return err
	}

	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueName),
		asynq.MaxRetry(d.maxRetry),
		asynq.Timeout(d.timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue discovery job: %w", err)
	}

	log.Debug().
		Str("task_id", info.ID).
		Str("attempt_id", job.AttemptID).
		Str("user_id", job.UserID).
		Msg("Discovery job enqueued")

	return nil
}

func (d *QueueDispatcher) Close() error {
	return d.client.Close()
}

// TaskHandler processes discovery tasks on the worker.
type TaskHandler struct {
	runner JobRunner
}

var _ asynq.Handler = (*TaskHandler)(nil)

func NewTaskHandler(runner JobRunner) *TaskHandler {
	return &TaskHandler{runner: runner}
}

func (h *TaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	if task.Type() != TypeDiscoverResources {
		return fmt.Errorf("unknown task type %s: %w", task.Type(), asynq.SkipRetry)
	}

	var job domain.DiscoveryJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("invalid discovery payload: %v: %w", err, asynq.SkipRetry)
	}

	if job.UserID == "" {
		return fmt.Errorf("discovery payload has no user id: %w", asynq.SkipRetry)
	}

	err := h.runner.Run(ctx, job)
	if errors.Is(err, domain.ErrNotConnected) {
		// The user disconnected before the job ran.
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	return err
}

// Worker runs the asynq server that consumes discovery tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

type WorkerOpts struct {
	Concurrency int
}

func NewWorker(redisOpt asynq.RedisConnOpt, handler *TaskHandler, opts WorkerOpts) *Worker {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueName: 1},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			delay := time.Duration(1<<uint(n)) * time.Second
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}

			log.Warn().Err(err).Str("task_type", task.Type()).Int("retry", n).Dur("delay", delay).Msg("Discovery task failed, retrying")
			return delay
		},
		Logger: asynqLogger{},
	})

	mux := asynq.NewServeMux()
	mux.Handle(TypeDiscoverResources, handler)

	return &Worker{server: server, mux: mux}
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start discovery worker: %w", err)
	}

	<-ctx.Done()

	log.Info().Msg("Shutting down discovery worker")
	w.server.Shutdown()

	return nil
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { log.Debug().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { log.Info().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { log.Warn().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { log.Error().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { log.Fatal().Msg(fmt.Sprint(args...)) }

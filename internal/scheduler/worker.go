package scheduler

import (
	"context"
	"fmt"

	"dunning_backend/internal/tasks"
	"dunning_backend/platform/config"
	"dunning_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Worker consumes due-task wake-ups from the job queue and hands them to
// the task service. The service claims each task before running it, so a
// duplicate wake-up for an already-executed task is a no-op.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	queue  *tasks.Service
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, queue *tasks.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queueName := cfg.GetAsynqQueueName()
	if queueName == "" {
		queueName = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		queue:  queue,
		log:    log,
	}

	mux.HandleFunc(TaskOutreachTaskDue, w.handleOutreachTaskDue)

	return w, nil
}

func (w *Worker) handleOutreachTaskDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseOutreachTaskDuePayload(task)
	if err != nil {
		return err
	}

	taskID, err := uuid.Parse(payload.TaskID)
	if err != nil {
		return err
	}

	return w.queue.ExecuteByID(ctx, taskID)
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Job types
const (
	TypeTransferRun       = "transfer:run"
	TypeTransferScheduled = "transfer:scheduled"
)

// Scheduler manages job enqueueing to Asynq
type Scheduler struct {
	client *asynq.Client
}

// NewScheduler creates a new job scheduler
func NewScheduler(redisAddr string) (*Scheduler, error) {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})

	// Test connection
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Scheduler{client: client}, nil
}

// TransferRunPayload represents the payload for a single transfer run
type TransferRunPayload struct {
	TaskID string `json:"task_id"`
}

// EnqueueRun enqueues one transfer task for background execution. Asynq
// retries are disabled: the orchestrator owns all retry semantics, so the
// broker must never re-drive a failed run.
func (s *Scheduler) EnqueueRun(ctx context.Context, taskID string) error {
	payload, err := json.Marshal(TransferRunPayload{TaskID: taskID})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	task := asynq.NewTask(TypeTransferRun, payload)
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(0),
		asynq.Timeout(2*time.Hour),
		asynq.Unique(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue transfer run: %w", err)
	}
	return nil
}

// Close closes the job scheduler and releases resources
func (s *Scheduler) Close() error {
	return s.client.Close()
}

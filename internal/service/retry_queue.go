package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/heriberto777/core-app-sub000/internal/entity"
	"github.com/heriberto777/core-app-sub000/internal/metrics"
	"github.com/heriberto777/core-app-sub000/internal/repository"
)

const (
	defaultRetryInterval   = 5 * time.Minute
	defaultQueueMaxRetries = 3
	defaultQueueCapacity   = 50
	dequeueBatchSize       = 3
)

// TaskRunner re-executes a parked task. Satisfied by *Transfer.
type TaskRunner interface {
	Run(ctx context.Context, taskID string) (*entity.TransferResult, error)
}

// RetryQueue holds tasks that failed with a connection-classified error and
// re-executes them once the databases look healthy again.
type RetryQueue struct {
	runner  TaskRunner
	health  HealthChecker
	store   repository.Store
	metrics *metrics.Registry
	log     *zap.SugaredLogger

	interval   time.Duration
	maxRetries int
	capacity   int

	mu         sync.Mutex
	entries    map[string]*entity.RetryEntry
	order      []string
	processing bool

	stop chan struct{}
	done chan struct{}
}

// NewRetryQueue creates a bounded retry queue.
func NewRetryQueue(
	runner TaskRunner,
	health HealthChecker,
	store repository.Store,
	m *metrics.Registry,
	log *zap.SugaredLogger,
) *RetryQueue {
	return &RetryQueue{
		runner:     runner,
		health:     health,
		store:      store,
		metrics:    m,
		log:        log,
		interval:   defaultRetryInterval,
		maxRetries: defaultQueueMaxRetries,
		capacity:   defaultQueueCapacity,
		entries:    make(map[string]*entity.RetryEntry),
	}
}

// SetInterval overrides the scheduler wake interval.
func (q *RetryQueue) SetInterval(d time.Duration) {
	if d > 0 {
		q.interval = d
	}
}

// SetMaxRetries overrides how often a task is re-attempted before it is
// marked permanently failed.
func (q *RetryQueue) SetMaxRetries(n int) {
	if n > 0 {
		q.maxRetries = n
	}
}

// Enqueue parks a task after a connection-classified failure. A task that
// is already parked keeps its retry count; only the failure metadata is
// refreshed.
func (q *RetryQueue) Enqueue(taskID, reason string) {
	now := entity.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	if entry, ok := q.entries[taskID]; ok {
		entry.LastFailureAt = now
		entry.LastReason = reason
		return
	}
	if len(q.entries) >= q.capacity {
		q.log.Errorw("retry queue full, dropping task", "task_id", taskID, "reason", reason)
		return
	}

	q.entries[taskID] = &entity.RetryEntry{
		TaskID:         taskID,
		FirstFailureAt: now,
		LastFailureAt:  now,
		LastReason:     reason,
	}
	q.order = append(q.order, taskID)
	q.metrics.SetRetryQueueDepth(len(q.entries))
	q.log.Infow("task parked for retry", "task_id", taskID, "reason", reason)
}

// Entries returns a snapshot of the queue in arrival order.
func (q *RetryQueue) Entries() []entity.RetryEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]entity.RetryEntry, 0, len(q.entries))
	for _, id := range q.order {
		if entry, ok := q.entries[id]; ok {
			out = append(out, *entry)
		}
	}
	return out
}

// Len returns the number of parked tasks.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Start launches the scheduler loop. Stop terminates it.
func (q *RetryQueue) Start(ctx context.Context) {
	q.stop = make(chan struct{})
	q.done = make(chan struct{})

	go func() {
		defer close(q.done)
		ticker := time.NewTicker(q.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				q.ProcessOnce(ctx)
			case <-q.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the scheduler loop and waits for it to exit.
func (q *RetryQueue) Stop() {
	if q.stop == nil {
		return
	}
	close(q.stop)
	<-q.done
	q.stop = nil
}

// ProcessOnce runs one scheduler cycle: skip when a cycle is already in
// flight or the databases are unhealthy, otherwise re-execute up to three
// parked tasks.
func (q *RetryQueue) ProcessOnce(ctx context.Context) {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return
	}
	q.processing = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}()

	if q.health != nil && !q.health.Healthy(ctx) {
		q.log.Debugw("retry cycle skipped, databases unhealthy")
		return
	}

	batch := q.nextBatch()
	for _, taskID := range batch {
		if ctx.Err() != nil {
			return
		}
		q.retryOne(ctx, taskID)
	}
}

func (q *RetryQueue) nextBatch() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := make([]string, 0, dequeueBatchSize)
	for _, id := range q.order {
		if _, ok := q.entries[id]; !ok {
			continue
		}
		batch = append(batch, id)
		if len(batch) == dequeueBatchSize {
			break
		}
	}
	return batch
}

// retryOne re-runs a single parked task. The orchestrator applies its own
// backoff; the queue only tracks attempts.
func (q *RetryQueue) retryOne(ctx context.Context, taskID string) {
	_, err := q.runner.Run(ctx, taskID)
	if err == nil {
		q.remove(taskID)
		q.log.Infow("retried task completed", "task_id", taskID)
		return
	}

	q.mu.Lock()
	entry, ok := q.entries[taskID]
	if !ok {
		q.mu.Unlock()
		return
	}
	entry.RetryCount++
	entry.LastFailureAt = entity.Now()
	entry.LastReason = err.Error()
	retries := entry.RetryCount
	exhausted := retries >= q.maxRetries
	q.mu.Unlock()

	if !exhausted {
		q.log.Warnw("retried task failed again",
			"task_id", taskID, "retry_count", retries, "error", err)
		return
	}

	q.remove(taskID)
	q.log.Errorw("task permanently failed after retries",
		"task_id", taskID, "retries", retries, "error", err)
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if uerr := q.store.Tasks().UpdateStatus(storeCtx, taskID, entity.StatusFailed, -1); uerr != nil {
		q.log.Warnw("failed to mark task permanently failed", "task_id", taskID, "error", uerr)
	}
}

func (q *RetryQueue) remove(taskID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, taskID)
	for i, id := range q.order {
		if id == taskID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	q.metrics.SetRetryQueueDepth(len(q.entries))
}

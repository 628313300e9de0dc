package repository

import (
	"context"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

// Store provides access to all task-store repositories.
type Store interface {
	Tasks() TaskRepository
	Executions() ExecutionRepository
	Metrics() MetricRepository
	DBConfigs() DBConfigRepository

	// Connection management
	Health(ctx context.Context) error
	Close(ctx context.Context) error
}

// TaskRepository defines data access operations for transfer tasks.
// All mutations are single-document and field-scoped: only the fields being
// changed are written.
type TaskRepository interface {
	Upsert(ctx context.Context, task *entity.Task) error
	GetByID(ctx context.Context, id string) (*entity.Task, error)
	GetByName(ctx context.Context, name string) (*entity.Task, error)
	List(ctx context.Context) ([]*entity.Task, error)
	GetActive(ctx context.Context, kind entity.ExecutionKind) ([]*entity.Task, error)
	UpdateStatus(ctx context.Context, id string, status entity.TaskStatus, progress int) error
	UpdateOutcome(ctx context.Context, id string, outcome string) error
}

// ExecutionRepository records per-run execution history.
type ExecutionRepository interface {
	Append(ctx context.Context, exec *entity.TaskExecution) error
	Update(ctx context.Context, exec *entity.TaskExecution) error
	ListByTask(ctx context.Context, taskID string, limit int) ([]*entity.TaskExecution, error)
}

// MetricRepository records per-run throughput samples.
type MetricRepository interface {
	Append(ctx context.Context, sample *entity.MetricSample) error
}

// DBConfigRepository resolves per-server connection documents.
type DBConfigRepository interface {
	GetByServer(ctx context.Context, server string) (*entity.DBConfig, error)
	List(ctx context.Context) ([]*entity.DBConfig, error)
	Upsert(ctx context.Context, cfg *entity.DBConfig) error
}

// NotFoundError represents a record not found error
type NotFoundError struct {
	ResourceType string
	ResourceID   string
}

// Error implements the error interface for NotFoundError
func (e *NotFoundError) Error() string {
	return "not found: " + e.ResourceType + " " + e.ResourceID
}

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/heriberto777/core-app-sub000/internal/entity"
	"github.com/heriberto777/core-app-sub000/internal/repository"
)

// TaskRepository implements repository.TaskRepository for MongoDB.
type TaskRepository struct {
	coll *mongo.Collection
}

// Upsert inserts or replaces a task keyed by name. Upserting an existing
// name keeps its id, counters and status so the operation is idempotent on
// the set of tasks.
func (r *TaskRepository) Upsert(ctx context.Context, task *entity.Task) error {
	now := entity.Now()

	existing := &entity.Task{}
	err := r.coll.FindOne(ctx, bson.M{"name": task.Name}).Decode(existing)
	switch {
	case err == nil:
		task.ID = existing.ID
		task.Runs = existing.Runs
		task.LastRunAt = existing.LastRunAt
		task.LastOutcome = existing.LastOutcome
		task.Status = existing.Status
		task.Progress = existing.Progress
		task.CreatedAt = existing.CreatedAt
	case errors.Is(err, mongo.ErrNoDocuments):
		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		task.Status = entity.StatusIdle
		task.CreatedAt = now
	default:
		return fmt.Errorf("failed to look up task by name: %w", err)
	}
	task.UpdatedAt = now

	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"_id": task.ID}, task, opts); err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by id.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*entity.Task, error) {
	task := &entity.Task{}
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &repository.NotFoundError{ResourceType: "Task", ResourceID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// GetByName retrieves a task by its unique name.
func (r *TaskRepository) GetByName(ctx context.Context, name string) (*entity.Task, error) {
	task := &entity.Task{}
	err := r.coll.FindOne(ctx, bson.M{"name": name}).Decode(task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &repository.NotFoundError{ResourceType: "Task", ResourceID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task by name: %w", err)
	}
	return task, nil
}

// List returns all tasks sorted by name.
func (r *TaskRepository) List(ctx context.Context) ([]*entity.Task, error) {
	cursor, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"name": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []*entity.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return tasks, nil
}

// GetActive returns enabled tasks matching the execution kind. Tasks with
// kind "both" match any filter; an empty filter matches every active task.
func (r *TaskRepository) GetActive(ctx context.Context, kind entity.ExecutionKind) ([]*entity.Task, error) {
	filter := bson.M{"active": true}
	if kind != "" {
		filter["kind"] = bson.M{"$in": []entity.ExecutionKind{kind, entity.KindBoth}}
	}

	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.M{"name": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list active tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []*entity.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode active tasks: %w", err)
	}
	return tasks, nil
}

// UpdateStatus writes only the status and progress fields.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, status entity.TaskStatus, progress int) error {
	update := bson.M{"$set": bson.M{
		"status":    status,
		"progress":  progress,
		"updatedAt": entity.Now(),
	}}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	if res.MatchedCount == 0 {
		return &repository.NotFoundError{ResourceType: "Task", ResourceID: id}
	}
	return nil
}

// UpdateOutcome records a finished run: increments the execution counter and
// writes the outcome summary and timestamp. No other fields are touched.
func (r *TaskRepository) UpdateOutcome(ctx context.Context, id string, outcome string) error {
	now := entity.Now()
	update := bson.M{
		"$set": bson.M{
			"lastOutcome": outcome,
			"lastRunAt":   now,
			"updatedAt":   now,
		},
		"$inc": bson.M{"runs": 1},
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update task outcome: %w", err)
	}
	if res.MatchedCount == 0 {
		return &repository.NotFoundError{ResourceType: "Task", ResourceID: id}
	}
	return nil
}

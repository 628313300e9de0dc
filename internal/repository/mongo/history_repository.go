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

// ExecutionRepository implements repository.ExecutionRepository for MongoDB.
type ExecutionRepository struct {
	coll *mongo.Collection
}

// Append stores a new execution record.
func (r *ExecutionRepository) Append(ctx context.Context, exec *entity.TaskExecution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if _, err := r.coll.InsertOne(ctx, exec); err != nil {
		return fmt.Errorf("failed to append execution: %w", err)
	}
	return nil
}

// Update replaces an existing execution record.
func (r *ExecutionRepository) Update(ctx context.Context, exec *entity.TaskExecution) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": exec.ID}, exec)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	if res.MatchedCount == 0 {
		return &repository.NotFoundError{ResourceType: "TaskExecution", ResourceID: exec.ID}
	}
	return nil
}

// ListByTask returns the most recent executions of a task, newest first.
func (r *ExecutionRepository) ListByTask(ctx context.Context, taskID string, limit int) ([]*entity.TaskExecution, error) {
	opts := options.Find().SetSort(bson.M{"startedAt": -1})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cursor, err := r.coll.Find(ctx, bson.M{"taskId": taskID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer cursor.Close(ctx)

	var execs []*entity.TaskExecution
	if err := cursor.All(ctx, &execs); err != nil {
		return nil, fmt.Errorf("failed to decode executions: %w", err)
	}
	return execs, nil
}

// MetricRepository implements repository.MetricRepository for MongoDB.
type MetricRepository struct {
	coll *mongo.Collection
}

// Append stores one throughput sample.
func (r *MetricRepository) Append(ctx context.Context, sample *entity.MetricSample) error {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	if _, err := r.coll.InsertOne(ctx, sample); err != nil {
		return fmt.Errorf("failed to append metric sample: %w", err)
	}
	return nil
}

// DBConfigRepository implements repository.DBConfigRepository for MongoDB.
type DBConfigRepository struct {
	coll *mongo.Collection
}

// GetByServer resolves the connection document for a server key.
func (r *DBConfigRepository) GetByServer(ctx context.Context, server string) (*entity.DBConfig, error) {
	cfg := &entity.DBConfig{}
	err := r.coll.FindOne(ctx, bson.M{"server": server}).Decode(cfg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &repository.NotFoundError{ResourceType: "DBConfig", ResourceID: server}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get db config: %w", err)
	}
	return cfg, nil
}

// List returns every configured server.
func (r *DBConfigRepository) List(ctx context.Context) ([]*entity.DBConfig, error) {
	cursor, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"server": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list db configs: %w", err)
	}
	defer cursor.Close(ctx)

	var cfgs []*entity.DBConfig
	if err := cursor.All(ctx, &cfgs); err != nil {
		return nil, fmt.Errorf("failed to decode db configs: %w", err)
	}
	return cfgs, nil
}

// Upsert inserts or replaces a server configuration keyed by server.
func (r *DBConfigRepository) Upsert(ctx context.Context, cfg *entity.DBConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.UpdatedAt = entity.Now()
	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"server": cfg.Server}, cfg, opts); err != nil {
		return fmt.Errorf("failed to upsert db config: %w", err)
	}
	return nil
}

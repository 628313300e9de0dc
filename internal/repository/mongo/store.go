// Package mongo implements the task store on a MongoDB database with the
// collections tasks, executions, metrics and dbConfigs.
package mongo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/heriberto777/core-app-sub000/internal/repository"
)

const (
	collTasks      = "tasks"
	collExecutions = "executions"
	collMetrics    = "metrics"
	collDBConfigs  = "dbConfigs"

	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second
)

// Store is the MongoDB-backed task store.
type Store struct {
	mu     sync.Mutex
	uri    string
	dbName string
	client *mongo.Client
	db     *mongo.Database

	tasks      *TaskRepository
	executions *ExecutionRepository
	metrics    *MetricRepository
	dbConfigs  *DBConfigRepository
}

// New connects to MongoDB and returns a ready store.
func New(ctx context.Context, uri, dbName string) (*Store, error) {
	s := &Store{uri: uri, dbName: dbName}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.uri))
	if err != nil {
		return fmt.Errorf("failed to connect to task store: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping task store: %w", err)
	}

	s.client = client
	s.db = client.Database(s.dbName)
	s.tasks = &TaskRepository{coll: s.db.Collection(collTasks)}
	s.executions = &ExecutionRepository{coll: s.db.Collection(collExecutions)}
	s.metrics = &MetricRepository{coll: s.db.Collection(collMetrics)}
	s.dbConfigs = &DBConfigRepository{coll: s.db.Collection(collDBConfigs)}
	return nil
}

// Tasks returns the task repository.
func (s *Store) Tasks() repository.TaskRepository { return s.tasks }

// Executions returns the execution-history repository.
func (s *Store) Executions() repository.ExecutionRepository { return s.executions }

// Metrics returns the metric-sample repository.
func (s *Store) Metrics() repository.MetricRepository { return s.metrics }

// DBConfigs returns the server-config repository.
func (s *Store) DBConfigs() repository.DBConfigRepository { return s.dbConfigs }

// Health pings the store. A failed ping triggers exactly one reconnection
// attempt before the error is surfaced.
func (s *Store) Health(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := s.client.Ping(pingCtx, readpref.Primary())
	cancel()
	if err == nil {
		return nil
	}

	_ = s.client.Disconnect(context.Background())
	if rerr := s.connect(ctx); rerr != nil {
		return fmt.Errorf("task store unreachable after reconnect: %w", rerr)
	}
	return nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

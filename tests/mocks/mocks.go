// Package mocks provides in-memory fakes of the task store and orchestrator
// collaborators for unit tests.
package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/heriberto777/core-app-sub000/internal/entity"
	"github.com/heriberto777/core-app-sub000/internal/repository"
)

// MockStore is an in-memory implementation of repository.Store.
type MockStore struct {
	mu sync.RWMutex

	tasks      map[string]*entity.Task
	executions map[string]*entity.TaskExecution
	samples    []*entity.MetricSample
	configs    map[string]*entity.DBConfig

	// HealthErr, when set, is returned by Health.
	HealthErr error
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		tasks:      make(map[string]*entity.Task),
		executions: make(map[string]*entity.TaskExecution),
		configs:    make(map[string]*entity.DBConfig),
	}
}

// Tasks returns the task repository.
func (s *MockStore) Tasks() repository.TaskRepository { return (*mockTasks)(s) }

// Executions returns the execution repository.
func (s *MockStore) Executions() repository.ExecutionRepository { return (*mockExecutions)(s) }

// Metrics returns the metric repository.
func (s *MockStore) Metrics() repository.MetricRepository { return (*mockMetrics)(s) }

// DBConfigs returns the server-config repository.
func (s *MockStore) DBConfigs() repository.DBConfigRepository { return (*mockConfigs)(s) }

// Health reports the injected health state.
func (s *MockStore) Health(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.HealthErr
}

// SetHealthErr injects a health failure.
func (s *MockStore) SetHealthErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.HealthErr = err
}

// Close is a no-op.
func (s *MockStore) Close(ctx context.Context) error { return nil }

// SeedTask stores a task directly, bypassing upsert semantics.
func (s *MockStore) SeedTask(task *entity.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	s.tasks[task.ID] = task
}

// TaskByID returns the stored task for assertions.
func (s *MockStore) TaskByID(id string) *entity.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[id]
}

// ExecutionsForTask returns the stored executions for assertions.
func (s *MockStore) ExecutionsForTask(taskID string) []*entity.TaskExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.TaskExecution
	for _, e := range s.executions {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
}

type mockTasks MockStore

func (m *mockTasks) Upsert(ctx context.Context, task *entity.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tasks {
		if existing.Name == task.Name {
			task.ID = existing.ID
			task.Runs = existing.Runs
			task.Status = existing.Status
			m.tasks[task.ID] = task
			return nil
		}
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.Status = entity.StatusIdle
	m.tasks[task.ID] = task
	return nil
}

func (m *mockTasks) GetByID(ctx context.Context, id string) (*entity.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, &repository.NotFoundError{ResourceType: "Task", ResourceID: id}
	}
	copied := *task
	return &copied, nil
}

func (m *mockTasks) GetByName(ctx context.Context, name string) (*entity.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, task := range m.tasks {
		if task.Name == name {
			copied := *task
			return &copied, nil
		}
	}
	return nil, &repository.NotFoundError{ResourceType: "Task", ResourceID: name}
}

func (m *mockTasks) List(ctx context.Context) ([]*entity.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*entity.Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		copied := *task
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockTasks) GetActive(ctx context.Context, kind entity.ExecutionKind) ([]*entity.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*entity.Task
	for _, task := range m.tasks {
		if !task.Active {
			continue
		}
		if kind != "" && task.Kind != kind && task.Kind != entity.KindBoth {
			continue
		}
		copied := *task
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockTasks) UpdateStatus(ctx context.Context, id string, status entity.TaskStatus, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return &repository.NotFoundError{ResourceType: "Task", ResourceID: id}
	}
	task.Status = status
	task.Progress = progress
	return nil
}

func (m *mockTasks) UpdateOutcome(ctx context.Context, id string, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return &repository.NotFoundError{ResourceType: "Task", ResourceID: id}
	}
	task.LastOutcome = outcome
	task.LastRunAt = entity.NowPtr()
	task.Runs++
	return nil
}

type mockExecutions MockStore

func (m *mockExecutions) Append(ctx context.Context, exec *entity.TaskExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	copied := *exec
	m.executions[exec.ID] = &copied
	return nil
}

func (m *mockExecutions) Update(ctx context.Context, exec *entity.TaskExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[exec.ID]; !ok {
		return &repository.NotFoundError{ResourceType: "TaskExecution", ResourceID: exec.ID}
	}
	copied := *exec
	m.executions[exec.ID] = &copied
	return nil
}

func (m *mockExecutions) ListByTask(ctx context.Context, taskID string, limit int) ([]*entity.TaskExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*entity.TaskExecution
	for _, e := range m.executions {
		if e.TaskID == taskID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

type mockMetrics MockStore

func (m *mockMetrics) Append(ctx context.Context, sample *entity.MetricSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample)
	return nil
}

type mockConfigs MockStore

func (m *mockConfigs) GetByServer(ctx context.Context, server string) (*entity.DBConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[server]
	if !ok {
		return nil, &repository.NotFoundError{ResourceType: "DBConfig", ResourceID: server}
	}
	copied := *cfg
	return &copied, nil
}

func (m *mockConfigs) List(ctx context.Context) ([]*entity.DBConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*entity.DBConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		copied := *cfg
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockConfigs) Upsert(ctx context.Context, cfg *entity.DBConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.Server] = cfg
	return nil
}

// MockRunner records transfer invocations and returns scripted results.
type MockRunner struct {
	mu      sync.Mutex
	calls   []string
	results map[string]error
}

// NewMockRunner creates a runner whose Run outcome per task id is scripted
// through Script.
func NewMockRunner() *MockRunner {
	return &MockRunner{results: make(map[string]error)}
}

// Script sets the error Run returns for a task id (nil = success).
func (r *MockRunner) Script(taskID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[taskID] = err
}

// Run records the call and returns the scripted outcome.
func (r *MockRunner) Run(ctx context.Context, taskID string) (*entity.TransferResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, taskID)
	if err := r.results[taskID]; err != nil {
		return &entity.TransferResult{Success: false}, err
	}
	return &entity.TransferResult{Success: true}, nil
}

// Calls returns the recorded invocations.
func (r *MockRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// MockHealth is a switchable health gate.
type MockHealth struct {
	mu      sync.Mutex
	healthy bool
}

// NewMockHealth creates a gate with the given initial state.
func NewMockHealth(healthy bool) *MockHealth {
	return &MockHealth{healthy: healthy}
}

// Set flips the gate.
func (h *MockHealth) Set(healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.healthy = healthy
}

// Healthy reports the current state.
func (h *MockHealth) Healthy(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.healthy
}

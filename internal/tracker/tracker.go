// Package tracker keeps the process-wide registry of in-flight transfer
// tasks and their cancellation handles.
package tracker

import (
	"context"
	"sync"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

// Execution is one registered in-flight task.
type Execution struct {
	TaskID string
	Cancel context.CancelFunc

	mu    sync.Mutex
	phase entity.Phase
}

// SetPhase records the task's current pipeline phase.
func (e *Execution) SetPhase(p entity.Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

// Phase returns the task's current pipeline phase.
func (e *Execution) Phase() entity.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Tracker maps task ids to cancellation handles. At most one active
// registration per task id is allowed.
type Tracker struct {
	mu      sync.Mutex
	running map[string]*Execution
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{running: make(map[string]*Execution)}
}

// Register opens a cancellable scope for the task. Registering a task that
// is already active fails with ErrAlreadyRunning.
func (t *Tracker) Register(ctx context.Context, taskID string) (context.Context, *Execution, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.running[taskID]; ok {
		return nil, nil, entity.ErrAlreadyRunning
	}

	taskCtx, cancel := context.WithCancel(ctx)
	exec := &Execution{TaskID: taskID, Cancel: cancel, phase: entity.PhasePrepare}
	t.running[taskID] = exec
	return taskCtx, exec, nil
}

// Cancel signals the task's cancellation handle. Returns false when the
// task is not running.
func (t *Tracker) Cancel(taskID string) bool {
	t.mu.Lock()
	exec, ok := t.running[taskID]
	t.mu.Unlock()

	if !ok {
		return false
	}
	exec.Cancel()
	return true
}

// Complete removes the task's registration once it reached a terminal
// status and releases its cancellation scope.
func (t *Tracker) Complete(taskID string) {
	t.mu.Lock()
	exec, ok := t.running[taskID]
	if ok {
		delete(t.running, taskID)
	}
	t.mu.Unlock()

	if ok {
		exec.Cancel()
	}
}

// IsRunning reports whether the task has an active registration.
func (t *Tracker) IsRunning(taskID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.running[taskID]
	return ok
}

// Running returns the ids of all in-flight tasks.
func (t *Tracker) Running() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.running))
	for id := range t.running {
		ids = append(ids, id)
	}
	return ids
}

// Get returns the execution record for a running task, or nil.
func (t *Tracker) Get(taskID string) *Execution {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running[taskID]
}

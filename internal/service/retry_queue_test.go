package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heriberto777/core-app-sub000/internal/entity"
	"github.com/heriberto777/core-app-sub000/internal/metrics"
	"github.com/heriberto777/core-app-sub000/tests/mocks"
)

var errConn = errors.New("connection refused")

func newTestQueue(t *testing.T, runner TaskRunner, health HealthChecker, store *mocks.MockStore) *RetryQueue {
	t.Helper()
	registry := metrics.NewRegistryWith(prometheus.NewRegistry())
	return NewRetryQueue(runner, health, store, registry, zap.NewNop().Sugar())
}

// TestEnqueueAndEntries validates parking and snapshotting.
func TestEnqueueAndEntries(t *testing.T) {
	q := newTestQueue(t, mocks.NewMockRunner(), mocks.NewMockHealth(true), mocks.NewMockStore())

	q.Enqueue("task-1", "timeout")
	q.Enqueue("task-2", "refused")

	entries := q.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "task-1", entries[0].TaskID)
	assert.Equal(t, 0, entries[0].RetryCount)
	assert.Equal(t, "timeout", entries[0].LastReason)
	assert.Equal(t, 2, q.Len())
}

// TestEnqueueMergesExistingEntry validates that re-parking a task keeps its
// retry count.
func TestEnqueueMergesExistingEntry(t *testing.T) {
	q := newTestQueue(t, mocks.NewMockRunner(), mocks.NewMockHealth(true), mocks.NewMockStore())

	q.Enqueue("task-1", "first failure")
	q.Enqueue("task-1", "second failure")

	entries := q.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "second failure", entries[0].LastReason)
	assert.Equal(t, 0, entries[0].RetryCount)
}

// TestProcessOnceRetriesAndRemoves validates the success path of a cycle.
func TestProcessOnceRetriesAndRemoves(t *testing.T) {
	runner := mocks.NewMockRunner()
	q := newTestQueue(t, runner, mocks.NewMockHealth(true), mocks.NewMockStore())

	q.Enqueue("task-1", "timeout")
	q.ProcessOnce(context.Background())

	assert.Equal(t, []string{"task-1"}, runner.Calls())
	assert.Equal(t, 0, q.Len(), "successful retry removes the entry")
}

// TestProcessOnceSkipsWhenUnhealthy validates the health gate.
func TestProcessOnceSkipsWhenUnhealthy(t *testing.T) {
	runner := mocks.NewMockRunner()
	health := mocks.NewMockHealth(false)
	q := newTestQueue(t, runner, health, mocks.NewMockStore())

	q.Enqueue("task-1", "timeout")
	q.ProcessOnce(context.Background())
	assert.Empty(t, runner.Calls())
	assert.Equal(t, 1, q.Len())

	health.Set(true)
	q.ProcessOnce(context.Background())
	assert.Equal(t, []string{"task-1"}, runner.Calls())
}

// TestProcessOnceDequeuesAtMostThree validates the per-cycle batch cap.
func TestProcessOnceDequeuesAtMostThree(t *testing.T) {
	runner := mocks.NewMockRunner()
	q := newTestQueue(t, runner, mocks.NewMockHealth(true), mocks.NewMockStore())

	for i := 1; i <= 5; i++ {
		q.Enqueue(fmt.Sprintf("task-%d", i), "timeout")
	}

	q.ProcessOnce(context.Background())
	assert.Len(t, runner.Calls(), 3)
	assert.Equal(t, 2, q.Len())
}

// TestRetryCountAndPermanentFailure validates exhaustion handling.
func TestRetryCountAndPermanentFailure(t *testing.T) {
	runner := mocks.NewMockRunner()
	runner.Script("task-1", errConn)
	store := mocks.NewMockStore()
	store.SeedTask(&entity.Task{ID: "task-1", Name: "t1", Active: true})

	q := newTestQueue(t, runner, mocks.NewMockHealth(true), store)
	q.SetMaxRetries(2)
	q.Enqueue("task-1", "timeout")

	q.ProcessOnce(context.Background())
	entries := q.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)

	q.ProcessOnce(context.Background())
	assert.Equal(t, 0, q.Len(), "exhausted entry is removed")

	task := store.TaskByID("task-1")
	require.NotNil(t, task)
	assert.Equal(t, entity.StatusFailed, task.Status)
	assert.Equal(t, -1, task.Progress)
}

// TestQueueCapacity validates the bounded queue drops overflow.
func TestQueueCapacity(t *testing.T) {
	q := newTestQueue(t, mocks.NewMockRunner(), mocks.NewMockHealth(true), mocks.NewMockStore())
	q.capacity = 2

	q.Enqueue("a", "x")
	q.Enqueue("b", "x")
	q.Enqueue("c", "x")

	assert.Equal(t, 2, q.Len())
}

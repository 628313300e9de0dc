package tracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

// TestRegisterAndComplete validates the single-registration lifecycle.
func TestRegisterAndComplete(t *testing.T) {
	trk := New()

	ctx, exec, err := trk.Register(context.Background(), "task-1")
	require.NoError(t, err)
	require.NotNil(t, exec)
	assert.True(t, trk.IsRunning("task-1"))
	assert.NoError(t, ctx.Err())

	// Second registration while active fails.
	_, _, err = trk.Register(context.Background(), "task-1")
	assert.ErrorIs(t, err, entity.ErrAlreadyRunning)

	trk.Complete("task-1")
	assert.False(t, trk.IsRunning("task-1"))
	assert.Error(t, ctx.Err(), "completing releases the cancellation scope")

	// After completion the id can be registered again.
	_, _, err = trk.Register(context.Background(), "task-1")
	assert.NoError(t, err)
}

// TestCancelPropagates validates cooperative cancellation through the handle.
func TestCancelPropagates(t *testing.T) {
	trk := New()

	ctx, _, err := trk.Register(context.Background(), "task-1")
	require.NoError(t, err)

	require.True(t, trk.Cancel("task-1"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	// The registration stays until the orchestrator completes it.
	assert.True(t, trk.IsRunning("task-1"))
	trk.Complete("task-1")
	assert.False(t, trk.IsRunning("task-1"))

	assert.False(t, trk.Cancel("missing"))
}

// TestPhaseTracking validates phase bookkeeping on the execution record.
func TestPhaseTracking(t *testing.T) {
	trk := New()

	_, exec, err := trk.Register(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, entity.PhasePrepare, exec.Phase())

	exec.SetPhase(entity.PhaseProcess)
	assert.Equal(t, entity.PhaseProcess, exec.Phase())

	got := trk.Get("task-1")
	require.NotNil(t, got)
	assert.Equal(t, entity.PhaseProcess, got.Phase())
	assert.Nil(t, trk.Get("missing"))
}

// TestRunning validates the in-flight listing.
func TestRunning(t *testing.T) {
	trk := New()
	_, _, err := trk.Register(context.Background(), "a")
	require.NoError(t, err)
	_, _, err = trk.Register(context.Background(), "b")
	require.NoError(t, err)

	running := trk.Running()
	assert.ElementsMatch(t, []string{"a", "b"}, running)
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")
var errFatal = errors.New("fatal")

func fastPolicy(classifier func(error) bool) Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Classifier:   classifier,
	}
}

// TestExecuteSucceedsAfterRetries validates retrying retriable failures.
func TestExecuteSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Execute(context.Background(), fastPolicy(nil), func() error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

// TestExecuteExhaustsBudget validates the retry cap.
func TestExecuteExhaustsBudget(t *testing.T) {
	attempts := 0
	err := Execute(context.Background(), fastPolicy(nil), func() error {
		attempts++
		return errTransient
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, attempts, "initial attempt plus MaxRetries retries")
}

// TestExecuteClassifierStopsEarly validates that non-retriable failures
// surface immediately.
func TestExecuteClassifierStopsEarly(t *testing.T) {
	classifier := func(err error) bool { return errors.Is(err, errTransient) }

	attempts := 0
	err := Execute(context.Background(), fastPolicy(classifier), func() error {
		attempts++
		return errFatal
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, attempts)
}

// TestExecuteCancellation validates aborting mid-wait.
func TestExecuteCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := Policy{
		MaxRetries:   10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
	}

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Execute(ctx, policy, func() error {
			attempts++
			return errTransient
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.LessOrEqual(t, attempts, 2, "cancellation must stop further attempts")
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not return after cancellation")
	}
}

// TestExecuteNoRetryOnSuccess validates the happy path.
func TestExecuteNoRetryOnSuccess(t *testing.T) {
	attempts := 0
	err := Execute(context.Background(), DefaultPolicy(nil), func() error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

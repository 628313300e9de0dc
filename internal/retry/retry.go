// Package retry wraps operations with cancellation-aware exponential
// backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy controls how an operation is retried.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       bool
	// Classifier decides whether a failure is retriable. A nil classifier
	// retries everything.
	Classifier func(error) bool
}

// DefaultPolicy matches the transfer pipeline's connection-retry budget.
func DefaultPolicy(classifier func(error) bool) Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Jitter:       true,
		Classifier:   classifier,
	}
}

// Execute runs op, retrying retriable failures with exponential backoff
// (multiplier 1.5, capped at MaxDelay). Non-retriable failures surface
// immediately; ctx cancellation aborts mid-wait.
func Execute(ctx context.Context, policy Policy, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.InitialDelay
	bo.MaxInterval = policy.MaxDelay
	bo.Multiplier = 1.5
	bo.MaxElapsedTime = 0
	if policy.Jitter {
		bo.RandomizationFactor = 0.25
	} else {
		bo.RandomizationFactor = 0
	}
	bo.Reset()

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if policy.Classifier != nil && !policy.Classifier(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	limited := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(policy.MaxRetries)), ctx)
	return backoff.Retry(wrapped, limited)
}

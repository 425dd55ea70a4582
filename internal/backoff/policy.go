// Package backoff holds the retry policy shared by the mailbox manager,
// the model access layer and the processing queue.
package backoff

import (
	"context"
	"time"
)

// Policy is a sequence of increasing delays plus a maximum attempt count
type Policy struct {
	Delays      []time.Duration
	MaxAttempts int
}

// Fixed returns a policy that always waits d
func Fixed(d time.Duration, maxAttempts int) Policy {
	return Policy{Delays: []time.Duration{d}, MaxAttempts: maxAttempts}
}

// Delay returns the delay for the given zero-based step; steps past the end reuse the last delay
func (p Policy) Delay(step int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if step < 0 {
		step = 0
	}
	if step >= len(p.Delays) {
		step = len(p.Delays) - 1
	}
	return p.Delays[step]
}

// Exhausted reports whether attempts reached MaxAttempts (zero means unlimited)
func (p Policy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// Wait sleeps for d or until ctx is done
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

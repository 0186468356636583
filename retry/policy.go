// Package retry provides small, bounded retry policies for cooperative
// resources like distributed locks. There are deliberately no unbounded
// backoff loops: a denied resource is reported as a conflict and left
// for queue re-delivery to retry.
package retry

import "time"

// Policy defines bounded retry behavior.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (including the
	// first). Must be at least 1.
	MaxAttempts int

	// Delay is the fixed delay between attempts.
	Delay time.Duration
}

// Fixed returns a policy with the given number of attempts and a fixed
// delay between them.
func Fixed(attempts int, delay time.Duration) *Policy {
	if attempts < 1 {
		attempts = 1
	}
	return &Policy{MaxAttempts: attempts, Delay: delay}
}

// Once returns a policy that makes a single attempt.
func Once() *Policy {
	return &Policy{MaxAttempts: 1}
}

// ShouldRetry reports whether another attempt should be made.
// Attempt is the 1-indexed number of the attempt that just failed.
func (p *Policy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// NextDelay returns the delay to wait before the next attempt.
func (p *Policy) NextDelay() time.Duration {
	return p.Delay
}

package backoff

import (
	"context"
	"time"
)

// Exponential yields waits that double from an initial value up to a cap.
// Not safe for concurrent use.
type Exponential struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

// New returns a backoff starting at initial and capped at max. A max
// below initial is raised to initial.
func New(initial, max time.Duration) *Exponential {
	if max < initial {
		max = initial
	}
	return &Exponential{initial: initial, max: max, next: initial}
}

// Next returns the wait to use now.
func (b *Exponential) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max || b.next <= 0 {
		b.next = b.max
	}
	return d
}

// Reset starts over from the initial wait.
func (b *Exponential) Reset() { b.next = b.initial }

// Sleep waits d. It returns false if ctx ended first.
func Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

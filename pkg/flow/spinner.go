package flow

import (
	"context"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// checkEvery is how many polls pass between two looks at the context.
const checkEvery = 1024

// Spinner runs busy-wait loops. Without a BackOff it re-reads the condition
// back to back. With one, each failed poll is followed by the next back-off
// delay: zero yields the processor, a positive delay sleeps. Pacing never
// changes which condition is waited for, only how often it is read.
type Spinner struct {
	b backoff.BackOff
}

// NewSpinner returns a Spinner paced by b, or a pure spinner when b is nil.
func NewSpinner(b backoff.BackOff) *Spinner {
	return &Spinner{b: b}
}

// YieldSpinner yields the processor between polls.
func YieldSpinner() *Spinner {
	return NewSpinner(&backoff.ZeroBackOff{})
}

// SleepSpinner sleeps d between polls.
func SleepSpinner(d time.Duration) *Spinner {
	return NewSpinner(backoff.NewConstantBackOff(d))
}

// Until polls cond until it holds and returns the number of polls, at least
// one. A paced Spinner looks at ctx after every failed poll, a pure one every
// checkEvery polls; a cancelled ctx ends the wait with its error. There is no
// other way out of the loop.
func (s *Spinner) Until(ctx context.Context, cond func() bool) (int, error) {
	if s.b != nil {
		s.b.Reset()
	}
	polls := 1
	for !cond() {
		if (s.b != nil || polls%checkEvery == 0) && ctx.Err() != nil {
			return polls, ctx.Err()
		}
		s.pause()
		polls++
	}
	return polls, nil
}

// nested returns the Spinner for waits run inside a condition polled by s. It
// never shares the BackOff of s, whose growth would otherwise be reset by
// every inner wait.
func (s *Spinner) nested() *Spinner {
	if s.b == nil {
		return s
	}
	return YieldSpinner()
}

func (s *Spinner) pause() {
	if s.b == nil {
		return
	}
	d := s.b.NextBackOff()
	switch {
	case d == backoff.Stop:
		s.b.Reset()
		runtime.Gosched()
	case d <= 0:
		runtime.Gosched()
	default:
		time.Sleep(d)
	}
}

package utils

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// clockTimer runs backoff waits on an injected clock, so retries follow a
// fake clock in tests.
type clockTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func NewBackoffTimer(clock clockwork.Clock) backoff.Timer {
	return &clockTimer{clock: clock}
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.Chan()
}

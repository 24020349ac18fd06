package controller

import "time"

// timer is a retriggerable one-shot. The clock callback only posts to the
// loop; the fire function runs there and is dropped if the timer was stopped
// or reset after the clock fired.
type timer struct {
	clock    Clock
	dispatch Dispatcher

	gen     uint64
	pending bool
	handle  Stopper
}

func newTimer(clock Clock, d Dispatcher) *timer {
	return &timer{clock: clock, dispatch: d}
}

// Reset cancels any pending fire and schedules fire after d.
func (t *timer) Reset(d time.Duration, fire func()) {
	t.Stop()
	gen := t.gen
	t.pending = true
	t.handle = t.clock.AfterFunc(d, func() {
		t.dispatch.Post(func() {
			if !t.pending || t.gen != gen {
				return
			}
			t.pending = false
			t.handle = nil
			fire()
		})
	})
}

// Stop cancels a pending fire, including one already queued on the loop.
func (t *timer) Stop() {
	if t.handle != nil {
		t.handle.Stop()
		t.handle = nil
	}
	t.pending = false
	t.gen++
}

func (t *timer) Pending() bool {
	return t.pending
}

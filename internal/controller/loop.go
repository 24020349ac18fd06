package controller

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopStopped is returned by Call once the loop has exited.
var ErrLoopStopped = errors.New("controller loop stopped")

// Dispatcher runs closures on the controller's single logical thread.
type Dispatcher interface {
	Post(fn func()) bool
}

// Loop is the single goroutine that owns controller state. Everything that
// touches settings state is posted here.
type Loop struct {
	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once
}

func NewLoop() *Loop {
	return &Loop{
		queue: make(chan func(), 64),
		done:  make(chan struct{}),
	}
}

// Post queues fn. It returns false if the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopStopped
	}
}

// Run processes posted closures until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.done) })
	for {
		select {
		case fn := <-l.queue:
			fn()
		case <-ctx.Done():
			return nil
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Runner executes blocking work off the loop. The function returned by work,
// if any, is posted back onto the loop.
type Runner interface {
	Go(work func() func())
}

type asyncRunner struct {
	d Dispatcher
}

func (r asyncRunner) Go(work func() func()) {
	go func() {
		if next := work(); next != nil {
			r.d.Post(next)
		}
	}()
}

package main

import (
	"context"
	"errors"
	"sync"
)

var ErrLoopClosed = errors.New("event loop closed")

// Loop runs queued work one item at a time on a single goroutine. Everything
// that touches the demand state goes through it, so none of the controller
// types need locks.
type Loop struct {
	work   chan func()
	done   chan struct{}
	closed sync.Once
}

func NewLoop() *Loop {
	return &Loop{
		work: make(chan func(), 64),
		done: make(chan struct{}),
	}
}

// Run processes work until ctx is canceled. It must be called exactly once.
func (l *Loop) Run(ctx context.Context) {
	defer l.closed.Do(func() { close(l.done) })

	for {
		select {
		case fn := <-l.work:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Post queues fn without waiting for it.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrLoopClosed
	default:
	}

	select {
	case l.work <- fn:
		return nil
	case <-l.done:
		return ErrLoopClosed
	}
}

// Do queues fn and blocks until it has run.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	err := l.Post(func() {
		defer close(finished)
		fn()
	})
	if err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopClosed
	}
}

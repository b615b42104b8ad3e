package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var errBatchTimeout = errors.New("batch deadline exceeded")

// batchCallbacks receives every child's outcome. Outcomes after the deadline
// fired are routed to the timeout variants; a child that still finished
// without error after the deadline is a deliberate category of its own, since
// cancellation racing a successful side effect is tolerated.
type batchCallbacks struct {
	onSuccess        func(name string)
	onError          func(name string, err error)
	onCancelled      func(name string)
	onTimeoutSuccess func(name string)
	onTimeoutError   func(name string, err error)
}

type batchOutcome struct {
	name string
	err  error
}

// batch runs a set of child tasks under a single deadline. Children are
// reaped and dispatched as they finish; when the deadline fires the rest are
// cancelled together and each is still awaited exactly once. Nothing ever
// escapes to the caller: Wait returns only after every spawned child has been
// dispatched to a callback.
type batch struct {
	ctx     context.Context
	cancel  context.CancelCauseFunc
	timeout time.Duration
	cb      batchCallbacks

	wg   sync.WaitGroup
	done chan batchOutcome

	mu      sync.Mutex
	sealed  bool
	spawned int
}

func newBatch(parent context.Context, timeout time.Duration, cb batchCallbacks) *batch {
	ctx, cancel := context.WithCancelCause(parent)
	return &batch{
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
		cb:      cb,
		done:    make(chan batchOutcome),
	}
}

// Spawn starts a child task. A panic inside fn is contained and reported as
// an error outcome. Spawning after Wait has finished draining is a bug and
// the task is dropped with a cancelled dispatch.
func (b *batch) Spawn(name string, fn func(ctx context.Context) error) {
	b.mu.Lock()
	if b.sealed {
		b.mu.Unlock()
		if b.cb.onCancelled != nil {
			b.cb.onCancelled(name)
		}
		return
	}
	b.spawned++
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task panicked: %v", r)
				}
			}()
			err = fn(b.ctx)
		}()
		b.done <- batchOutcome{name: name, err: err}
	}()
}

// Wait drains child outcomes until all children finished, cancelling the
// stragglers once the deadline fires. It must be called exactly once.
func (b *batch) Wait() {
	finished := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(finished)
	}()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	defer b.cancel(nil)

	expired := false
	for {
		select {
		case out := <-b.done:
			b.dispatch(out, expired)
		case <-timer.C:
			expired = true
			b.cancel(errBatchTimeout)
		case <-finished:
			// Reap any outcome racing the waitgroup.
			for {
				select {
				case out := <-b.done:
					b.dispatch(out, expired)
				default:
					b.mu.Lock()
					b.sealed = true
					b.mu.Unlock()
					return
				}
			}
		}
	}
}

func (b *batch) dispatch(out batchOutcome, expired bool) {
	switch {
	case out.err == nil && !expired:
		if b.cb.onSuccess != nil {
			b.cb.onSuccess(out.name)
		}
	case out.err == nil && expired:
		if b.cb.onTimeoutSuccess != nil {
			b.cb.onTimeoutSuccess(out.name)
		}
	case errors.Is(out.err, context.Canceled):
		if b.cb.onCancelled != nil {
			b.cb.onCancelled(out.name)
		}
	case expired:
		if b.cb.onTimeoutError != nil {
			b.cb.onTimeoutError(out.name, out.err)
		}
	default:
		if b.cb.onError != nil {
			b.cb.onError(out.name, out.err)
		}
	}
}

package client

import (
	"context"
	"sync"

	"github.com/nczempin/httpc-conn/engine"
	"github.com/nczempin/httpc-conn/errors"
)

// Waker is notified when a pending Future may make progress
type Waker interface {
	Wake()
}

// WakerFunc adapts a function to the Waker interface
type WakerFunc func()

// Wake calls f()
func (f WakerFunc) Wake() {
	f()
}

// completion is shared between a Future and the callback that resolves it.
// Once completed it stays completed, so a callback that fires before the
// first poll is still observed.
type completion struct {
	mu        sync.Mutex
	completed bool
	err       error
	waker     Waker
}

// complete records the outcome. Only the first outcome is kept.
func (c *completion) complete(err error) {
	c.mu.Lock()
	if c.completed {
		c.mu.Unlock()
		return
	}
	c.completed = true
	c.err = err
	w := c.waker
	c.waker = nil
	c.mu.Unlock()

	if w != nil {
		w.Wake()
	}
}

// fail records err even over an earlier success. It is only used before the
// Future is handed out, while nobody can have observed the first outcome.
func (c *completion) fail(err error) {
	c.mu.Lock()
	c.completed = true
	c.err = err
	w := c.waker
	c.waker = nil
	c.mu.Unlock()

	if w != nil {
		w.Wake()
	}
}

// Future turns one callback-signalled engine call into a pollable result
type Future struct {
	state *completion
}

// Poll reports whether the operation has completed. When it has not, w is
// stored and replaces any waker from an earlier poll.
func (f *Future) Poll(w Waker) (bool, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	if f.state.completed {
		return true, f.state.err
	}
	f.state.waker = w
	return false, nil
}

// Await polls until the future is ready or ctx is done. Giving up on ctx
// yields an EngineTimeout error wrapping ctx.Err(). It does not stop the
// engine call; that runs to completion on its own.
func (f *Future) Await(ctx context.Context) error {
	woken := make(chan struct{}, 1)
	w := WakerFunc(func() {
		select {
		case woken <- struct{}{}:
		default:
		}
	})

	for {
		if ready, err := f.Poll(w); ready {
			return err
		}
		select {
		case <-woken:
		case <-ctx.Done():
			return errors.NewEngineError(errors.EngineTimeout, "gave up waiting for the engine", ctx.Err())
		}
	}
}

// newOpenFuture registers a completion handler on the connection's event
// channel and invokes the blocking Open. The handler may fire inside Open,
// later from an engine goroutine, or not at all when Open fails outright.
func newOpenFuture(c *Connection) *Future {
	state := &completion{}

	c.events.register(func(ev *engine.Event) error {
		c.log.WithField("event", ev.ID).Trace("open future event")
		switch ev.ID {
		case engine.EventConnected:
			state.complete(nil)
		case engine.EventError:
			state.complete(errors.NewEngineError(errors.CodeOf(ev.Err), "connection failed", ev.Err))
		}
		return nil
	})

	if err := c.session.Open(c.requestContentLen); err != nil {
		state.fail(errors.NewEngineError(errors.CodeOf(err), "open failed", err))
	}

	return &Future{state: state}
}

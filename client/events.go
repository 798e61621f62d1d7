package client

import (
	"sync/atomic"

	"github.com/nczempin/httpc-conn/engine"
	"github.com/nczempin/httpc-conn/errors"
)

type eventHandler func(ev *engine.Event) error

// eventChannel is the single handler slot behind a session's callback. The
// engine may call dispatch from its own goroutine, so the slot is atomic even
// though the connection itself is not.
type eventChannel struct {
	slot atomic.Pointer[eventHandler]
}

// register installs h, silently replacing any active handler.
func (ch *eventChannel) register(h eventHandler) {
	ch.slot.Store(&h)
}

func (ch *eventChannel) release() {
	ch.slot.Store(nil)
}

func (ch *eventChannel) active() bool {
	return ch.slot.Load() != nil
}

// scoped runs fn with h registered and releases the slot on every exit path.
func (ch *eventChannel) scoped(h eventHandler, fn func() error) error {
	ch.register(h)
	defer ch.release()
	return fn()
}

// assertIdle panics when a handler outlived the operation that installed it.
func (ch *eventChannel) assertIdle() {
	if ch.active() {
		panic("event handler leaked past its operation")
	}
}

// dispatch is the callback handed to the engine. Events arriving while the
// slot is empty are acknowledged and dropped.
func (ch *eventChannel) dispatch(ev *engine.Event) error {
	if ev == nil {
		return errors.NewEngineError(errors.EngineFail, "nil event", nil)
	}
	h := ch.slot.Load()
	if h == nil {
		return nil
	}
	return (*h)(ev)
}

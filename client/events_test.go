package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nczempin/httpc-conn/engine"
)

func TestEventChannel_RegisterReplaces(t *testing.T) {
	ch := &eventChannel{}
	var calls []string

	ch.register(func(ev *engine.Event) error { calls = append(calls, "first"); return nil })
	ch.register(func(ev *engine.Event) error { calls = append(calls, "second"); return nil })

	assert.NoError(t, ch.dispatch(&engine.Event{ID: engine.EventData}))
	assert.Equal(t, []string{"second"}, calls)

	ch.release()
	assert.False(t, ch.active())
	assert.NoError(t, ch.dispatch(&engine.Event{ID: engine.EventData}))
	assert.Equal(t, []string{"second"}, calls)
}

func TestEventChannel_ScopedReleasesOnError(t *testing.T) {
	ch := &eventChannel{}
	boom := assert.AnError

	err := ch.scoped(func(ev *engine.Event) error { return nil }, func() error {
		assert.True(t, ch.active())
		return boom
	})
	assert.Equal(t, boom, err)
	assert.False(t, ch.active())
	assert.NotPanics(t, ch.assertIdle)
}

func TestEventChannel_ScopedReleasesOnPanic(t *testing.T) {
	ch := &eventChannel{}
	assert.Panics(t, func() {
		ch.scoped(func(ev *engine.Event) error { return nil }, func() error { panic("engine blew up") })
	})
	assert.False(t, ch.active())
}

func TestEventChannel_NilEvent(t *testing.T) {
	ch := &eventChannel{}
	assert.Error(t, ch.dispatch(nil))
}

func TestEventChannel_AssertIdle(t *testing.T) {
	ch := &eventChannel{}
	ch.register(func(ev *engine.Event) error { return nil })
	assert.Panics(t, ch.assertIdle)
}

package voiceagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterDispatchOrder(t *testing.T) {
	e := NewEmitter(nil)

	var order []int
	e.Subscribe("evt", func(payload any) { order = append(order, 1) })
	e.Subscribe("evt", func(payload any) { order = append(order, 2) })
	e.Subscribe("evt", func(payload any) { order = append(order, 3) })

	e.Publish("evt", nil)

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEmitterPayloadDelivery(t *testing.T) {
	e := NewEmitter(nil)

	var got any
	e.Subscribe("evt", func(payload any) { got = payload })
	e.Publish("evt", "hello")

	assert.Equal(t, "hello", got)
}

func TestEmitterUnsubscribe(t *testing.T) {
	e := NewEmitter(nil)

	calls := 0
	unsub := e.Subscribe("evt", func(payload any) { calls++ })

	e.Publish("evt", nil)
	require.Equal(t, 1, calls)

	unsub()
	e.Publish("evt", nil)
	assert.Equal(t, 1, calls)

	// A second unsubscribe is a no-op.
	unsub()
	assert.Equal(t, 0, e.HandlerCount("evt"))
}

func TestEmitterPanicIsolation(t *testing.T) {
	e := NewEmitter(nil)

	secondRan := false
	e.Subscribe("evt", func(payload any) { panic("boom") })
	e.Subscribe("evt", func(payload any) { secondRan = true })

	assert.NotPanics(t, func() { e.Publish("evt", nil) })
	assert.True(t, secondRan, "handler after a panicking one must still run")
}

func TestEmitterUnsubscribeAll(t *testing.T) {
	e := NewEmitter(nil)

	e.Subscribe("a", func(payload any) {})
	e.Subscribe("a", func(payload any) {})
	e.Subscribe("b", func(payload any) {})

	e.UnsubscribeAll("a")
	assert.Equal(t, 0, e.HandlerCount("a"))
	assert.Equal(t, 1, e.HandlerCount("b"))

	e.UnsubscribeAll()
	assert.Equal(t, 0, e.HandlerCount("b"))
}

func TestEmitterSubscribeError(t *testing.T) {
	e := NewEmitter(nil)

	var got *AgentError
	unsub := e.SubscribeError(func(err *AgentError) { got = err })

	e.Publish(EventError, "not an agent error")
	assert.Nil(t, got, "non-error payloads are ignored")

	want := NewPlaybackError("speaker gone")
	e.PublishError(want)
	assert.Equal(t, want, got)

	unsub()
	e.PublishError(NewPlaybackError("again"))
	assert.Equal(t, want, got)
}

func TestEmitterNoHandlers(t *testing.T) {
	e := NewEmitter(nil)
	assert.NotPanics(t, func() { e.Publish("nobody", 42) })
}

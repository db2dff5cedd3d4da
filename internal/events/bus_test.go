package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmitReachesAllSubscribers(t *testing.T) {
	bus := NewBus()

	var calls atomic.Int32
	bus.Subscribe(EventVoteStarted, "first", func(context.Context, Event) error {
		calls.Add(1)
		return nil
	})
	bus.Subscribe(EventVoteStarted, "second", func(context.Context, Event) error {
		calls.Add(1)
		return nil
	})
	bus.Subscribe(EventVoteResolved, "other-type", func(context.Context, Event) error {
		calls.Add(100)
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventVoteStarted, Source: "test"})
	bus.Stop()

	assert.Equal(t, int32(2), calls.Load())
}

func TestEmitAfterStopIsDropped(t *testing.T) {
	bus := NewBus()

	var calls atomic.Int32
	bus.Subscribe(EventMapSet, "counter", func(context.Context, Event) error {
		calls.Add(1)
		return nil
	})

	bus.Stop()
	bus.Emit(context.Background(), Event{Type: EventMapSet})

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestHandlerPanicIsContained(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(EventVoteFailed, "panics", func(context.Context, Event) error {
		panic("boom")
	})
	var survived atomic.Bool
	bus.Subscribe(EventVoteFailed, "survives", func(context.Context, Event) error {
		survived.Store(true)
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventVoteFailed})
	bus.Stop()

	assert.True(t, survived.Load())
}

func TestHandlerErrorDoesNotPropagate(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(EventDisconnected, "failing", func(context.Context, Event) error {
		return errors.New("sink unavailable")
	})

	// Must not panic or block.
	bus.Emit(context.Background(), Event{Type: EventDisconnected})
	bus.Stop()
}

package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowstate/orchestrator/core/events"
)

func TestBusFanOutInRegistrationOrder(t *testing.T) {
	bus := events.NewBus()
	var mu sync.Mutex
	var order []int

	for i := 0; i < 3; i++ {
		i := i
		_, err := bus.Register(events.SubscriberFunc(func(ctx context.Context, evt events.Event) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
		require.NoError(t, err)
	}

	require.NoError(t, bus.Publish(context.Background(), events.New(events.RunStarted, time.Now(), nil)))
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestBusStopsAtFirstError(t *testing.T) {
	bus := events.NewBus()
	boom := errors.New("boom")
	var secondCalled bool

	_, err := bus.Register(events.SubscriberFunc(func(ctx context.Context, evt events.Event) error {
		return boom
	}))
	require.NoError(t, err)
	_, err = bus.Register(events.SubscriberFunc(func(ctx context.Context, evt events.Event) error {
		secondCalled = true
		return nil
	}))
	require.NoError(t, err)

	err = bus.Publish(context.Background(), events.New(events.LogEntry, time.Now(), nil))
	require.ErrorIs(t, err, boom)
	require.False(t, secondCalled)
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	bus := events.NewBus()
	var count int
	sub, err := bus.Register(events.SubscriberFunc(func(ctx context.Context, evt events.Event) error {
		count++
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), events.New(events.RunStarted, time.Now(), nil)))
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close()) // idempotent
	require.NoError(t, bus.Publish(context.Background(), events.New(events.RunStarted, time.Now(), nil)))

	require.Equal(t, 1, count)
}

func TestRegisterRejectsNilSubscriber(t *testing.T) {
	bus := events.NewBus()
	_, err := bus.Register(nil)
	require.Error(t, err)
}

func TestSinkDropsOldestLogEntryOnOverflow(t *testing.T) {
	bus := events.NewBus()
	release := make(chan struct{})
	var received []events.Event
	var mu sync.Mutex

	_, err := bus.Register(events.SubscriberFunc(func(ctx context.Context, evt events.Event) error {
		<-release // block delivery so the queue backs up
		mu.Lock()
		received = append(received, evt)
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	sink := events.NewSink(bus, 1)

	sink.Emit(events.New(events.LogEntry, time.Now(), map[string]any{"n": 1}))
	// Give the background goroutine a chance to pick up the first event and
	// block on release, so the next two emits contend for the single slot.
	time.Sleep(10 * time.Millisecond)
	sink.Emit(events.New(events.LogEntry, time.Now(), map[string]any{"n": 2}))
	sink.Emit(events.New(events.RunCompleted, time.Now(), map[string]any{"n": 3}))

	close(release)
	sink.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	require.Equal(t, events.LogEntry, received[0].Tag)
	require.Equal(t, 1, received[0].Payload["n"])
	require.Equal(t, events.RunCompleted, received[1].Tag)
	require.Equal(t, 3, received[1].Payload["n"])
}

func TestSinkRetainsLifecycleEventsWhenNoLogEntryToEvict(t *testing.T) {
	bus := events.NewBus()
	release := make(chan struct{})
	var received []events.Event
	var mu sync.Mutex

	_, err := bus.Register(events.SubscriberFunc(func(ctx context.Context, evt events.Event) error {
		<-release
		mu.Lock()
		received = append(received, evt)
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	sink := events.NewSink(bus, 1)

	sink.Emit(events.New(events.RunStarted, time.Now(), nil))
	time.Sleep(10 * time.Millisecond)
	sink.Emit(events.New(events.CycleStarted, time.Now(), nil))
	sink.Emit(events.New(events.InferenceStarted, time.Now(), nil))

	close(release)
	sink.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 3)
}

func TestSinkEmitAfterCloseIsNoop(t *testing.T) {
	bus := events.NewBus()
	sink := events.NewSink(bus, 4)
	sink.Close()
	sink.Emit(events.New(events.LogEntry, time.Now(), nil)) // must not panic or block
}

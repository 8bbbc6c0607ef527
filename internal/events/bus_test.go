package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvWithin(t *testing.T, sub *Subscription, d time.Duration) Delivery {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	got, err := sub.Recv(ctx)
	require.NoError(t, err)
	return got
}

func TestReloadKind(t *testing.T) {
	var ev UpdateEvent = Reload{}
	assert.Equal(t, "reload", ev.Kind())
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(4)
	assert.NotPanics(t, func() { bus.Publish(Reload{}) })
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestFanOut(t *testing.T) {
	bus := NewBus(4)
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()
	defer b.Close()

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(Reload{})

	for _, sub := range []*Subscription{a, b} {
		d := recvWithin(t, sub, time.Second)
		assert.Equal(t, Reload{}, d.Event)
		assert.False(t, d.Lagged)
	}
}

func TestNoHistoricalDelivery(t *testing.T) {
	bus := NewBus(4)
	early := bus.Subscribe()
	defer early.Close()

	bus.Publish(Reload{})

	late := bus.Subscribe()
	defer late.Close()

	_, ok := late.Next()
	assert.False(t, ok)
	_, ok = early.Next()
	assert.True(t, ok)
}

func TestOverflowDropsOldestAndReportsLag(t *testing.T) {
	bus := NewBus(3)
	sub := bus.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(Reload{})
	}

	first, ok := sub.Next()
	require.True(t, ok)
	assert.True(t, first.Lagged)
	assert.Equal(t, 2, first.Missed)
	assert.Equal(t, Reload{}, first.Event)

	count := 0
	for {
		d, ok := sub.Next()
		if !ok {
			break
		}
		assert.False(t, d.Lagged)
		count++
	}
	assert.Equal(t, 3, count)
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewBus(1)
	slow := bus.Subscribe()
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			bus.Publish(Reload{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a subscriber that never reads")
	}
}

func TestRecvHonoursContext(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sub.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseUnsubscribes(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()

	sub.Close()
	sub.Close()

	assert.Equal(t, 0, bus.SubscriberCount())
	bus.Publish(Reload{})

	_, err := sub.Recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestRecvWakesOnPublish(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	defer sub.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var (
		got    Delivery
		gotErr error
	)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		got, gotErr = sub.Recv(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	bus.Publish(Reload{})
	wg.Wait()

	require.NoError(t, gotErr)
	assert.Equal(t, Reload{}, got.Event)
}

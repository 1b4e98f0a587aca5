package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := New()
	sub, err := b.Subscribe(ctx, "positions")
	require.NoError(t, err)

	other, err := b.Subscribe(ctx, "prices")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "positions", []byte(`{"event":"position_closed"}`)))

	select {
	case msg := <-sub:
		assert.JSONEq(t, `{"event":"position_closed"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("expected message on positions channel")
	}

	select {
	case msg := <-other:
		t.Fatalf("prices subscriber should not receive positions traffic, got %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeClosedOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	b := New()
	sub, err := b.Subscribe(ctx, "positions")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-sub:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("subscription channel never closed")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := New()
	_, err := b.Subscribe(ctx, "positions")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Far more messages than the subscriber buffer holds; the publisher
		// must not block even though nobody is draining.
		for i := 0; i < subscriberBuffer*3; i++ {
			_ = b.Publish(ctx, "positions", []byte("x"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

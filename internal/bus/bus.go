// Package bus provides an in-process implementation of the signal bus used
// when Redis is not configured. It mirrors the pub/sub semantics of the Redis
// bus: best-effort delivery, no replay, subscriptions bounded by their context.
package bus

import (
	"context"
	"sync"

	"github.com/drsaint1/TradeGPT/internal/domain"
)

// subscriberBuffer is the per-subscriber channel capacity. Messages beyond it
// are dropped rather than blocking the publisher.
const subscriberBuffer = 128

type subscriber struct {
	channel string
	ch      chan []byte
}

// Bus is an in-process domain.SignalBus.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Publish delivers payload to every current subscriber of channel. Slow
// subscribers lose messages instead of blocking the publisher.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		if s.channel != channel {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscription for channel. The returned channel is
// closed when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s := &subscriber{
		channel: channel,
		ch:      make(chan []byte, subscriberBuffer),
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(s.ch)
	}()

	return s.ch, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*Bus)(nil)

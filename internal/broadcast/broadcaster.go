package broadcast

import (
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind than this loses updates rather than blocking the
// state writer or its peers.
const subscriberBuffer = 16

// Subscription is one subscriber's view of the update stream.
type Subscription struct {
	ID string
	C  <-chan Envelope
}

// ChannelBroadcaster fans envelopes out to independently-lifecycled
// subscribers over buffered channels.
type ChannelBroadcaster struct {
	mu     sync.RWMutex
	subs   map[string]chan Envelope
	closed bool
}

// NewChannelBroadcaster creates a broadcaster with no subscribers.
func NewChannelBroadcaster() *ChannelBroadcaster {
	return &ChannelBroadcaster{subs: make(map[string]chan Envelope)}
}

// Subscribe registers a new subscriber and returns its stream.
func (b *ChannelBroadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Envelope)
		close(ch)
		return &Subscription{ID: "", C: ch}
	}

	id := uuid.New().String()
	ch := make(chan Envelope, subscriberBuffer)
	b.subs[id] = ch
	return &Subscription{ID: id, C: ch}
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are
// a no-op.
func (b *ChannelBroadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Broadcast delivers the envelope to every subscriber without blocking.
// A subscriber with a full buffer misses this update; delivery to the
// others proceeds regardless.
func (b *ChannelBroadcaster) Broadcast(env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- env:
		default:
			// Slow subscriber: drop rather than block
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *ChannelBroadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel and rejects future subscriptions.
func (b *ChannelBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

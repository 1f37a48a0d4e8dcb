package sink

import "sync"

// subscriberBuffer is the channel capacity handed to each subscriber.
const subscriberBuffer = 100

// Broadcaster fans measurement batches out to subscribers.
//
// Publish never blocks: a subscriber whose buffer is full misses that batch.
// Broadcaster keeps nothing once a batch has been handed out.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan []Measurement]struct{}
	closed      bool
}

// NewBroadcaster creates a [Broadcaster] with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan []Measurement]struct{})}
}

// Subscribe returns a channel that receives every subsequently published
// batch. After Close it returns an already closed channel.
//
// Caller must call [Broadcaster.Unsubscribe] when done to prevent resource leaks.
func (b *Broadcaster) Subscribe() <-chan []Measurement {
	ch := make(chan []Measurement, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (b *Broadcaster) Unsubscribe(ch <-chan []Measurement) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subCh := range b.subscribers {
		if subCh == ch {
			delete(b.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// Publish sends batch to all subscribers without blocking.
func (b *Broadcaster) Publish(batch []Measurement) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- batch:
		default:
			// subscriber is slow, drop the batch
		}
	}
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}

package pubsub

import (
	"context"
	"sync"
	"time"
)

const defaultBufferSize = 64

type subscription[T any] struct {
	ch   chan Event[T]
	keep func(T) bool
	// Publish waits for room in a reliable subscriber's ch until done is
	// closed. done is nil for a ctx that is never cancelled.
	reliable bool
	done     <-chan struct{}
}

// Broker is a generic pub/sub event broker.
// Every subscriber owns a buffered channel. A slow ordinary subscriber loses
// events rather than stalling the publisher; a reliable subscriber stalls the
// publisher instead.
type Broker[T any] struct {
	subs       map[chan Event[T]]subscription[T]
	mu         sync.RWMutex
	done       chan struct{}
	bufferSize int
}

// NewBroker creates a new broker with the default buffer size (64).
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer creates a new broker with a custom buffer size.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Broker[T]{
		subs:       make(map[chan Event[T]]subscription[T]),
		done:       make(chan struct{}),
		bufferSize: size,
	}
}

// Subscribe creates a new subscription channel receiving every event.
// The channel is automatically closed when ctx is cancelled.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	return b.SubscribeFiltered(ctx, nil)
}

// SubscribeFiltered creates a subscription that only receives payloads for
// which keep returns true. A nil keep receives everything.
func (b *Broker[T]) SubscribeFiltered(ctx context.Context, keep func(T) bool) <-chan Event[T] {
	return b.subscribe(ctx, subscription[T]{keep: keep})
}

// SubscribeReliable is SubscribeFiltered without loss: when the channel is
// full, Publish blocks until there is room or ctx is cancelled. The
// subscriber must keep reading until it cancels ctx, and must not publish on
// this broker from the goroutine that reads.
func (b *Broker[T]) SubscribeReliable(ctx context.Context, keep func(T) bool) <-chan Event[T] {
	return b.subscribe(ctx, subscription[T]{keep: keep, reliable: true, done: ctx.Done()})
}

func (b *Broker[T]) subscribe(ctx context.Context, sub subscription[T]) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	sub.ch = make(chan Event[T], b.bufferSize)
	b.subs[sub.ch] = sub

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()

		select {
		case <-b.done:
			return
		default:
		}

		delete(b.subs, sub.ch)
		close(sub.ch)
	}()

	return sub.ch
}

// Publish sends an event to all matching subscribers. Ordinary subscribers
// with a full channel miss the event; reliable ones are waited for.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.done:
		return
	default:
	}

	event := Event[T]{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	for _, sub := range b.subs {
		if sub.keep != nil && !sub.keep(payload) {
			continue
		}
		if sub.reliable {
			select {
			case sub.ch <- event:
			case <-sub.done:
			}
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Close shuts down the broker and all subscriber channels.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return
	default:
	}

	close(b.done)
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

package notify

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/google/uuid"
)

// ErrSubscriberFull is returned by Deliver when a subscription buffer is full.
var ErrSubscriberFull = stderrors.New("subscriber buffer full")

// ErrSubscriptionClosed is returned by Deliver after Close.
var ErrSubscriptionClosed = stderrors.New("subscription closed")

// DefaultBufferSize is the Events() buffer of a Subscription.
const DefaultBufferSize = 64

// Subscriber receives events from the hub. Deliver runs on the dispatch
// goroutine and must not block past ctx. A Deliver error removes the
// subscriber; if it also implements io.Closer it is closed.
type Subscriber interface {
	ID() string
	Deliver(ctx context.Context, ev Event) error
}

// Subscription is an in-process Subscriber backed by a buffered channel.
type Subscription struct {
	id      string
	channel string
	hub     *Hub
	events  chan Event

	mu     sync.RWMutex
	closed bool
}

func newSubscription(hub *Hub, channel string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	return &Subscription{
		id:      uuid.NewString(),
		channel: channel,
		hub:     hub,
		events:  make(chan Event, buffer),
	}
}

// ID implements Subscriber.
func (s *Subscription) ID() string { return s.id }

// Channel returns the subscribed channel.
func (s *Subscription) Channel() string { return s.channel }

// Events returns the delivery channel. It is closed when the subscription is
// closed or removed by the hub.
func (s *Subscription) Events() <-chan Event { return s.events }

// Deliver implements Subscriber. It never blocks; a full buffer is an error.
func (s *Subscription) Deliver(_ context.Context, ev Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSubscriptionClosed
	}
	select {
	case s.events <- ev:
		return nil
	default:
		return ErrSubscriberFull
	}
}

// Close detaches the subscription and closes Events. It is idempotent.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	s.hub.Detach(s.channel, s.id)
	return nil
}

// Package bus implements DataFold's internal message bus (spec.md §4.D): a
// synchronous, in-process, typed pub/sub linking every producer and
// consumer in the core (mutation engine, orchestrator, transform manager).
//
// The package is grounded on the teacher's pkg/events subscriber-channel
// broker, generalized from a single concrete Event type to the tagged
// fire-and-forget/request-response taxonomy named in spec.md §4.D/§6.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/datafold/datafold/pkg/types"
)

// Event is one message on the bus: a fire-and-forget notification or one
// half of a request/response pair (distinguished by CorrelationID being
// set on both the request and its response).
type Event struct {
	ID            string
	Type          string
	CorrelationID string
	Timestamp     time.Time
	Payload       any
}

type subscriber struct {
	ch     chan Event
	closed atomic.Bool
}

// Subscription is a consumer's FIFO handle on one topic. Per-subscriber
// ordering is guaranteed; ordering across subscribers on the same topic,
// or across topics, is not (spec.md §4.D).
type Subscription struct {
	bus   *Bus
	topic string
	sub   *subscriber
}

// Bus is the synchronous pub/sub core. Publishing to a topic with no
// subscribers is a no-op success; publishing to a topic where any
// subscriber has unsubscribed returns a Network-kind "send failed" error,
// though delivery to the remaining live subscribers still happens.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string][]*subscriber
	pending     map[string]chan Event
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]*subscriber),
		pending:     make(map[string]chan Event),
	}
}

// Subscribe registers a new consumer on topic with the given channel
// buffer depth.
func (b *Bus) Subscribe(topic string, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	sub := &subscriber{ch: make(chan Event, bufferSize)}

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()

	return &Subscription{bus: b, topic: topic, sub: sub}
}

// Unsubscribe stops delivery to this subscription. The next Publish on the
// topic still delivers to the other subscribers, prunes this one from the
// topic's subscriber list and returns a Network-kind "send failed" error.
func (s *Subscription) Unsubscribe() {
	s.sub.closed.Store(true)
}

// Recv waits up to timeout for the next event. It returns a Timeout-kind
// error (without removing the subscription) if none arrives in time.
func (s *Subscription) Recv(timeout time.Duration) (Event, error) {
	select {
	case evt, ok := <-s.sub.ch:
		if !ok {
			return Event{}, types.NewError(types.ErrNetwork, "subscription closed")
		}
		return evt, nil
	case <-time.After(timeout):
		return Event{}, types.NewError(types.ErrTimeout, "recv timed out")
	}
}

// Publish sends evt to every live subscriber of topic, preserving each
// subscriber's FIFO order. See Bus doc comment for the no-subscribers and
// closed-subscriber contracts.
func (b *Bus) Publish(topic string, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	evt.Type = topic

	b.mu.Lock()
	subs := b.subscribers[topic]
	if len(subs) == 0 {
		b.mu.Unlock()
		return nil
	}
	live := subs[:0:0]
	anyClosed := false
	for _, sub := range subs {
		if sub.closed.Load() {
			anyClosed = true
			continue
		}
		live = append(live, sub)
	}
	b.subscribers[topic] = live
	toSend := append([]*subscriber(nil), live...)
	b.mu.Unlock()

	for _, sub := range toSend {
		sub.ch <- evt
	}

	if anyClosed {
		return types.NewError(types.ErrNetwork, "send failed: a subscriber on topic %s is closed", topic)
	}
	return nil
}

// SubscriberCount returns the number of live subscribers on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[topic])
}

// Request publishes a request event on topic with a fresh correlation id
// and blocks until a matching Respond call arrives or timeout elapses.
func (b *Bus) Request(topic string, payload any, timeout time.Duration) (Event, error) {
	correlationID := uuid.NewString()
	replyCh := make(chan Event, 1)

	b.mu.Lock()
	b.pending[correlationID] = replyCh
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, correlationID)
		b.mu.Unlock()
	}()

	req := Event{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
		Payload:       payload,
	}
	if err := b.Publish(topic, req); err != nil {
		return Event{}, err
	}

	select {
	case resp := <-replyCh:
		return resp, nil
	case <-time.After(timeout):
		return Event{}, types.NewError(types.ErrTimeout, "request on topic %s timed out", topic)
	}
}

// Respond delivers payload to whichever Request call is waiting on
// correlationID. It is a no-op if no request is pending (the caller may
// have already timed out).
func (b *Bus) Respond(correlationID string, payload any) error {
	b.mu.Lock()
	ch, ok := b.pending[correlationID]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	resp := Event{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
		Payload:       payload,
	}
	select {
	case ch <- resp:
	default:
	}
	return nil
}

package bus

import (
	"sync"
	"time"
)

// HistoryEntry is one published event, stamped with a monotonically
// increasing sequence number for event-sourcing replay.
type HistoryEntry struct {
	Seq   uint64
	Topic string
	Event Event
}

// RetryableEvent is a publish attempt still awaiting success, tracked by
// the enhanced bus's retry queue.
type RetryableEvent struct {
	Topic      string
	Event      Event
	Attempts   int
	MaxRetries int
	LastError  string
}

// CanRetry reports whether this event has retry attempts remaining.
func (r *RetryableEvent) CanRetry() bool {
	return r.Attempts < r.MaxRetries
}

// DeadLetter is a RetryableEvent that exhausted its retry budget.
type DeadLetter struct {
	Retryable RetryableEvent
	Reason    string
}

// EnhancedBus wraps a plain Bus with bounded retry, a dead-letter queue, an
// append-only event history, and replay — the "enhanced variant" of
// spec.md §4.D. Grounded on original_source's
// message_bus/enhanced_bus.rs for the retry/DLQ/history/replay shapes.
type EnhancedBus struct {
	*Bus

	mu           sync.Mutex
	seq          uint64
	history      []HistoryEntry
	retryQueue   []RetryableEvent
	deadLetters  []DeadLetter
	backoffBase  time.Duration
}

// NewEnhanced creates an EnhancedBus with the given base back-off delay
// used between retry attempts (exponential in the attempt count).
func NewEnhanced(backoffBase time.Duration) *EnhancedBus {
	if backoffBase <= 0 {
		backoffBase = 50 * time.Millisecond
	}
	return &EnhancedBus{
		Bus:         New(),
		backoffBase: backoffBase,
	}
}

// PublishWithRetry publishes evt on topic, recording it in the event
// history regardless of outcome. On failure it is enqueued for later
// retry via ProcessRetries, up to maxRetries attempts.
func (b *EnhancedBus) PublishWithRetry(topic string, evt Event, maxRetries int) error {
	b.recordHistory(topic, evt)

	err := b.Bus.Publish(topic, evt)
	if err == nil {
		return nil
	}

	b.mu.Lock()
	b.retryQueue = append(b.retryQueue, RetryableEvent{
		Topic:      topic,
		Event:      evt,
		Attempts:   1,
		MaxRetries: maxRetries,
		LastError:  err.Error(),
	})
	b.mu.Unlock()
	return err
}

// ProcessRetries attempts to redeliver every item in the retry queue once,
// sleeping an exponential back-off between attempts. Items that exhaust
// their retry budget move to the dead-letter queue. It returns the number
// of items successfully redelivered.
func (b *EnhancedBus) ProcessRetries() int {
	b.mu.Lock()
	pending := b.retryQueue
	b.retryQueue = nil
	b.mu.Unlock()

	var remaining []RetryableEvent
	var newDeadLetters []DeadLetter
	succeeded := 0

	for _, item := range pending {
		time.Sleep(b.backoffBase * time.Duration(1<<uint(item.Attempts-1)))

		if err := b.Bus.Publish(item.Topic, item.Event); err == nil {
			succeeded++
			continue
		} else {
			item.Attempts++
			item.LastError = err.Error()
		}

		if item.CanRetry() {
			remaining = append(remaining, item)
		} else {
			newDeadLetters = append(newDeadLetters, DeadLetter{Retryable: item, Reason: "max retries exceeded"})
		}
	}

	b.mu.Lock()
	b.retryQueue = append(b.retryQueue, remaining...)
	b.deadLetters = append(b.deadLetters, newDeadLetters...)
	b.mu.Unlock()

	return succeeded
}

// DeadLetters returns a snapshot of the dead-letter queue.
func (b *EnhancedBus) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DeadLetter(nil), b.deadLetters...)
}

func (b *EnhancedBus) recordHistory(topic string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.history = append(b.history, HistoryEntry{Seq: b.seq, Topic: topic, Event: evt})
}

// History returns the full event history in publish order.
func (b *EnhancedBus) History() []HistoryEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]HistoryEntry(nil), b.history...)
}

// ReplaySince re-publishes, in sequence order, every history entry with a
// sequence number strictly greater than since, to whatever subscribers are
// currently live. It returns the entries it replayed.
func (b *EnhancedBus) ReplaySince(since uint64) []HistoryEntry {
	b.mu.Lock()
	var toReplay []HistoryEntry
	for _, h := range b.history {
		if h.Seq > since {
			toReplay = append(toReplay, h)
		}
	}
	b.mu.Unlock()

	for _, h := range toReplay {
		b.Bus.Publish(h.Topic, h.Event)
	}
	return toReplay
}

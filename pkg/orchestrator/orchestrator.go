// Package orchestrator implements the transform orchestrator (spec.md
// §4.K): a persisted FIFO queue with dedup on (transform_id,
// mutation_hash), a background worker that executes ready transforms, and
// a retry-then-dead-letter state machine for failures.
//
// Grounded on spec.md §4.K and original_source's
// fold_db_core/orchestration/queue_manager.rs for the queued/processed
// dedup-set shape; the background worker run-loop polls the queue,
// sleeping briefly while it is empty, and stops when stopCh is closed.
package orchestrator

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/datafold/datafold/pkg/bus"
	"github.com/datafold/datafold/pkg/storage"
	"github.com/datafold/datafold/pkg/types"
)

// Executor runs a transform by id and returns its result, as implemented
// by pkg/transform.Manager. Injected to avoid an import cycle (the
// transform manager's mutation writes flow back through the bus this
// package also subscribes to).
type Executor interface {
	Execute(transformID string) (any, error)
}

// TriggerLookup resolves which transforms depend on a given field key, as
// implemented by pkg/transform.Manager.
type TriggerLookup interface {
	TriggeredBy(fieldKey string) []string
}

// queueState is the persisted snapshot of the orchestrator's queue and
// dedup sets (spec.md §4.K).
type queueState struct {
	Queue     []types.QueueItem          `json:"queue"`
	Queued    map[string]bool            `json:"queued"`
	Processed map[string]bool            `json:"processed"`
	Attempts  map[string]int             `json:"attempts"`
	States    map[string]types.QueueItemState `json:"states"`
}

// Orchestrator drives transform execution from FieldValueSet events.
type Orchestrator struct {
	db       *storage.DbOperations
	bus      *bus.Bus
	executor Executor
	triggers TriggerLookup
	log      zerolog.Logger

	maxRetries int
	retryDelay time.Duration

	mu    sync.Mutex
	state queueState

	sub     *bus.Subscription
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithMaxRetries overrides the default retry budget (3) before an item
// moves to the dead-letter queue.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) { o.maxRetries = n }
}

// WithRetryDelay overrides the default delay (100ms) the worker waits
// before retrying a Failed item still under its retry budget.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryDelay = d }
}

// New creates an Orchestrator. Call Load to restore persisted queue state
// before Start.
func New(db *storage.DbOperations, b *bus.Bus, executor Executor, triggers TriggerLookup, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		db:       db,
		bus:      b,
		executor: executor,
		triggers: triggers,
		log:      log.With().Str("component", "orchestrator").Logger(),
		maxRetries: 3,
		retryDelay: 100 * time.Millisecond,
		state: queueState{
			Queued:    map[string]bool{},
			Processed: map[string]bool{},
			Attempts:  map[string]int{},
			States:    map[string]types.QueueItemState{},
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

const queueStateKey = "queue_state"

// Load restores persisted queue state, if any.
func (o *Orchestrator) Load() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var st queueState
	found, err := o.db.Get(storage.NamespaceOrchestrator, queueStateKey, &st)
	if err != nil {
		return types.WrapError(types.ErrStorage, err, "failed to load orchestrator queue state")
	}
	if found {
		if st.Queued == nil {
			st.Queued = map[string]bool{}
		}
		if st.Processed == nil {
			st.Processed = map[string]bool{}
		}
		if st.Attempts == nil {
			st.Attempts = map[string]int{}
		}
		if st.States == nil {
			st.States = map[string]types.QueueItemState{}
		}
		o.state = st
	}
	return nil
}

func (o *Orchestrator) persistLocked() error {
	if err := o.db.Put(storage.NamespaceOrchestrator, queueStateKey, o.state); err != nil {
		return types.WrapError(types.ErrStorage, err, "failed to persist orchestrator queue state")
	}
	return nil
}

// AddTask is the mutation.TaskNotifier hook: it resolves which transforms
// trigger on (schemaName, fieldName) and enqueues each, deduplicated on
// (transform_id, mutation_hash).
func (o *Orchestrator) AddTask(schemaName, fieldName, mutationHash string) error {
	fieldKey := schemaName + "." + fieldName
	for _, transformID := range o.triggers.TriggeredBy(fieldKey) {
		if err := o.addItem(transformID, mutationHash); err != nil {
			return err
		}
	}
	return nil
}

// addItem enqueues (transformID, mutationHash) unless already queued or
// already processed to completion, enforcing the at-most-once dedup key
// of spec.md §8 invariant 3 for the item's entire lifetime, not just
// while it sits in the queue.
func (o *Orchestrator) addItem(transformID, mutationHash string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	item := types.QueueItem{TransformID: transformID, MutationHash: mutationHash}
	key := item.Key()
	if o.state.Queued[key] || o.state.Processed[key] {
		return nil
	}

	o.state.Queue = append(o.state.Queue, item)
	o.state.Queued[key] = true
	o.state.States[key] = types.QueueItemQueued
	return o.persistLocked()
}

func (o *Orchestrator) popItem() (types.QueueItem, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.state.Queue) == 0 {
		return types.QueueItem{}, false, nil
	}
	item := o.state.Queue[0]
	o.state.Queue = o.state.Queue[1:]
	key := item.Key()
	delete(o.state.Queued, key)
	o.state.States[key] = types.QueueItemRunning
	if err := o.persistLocked(); err != nil {
		return types.QueueItem{}, false, err
	}
	return item, true, nil
}

// Start subscribes to FieldValueSet and launches the background worker.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	o.mu.Unlock()

	o.sub = o.bus.Subscribe(bus.TopicFieldValueSet, 256)

	go o.listenLoop()
	go o.workerLoop()
}

// Stop cooperatively drains the queue and returns once the worker has
// exited (spec.md §4.K's cancellation contract).
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	stopCh := o.stopCh
	doneCh := o.doneCh
	o.mu.Unlock()

	if o.sub != nil {
		o.sub.Unsubscribe()
	}
	close(stopCh)
	<-doneCh
}

func (o *Orchestrator) listenLoop() {
	for {
		evt, err := o.sub.Recv(200 * time.Millisecond)
		select {
		case <-o.stopCh:
			return
		default:
		}
		if err != nil {
			continue
		}
		payload, ok := evt.Payload.(bus.FieldValueSetPayload)
		if !ok {
			continue
		}
		if err := o.AddTask(payload.SchemaName, payload.FieldName, payload.MutationHash); err != nil {
			o.log.Error().Err(err).Str("schema", payload.SchemaName).Str("field", payload.FieldName).Msg("failed to enqueue transform task")
		}
	}
}

func (o *Orchestrator) workerLoop() {
	defer close(o.doneCh)
	for {
		select {
		case <-o.stopCh:
			for {
				item, ok, err := o.popItem()
				if err != nil || !ok {
					return
				}
				o.runItem(item)
			}
		default:
		}

		item, ok, err := o.popItem()
		if err != nil {
			o.log.Error().Err(err).Msg("failed to pop orchestrator queue item")
			continue
		}
		if !ok {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		o.runItem(item)
	}
}

func (o *Orchestrator) runItem(item types.QueueItem) {
	key := item.Key()

	_, err := o.executor.Execute(item.TransformID)

	o.mu.Lock()
	defer o.mu.Unlock()

	if err == nil {
		o.state.States[key] = types.QueueItemSucceeded
		o.state.Processed[key] = true
		o.persistLocked()
		return
	}

	o.state.Attempts[key]++
	if o.state.Attempts[key] >= o.maxRetries {
		o.state.States[key] = types.QueueItemDeadLetter
		o.log.Warn().Str("transform_id", item.TransformID).Str("key", key).Msg("transform moved to dead-letter queue")
		o.persistLocked()
		return
	}

	o.state.States[key] = types.QueueItemFailed
	o.log.Warn().Err(err).Str("transform_id", item.TransformID).Int("attempt", o.state.Attempts[key]).Msg("transform execution failed, retrying")
	o.persistLocked()

	go func() {
		time.Sleep(o.retryDelay)
		o.mu.Lock()
		o.state.Queue = append(o.state.Queue, item)
		o.state.Queued[key] = true
		o.state.States[key] = types.QueueItemQueued
		o.persistLocked()
		o.mu.Unlock()
	}()
}

// StateOf returns the current state machine position for (transformID,
// mutationHash), or ("", false) if unknown.
func (o *Orchestrator) StateOf(transformID, mutationHash string) (types.QueueItemState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := types.QueueItem{TransformID: transformID, MutationHash: mutationHash}.Key()
	st, ok := o.state.States[key]
	return st, ok
}

// QueueLen returns the number of items currently queued (not yet popped).
func (o *Orchestrator) QueueLen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.state.Queue)
}

package orchestrator

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/datafold/datafold/pkg/bus"
	"github.com/datafold/datafold/pkg/storage"
	"github.com/datafold/datafold/pkg/types"
)

type fakeTriggers struct {
	byField map[string][]string
}

func (f *fakeTriggers) TriggeredBy(fieldKey string) []string {
	return f.byField[fieldKey]
}

type fakeExecutor struct {
	mu        sync.Mutex
	execCount map[string]int
	failUntil map[string]int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{execCount: map[string]int{}, failUntil: map[string]int{}}
}

func (f *fakeExecutor) Execute(transformID string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execCount[transformID]++
	if f.execCount[transformID] <= f.failUntil[transformID] {
		return nil, types.NewError(types.ErrEval, "forced failure for %s", transformID)
	}
	return "ok", nil
}

func (f *fakeExecutor) count(transformID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execCount[transformID]
}

func newTestOrchestrator(t *testing.T, triggers *fakeTriggers, executor Executor) (*Orchestrator, *bus.Bus) {
	t.Helper()
	dir, err := os.MkdirTemp("", "datafold-orchestrator-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	b := bus.New()
	o := New(db, b, executor, triggers, zerolog.Nop(), WithRetryDelay(5*time.Millisecond))
	require.NoError(t, o.Load())
	return o, b
}

func TestAddItemDedupsSameKey(t *testing.T) {
	triggers := &fakeTriggers{byField: map[string][]string{"TransformBase.value1": {"t1"}}}
	o, _ := newTestOrchestrator(t, triggers, newFakeExecutor())

	require.NoError(t, o.addItem("t1", "hash-a"))
	require.NoError(t, o.addItem("t1", "hash-a"))
	require.Equal(t, 1, o.QueueLen())

	require.NoError(t, o.addItem("t1", "hash-b"))
	require.Equal(t, 2, o.QueueLen())
}

// TestCascadeExecutesEnqueuedTransform mirrors scenario S4's hand-off: a
// FieldValueSet on the bus triggers enqueue and execution.
func TestCascadeExecutesEnqueuedTransform(t *testing.T) {
	triggers := &fakeTriggers{byField: map[string][]string{"TransformBase.value1": {"t1"}}}
	executor := newFakeExecutor()
	o, b := newTestOrchestrator(t, triggers, executor)

	o.Start()
	defer o.Stop()

	b.Publish(bus.TopicFieldValueSet, bus.Event{
		Payload: bus.FieldValueSetPayload{SchemaName: "TransformBase", FieldName: "value1", MutationHash: "hash-a"},
	})

	require.Eventually(t, func() bool {
		return executor.count("t1") == 1
	}, time.Second, 5*time.Millisecond)
}

// TestDedupUnderRetry mirrors scenario S5: the same mutation hash
// submitted twice in rapid succession yields exactly one execution.
func TestDedupUnderRetry(t *testing.T) {
	triggers := &fakeTriggers{byField: map[string][]string{"TransformBase.value1": {"t1"}}}
	executor := newFakeExecutor()
	o, b := newTestOrchestrator(t, triggers, executor)

	o.Start()
	defer o.Stop()

	for i := 0; i < 2; i++ {
		b.Publish(bus.TopicFieldValueSet, bus.Event{
			Payload: bus.FieldValueSetPayload{SchemaName: "TransformBase", FieldName: "value1", MutationHash: "hash-a"},
		})
	}

	require.Eventually(t, func() bool {
		return executor.count("t1") >= 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, executor.count("t1"))
}

// TestAddItemSkipsAlreadyProcessedKey mirrors spec.md §8 invariant 3's
// at-most-once guarantee for the item's entire lifetime: re-enqueuing a
// (transform_id, mutation_hash) pair that has already run to completion
// must not run it again, even once it has left the Queued set.
func TestAddItemSkipsAlreadyProcessedKey(t *testing.T) {
	triggers := &fakeTriggers{byField: map[string][]string{"TransformBase.value1": {"t1"}}}
	executor := newFakeExecutor()
	o, b := newTestOrchestrator(t, triggers, executor)

	o.Start()
	defer o.Stop()

	b.Publish(bus.TopicFieldValueSet, bus.Event{
		Payload: bus.FieldValueSetPayload{SchemaName: "TransformBase", FieldName: "value1", MutationHash: "hash-a"},
	})

	require.Eventually(t, func() bool {
		st, ok := o.StateOf("t1", "hash-a")
		return ok && st == types.QueueItemSucceeded
	}, time.Second, 5*time.Millisecond)

	b.Publish(bus.TopicFieldValueSet, bus.Event{
		Payload: bus.FieldValueSetPayload{SchemaName: "TransformBase", FieldName: "value1", MutationHash: "hash-a"},
	})

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, executor.count("t1"))
	require.Equal(t, 0, o.QueueLen())
}

func TestFailedItemRetriesThenDeadLetters(t *testing.T) {
	triggers := &fakeTriggers{byField: map[string][]string{}}
	executor := newFakeExecutor()
	executor.failUntil["t1"] = 10 // always fails within the test's retry budget

	var execCount int32
	countingExecutor := executorFunc(func(transformID string) (any, error) {
		atomic.AddInt32(&execCount, 1)
		return executor.Execute(transformID)
	})

	o, _ := newTestOrchestrator(t, triggers, countingExecutor)
	o.maxRetries = 3

	require.NoError(t, o.addItem("t1", "hash-a"))

	o.Start()
	defer o.Stop()

	require.Eventually(t, func() bool {
		st, ok := o.StateOf("t1", "hash-a")
		return ok && st == types.QueueItemDeadLetter
	}, 2*time.Second, 10*time.Millisecond)

	require.GreaterOrEqual(t, int(atomic.LoadInt32(&execCount)), 3)
}

type executorFunc func(transformID string) (any, error)

func (f executorFunc) Execute(transformID string) (any, error) {
	return f(transformID)
}

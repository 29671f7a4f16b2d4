package metrics

import (
	"time"

	"github.com/datafold/datafold/pkg/atom"
	"github.com/datafold/datafold/pkg/atomref"
	"github.com/datafold/datafold/pkg/bus"
	"github.com/datafold/datafold/pkg/orchestrator"
	"github.com/datafold/datafold/pkg/schema"
)

// Collector periodically samples gauge-shaped state (atom counts, ref
// counts, schema lifecycle, queue depth, bus subscriber counts) from the
// core components and publishes them as Prometheus gauges.
type Collector struct {
	atoms        *atom.Store
	refs         *atomref.Store
	schemas      *schema.Manager
	orchestrator *orchestrator.Orchestrator
	bus          *bus.Bus

	stopCh chan struct{}
}

// NewCollector creates a metrics Collector over the given core components.
func NewCollector(atoms *atom.Store, refs *atomref.Store, schemas *schema.Manager, orch *orchestrator.Orchestrator, b *bus.Bus) *Collector {
	return &Collector{
		atoms:        atoms,
		refs:         refs,
		schemas:      schemas,
		orchestrator: orch,
		bus:          b,
		stopCh:       make(chan struct{}),
	}
}

// Start begins periodic collection on a 15 second tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts periodic collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectAtomMetrics()
	c.collectAtomRefMetrics()
	c.collectSchemaMetrics()
	c.collectOrchestratorMetrics()
	c.collectBusMetrics()
}

func (c *Collector) collectAtomMetrics() {
	counts, err := c.atoms.CountByStatus()
	if err != nil {
		return
	}
	total := 0
	for status, count := range counts {
		AtomsByStatus.WithLabelValues(string(status)).Set(float64(count))
		total += count
	}
	AtomsTotal.Set(float64(total))
}

func (c *Collector) collectAtomRefMetrics() {
	counts, err := c.refs.CountByKind()
	if err != nil {
		return
	}
	for kind, count := range counts {
		AtomRefsTotal.WithLabelValues(string(kind)).Set(float64(count))
	}
}

func (c *Collector) collectSchemaMetrics() {
	states := c.schemas.States()
	stateCounts := map[string]int{}
	for _, st := range states {
		stateCounts[string(st)]++
	}
	for state, count := range stateCounts {
		SchemasTotal.WithLabelValues(state).Set(float64(count))
	}
}

func (c *Collector) collectOrchestratorMetrics() {
	if c.orchestrator == nil {
		return
	}
	OrchestratorQueueDepth.Set(float64(c.orchestrator.QueueLen()))
}

func (c *Collector) collectBusMetrics() {
	for _, topic := range []string{
		bus.TopicFieldValueSet,
		bus.TopicAtomCreated,
		bus.TopicTransformTriggered,
		bus.TopicTransformExecuted,
		bus.TopicMutationExecuted,
		bus.TopicQueryExecuted,
	} {
		BusSubscribersTotal.WithLabelValues(topic).Set(float64(c.bus.SubscriberCount(topic)))
	}
}

/*
Package metrics provides Prometheus metrics collection and exposition for
the DataFold core.

Metrics are registered at package init against the default Prometheus
registry and exposed via Handler() for scraping.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│  Prometheus Registry (MustRegister at package init)       │
	│                                                            │
	│  Metric Categories                                        │
	│    Atom / AtomRef: counts by status/kind                 │
	│    Schema: counts by lifecycle state                     │
	│    Mutation: applied count, denials, duration             │
	│    Query: executed count, duration                       │
	│    Transform: execution count/outcome, duration           │
	│    Orchestrator: queue depth, retries, dead letters        │
	│    Bus: events published, subscribers, dead letters        │
	│    Security: signed messages verified, registered keys     │
	│                                                            │
	│  HTTP exposition: /metrics via Handler()                  │
	└────────────────────────────────────────────────────────────┘

# Collector

Collector periodically samples gauge-shaped state (atom/ref counts,
schema lifecycle state, orchestrator queue depth, bus subscriber counts)
from the core components on a fixed tick, since those values are not
naturally observed at the point of a single operation the way mutation
duration or transform outcome are.

# Health

HealthChecker (health.go) tracks a simple up/down status per named
component, independent of the Prometheus metrics above, and exposes it
via HTTP for liveness/readiness probes.
*/
package metrics

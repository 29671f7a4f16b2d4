/*
Package storage provides BoltDB-backed key-value persistence for DataFold's
core: atoms, atom-refs, schemas, transforms, and the orchestrator queue.

# Architecture

DataFold uses BoltDB (bbolt) for embedded, transactional storage:

	┌─────────────────── BOLTDB STORAGE ───────────────────┐
	│  DbOperations                                         │
	│   - File: <dataDir>/datafold.db                       │
	│   - Format: B+tree with MVCC                          │
	│   - One bucket per Namespace (atom, ref, schema, ...) │
	│   - Values: JSON-serialized, one key per entity       │
	└────────────────────────────────────────────────────────┘

Reads use db.View (concurrent, snapshot-isolated); writes use db.Update
(serialized, atomic, fsync on commit). A write to a single key is atomic;
an operation that must touch more than one bucket (e.g. advancing an
AtomRef after appending an Atom) is NOT atomic across the two — see
spec.md §7 for how callers are expected to tolerate that.

# Namespaces

  - atom: content-addressed Atom records, keyed by uuid
  - ref: AtomRef records, keyed by uuid
  - schema / schema_state: interpreted schema definitions and their
    Available/Approved/Blocked state, keyed by schema name
  - transform / transform_mapping: TransformRegistrations and the
    field→{transform_id} secondary index
  - field_ref: the (schema, field) → ref_atom_uuid runtime mapping
    (spec.md §9's re-architecture of "ref-atom-uuid on field definition")
  - orchestrator_queue: persisted queue/dedup/processed state
  - crypto_meta, security_keys, security_nonces: security core's
    master-key salt, sealed public-key registry, and replay-rejection
    nonce log

# Ordering and scans

Keys within a namespace are iterated by bbolt's cursor in ascending
lexicographic byte order, so ScanPrefix and ScanAll return entries in that
order with no secondary sort. Range-ref filters (pkg/atomref) do not scan
storage; they sort the keys of the range AtomRef's entry map in memory.
*/
package storage

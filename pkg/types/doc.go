/*
Package types defines the core data structures shared across DataFold's
core packages: atoms, atom-refs, schemas, fields, mutations, queries, and
transforms. These types are serialized to/from the embedded KV store
(pkg/storage) and are the wire shapes described in spec.md §6.

# Architecture

The types package is the foundation of DataFold's data model. It defines:

  - Atom identity and status (Atom, AtomStatus)
  - The mutable pointer layer over atoms (AtomRef, RefKind)
  - Per-field read/write permission policy (PermissionPolicy, TrustRequirement, AllowList)
  - Schema shape and lifecycle (Schema, Field, FieldType, SchemaState)
  - Mutation and query request shapes (Mutation, MutationType, Query, QueryFilter)
  - Transform definitions and orchestrator queue state (Transform, TransformRegistration, QueueItem, QueueItemState)
  - The error kind taxonomy (Error, ErrorKind) — see errors.go

# Core Types

Atom layer:
  - Atom: one immutable value cell, chained to its predecessor via PrevAtomUUID
  - AtomStatus: Active or Deleted
  - AtomRef: the only mutable pointer into the atom chain (single/collection/range)
  - RefKind: Single, Collection, or Range

Schema:
  - Schema: interpreted, in-memory form of a schema definition
  - Field: one field's type, permission policy, and current ref_atom_uuid
  - FieldType: Single, Collection, or Range
  - SchemaState: Available, Approved, or Blocked

Permissions:
  - PermissionPolicy: read/write TrustRequirement plus an optional AllowList
  - TrustRequirement: either NoRequirement or a maximum trust Distance
  - AllowList: an explicit set of permitted public keys

Mutation and query:
  - Mutation: schema name, mutation kind, field values, and the requesting pub key
  - MutationType: Create/Update/Delete/AddToCollection/UpdateToCollection/DeleteFromCollection
  - Query: schema name, requested fields, pub key, and an optional range filter
  - QueryFilter / FilterExpr (filter.go): the range-key filter variants

Transform and orchestration:
  - Transform / TransformRegistration: a registered DSL expression and its trigger fields
  - QueueItem / QueueItemState: one pending or historical transform invocation

# Usage

Defining a schema field with a distance-based write policy:

	field := types.Field{
		Name:      "email",
		FieldType: types.FieldTypeSingle,
		Permissions: types.PermissionPolicy{
			ReadPolicy:  types.TrustRequirement{NoRequirement: true},
			WritePolicy: types.TrustRequirement{Distance: intPtr(1)},
		},
	}

Building a mutation:

	m := types.Mutation{
		SchemaName:   "User",
		MutationType: types.MutationType{Kind: types.MutationUpdate},
		FieldsAndValues: map[string]json.RawMessage{
			"email": json.RawMessage(`"alice@example.com"`),
		},
		PubKey:        callerPubKey,
		TrustDistance: 0,
	}

# Design patterns

Enumeration pattern: every enum is a typed string constant, e.g.

	type AtomStatus string
	const (
	    AtomStatusActive  AtomStatus = "active"
	    AtomStatusDeleted AtomStatus = "deleted"
	)

Optional fields use pointers (Field.RefAtomUUID is a string, empty meaning
unset; TrustRequirement.Distance is a *int, nil meaning no distance cap).

# Thread safety

Types in this package carry no internal synchronization; callers (the
schema manager, mutation engine, and orchestrator) own their own locking
around any shared, mutable collection of these values.

# See also

  - pkg/storage for the persistence layer these types are marshaled into
  - pkg/schema, pkg/mutation, pkg/query, pkg/transform, pkg/orchestrator
    for the components that construct and interpret them
  - errors.go and filter.go in this package for the Error/ErrorKind
    taxonomy and the FilterExpr range-filter shape
*/
package types

// Package schema implements the schema manager (spec.md §4.E): it loads
// schema definitions from disk, interprets them into the canonical
// in-memory form, persists that form plus a lifecycle state per schema,
// and owns the one legitimate mutator of a field's ref designator.
//
// Grounded on the teacher's apply.go convention for reading declarative
// YAML/JSON definitions from disk and persisting an interpreted form, and
// on original_source's schema/discovery.rs for the two-directory
// precedence rule.
package schema

import (
	"encoding/json"
	"sync"

	"github.com/datafold/datafold/pkg/storage"
	"github.com/datafold/datafold/pkg/types"
)

// Manager owns schema interpretation, lifecycle state, and the
// (schema, field) -> ref_uuid runtime mapping. Per spec.md §9, the
// mapping lives in its own KV namespace so the on-disk schema definition
// stays pure compile-time shape.
type Manager struct {
	db *storage.DbOperations

	mu      sync.RWMutex
	schemas map[string]*types.Schema
	states  map[string]types.SchemaState
}

// New creates a Manager backed by db.
func New(db *storage.DbOperations) *Manager {
	return &Manager{
		db:      db,
		schemas: map[string]*types.Schema{},
		states:  map[string]types.SchemaState{},
	}
}

// Load reconstructs the manager's view of every persisted schema,
// restoring each schema's lifecycle state and re-attaching its
// field_ref:<schema>.<field> runtime mappings (spec.md §9's
// "re-discovery preserves persisted state").
func (m *Manager) Load() error {
	entries, err := m.db.ScanAll(storage.NamespaceSchema)
	if err != nil {
		return types.WrapError(types.ErrStorage, err, "failed to scan schemas")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		var s types.Schema
		if err := json.Unmarshal(e.Value, &s); err != nil {
			return types.WrapError(types.ErrSerialization, err, "failed to decode schema %s", e.Key)
		}

		var state types.SchemaState
		found, err := m.db.Get(storage.NamespaceSchemaState, e.Key, &state)
		if err != nil {
			return types.WrapError(types.ErrStorage, err, "failed to read schema state for %s", e.Key)
		}
		if !found {
			state = types.SchemaAvailable
		}

		for name, f := range s.Fields {
			var refUUID string
			if found, err := m.db.Get(storage.NamespaceFieldRef, fieldRefKey(s.Name, name), &refUUID); err != nil {
				return types.WrapError(types.ErrStorage, err, "failed to read field ref for %s.%s", s.Name, name)
			} else if found {
				f.RefAtomUUID = refUUID
				s.Fields[name] = f
			}
		}

		m.schemas[e.Key] = &s
		m.states[e.Key] = state
	}
	return nil
}

// Register interprets and persists a schema definition loaded from disk,
// defaulting its lifecycle state to Available unless already known and
// re-attaching any persisted field_ref mappings of its fields. It is the
// target of LoadDirectories' two-directory precedence pass.
func (m *Manager) Register(s types.Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.Put(storage.NamespaceSchema, s.Name, s); err != nil {
		return types.WrapError(types.ErrStorage, err, "failed to persist schema %s", s.Name)
	}

	if _, ok := m.states[s.Name]; !ok {
		if err := m.db.Put(storage.NamespaceSchemaState, s.Name, types.SchemaAvailable); err != nil {
			return types.WrapError(types.ErrStorage, err, "failed to persist schema state for %s", s.Name)
		}
		m.states[s.Name] = types.SchemaAvailable
	}

	copyOf := s
	if s.Fields != nil {
		copyOf.Fields = make(map[string]types.Field, len(s.Fields))
		for name, f := range s.Fields {
			var refUUID string
			if found, err := m.db.Get(storage.NamespaceFieldRef, fieldRefKey(s.Name, name), &refUUID); err != nil {
				return types.WrapError(types.ErrStorage, err, "failed to read field ref for %s.%s", s.Name, name)
			} else if found {
				f.RefAtomUUID = refUUID
			}
			copyOf.Fields[name] = f
		}
	}
	m.schemas[s.Name] = &copyOf
	return nil
}

// Get returns the interpreted schema named name.
func (m *Manager) Get(name string) (*types.Schema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schemas[name]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "schema %s not found", name)
	}
	return s, nil
}

// State returns the current lifecycle state of schema name.
func (m *Manager) State(name string) (types.SchemaState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[name]
	if !ok {
		return "", types.NewError(types.ErrNotFound, "schema %s not found", name)
	}
	return st, nil
}

// Approve promotes schema name from Available to Approved. A schema must
// be Approved before it accepts mutations or queries (spec.md §4.E).
func (m *Manager) Approve(name string) error {
	return m.setState(name, types.SchemaApproved)
}

// Block disables schema name, rejecting future mutations and queries
// against it regardless of prior state.
func (m *Manager) Block(name string) error {
	return m.setState(name, types.SchemaBlocked)
}

func (m *Manager) setState(name string, state types.SchemaState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schemas[name]; !ok {
		return types.NewError(types.ErrNotFound, "schema %s not found", name)
	}
	if err := m.db.Put(storage.NamespaceSchemaState, name, state); err != nil {
		return types.WrapError(types.ErrStorage, err, "failed to persist schema state for %s", name)
	}
	m.states[name] = state
	return nil
}

// RequireApproved returns the schema if it exists and is in the Approved
// state. An unknown schema yields a NotFound-kind error and a schema in any
// other state an InvalidPermission-kind error; the mutation and query
// engines call this on every request (spec.md §4.G/§4.H).
func (m *Manager) RequireApproved(name string) (*types.Schema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schemas[name]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "schema %s not found", name)
	}
	if m.states[name] != types.SchemaApproved {
		return nil, types.NewError(types.ErrInvalidPermission, "schema %s is not approved", name)
	}
	return s, nil
}

// States returns a snapshot of every known schema's lifecycle state, for
// metrics reporting.
func (m *Manager) States() map[string]types.SchemaState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]types.SchemaState, len(m.states))
	for name, st := range m.states {
		out[name] = st
	}
	return out
}

// FieldRefAtomUUID returns the current ref uuid bound to (schema, field),
// or "" if the field has never been written.
func (m *Manager) FieldRefAtomUUID(schemaName, fieldName string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schemas[schemaName]
	if !ok {
		return "", types.NewError(types.ErrNotFound, "schema %s not found", schemaName)
	}
	f, ok := s.Fields[fieldName]
	if !ok {
		return "", types.NewError(types.ErrNotFound, "field %s.%s not found", schemaName, fieldName)
	}
	return f.RefAtomUUID, nil
}

// UpdateFieldRefAtomUUID binds (schema, field) to refUUID. It is called
// exactly once per field by the mutation engine, the first time that
// field is ever written (spec.md §4.E: "the only legitimate mutator of a
// field's ref designator").
func (m *Manager) UpdateFieldRefAtomUUID(schemaName, fieldName, refUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schemas[schemaName]
	if !ok {
		return types.NewError(types.ErrNotFound, "schema %s not found", schemaName)
	}
	f, ok := s.Fields[fieldName]
	if !ok {
		return types.NewError(types.ErrNotFound, "field %s.%s not found", schemaName, fieldName)
	}

	if err := m.db.Put(storage.NamespaceFieldRef, fieldRefKey(schemaName, fieldName), refUUID); err != nil {
		return types.WrapError(types.ErrStorage, err, "failed to persist field ref for %s.%s", schemaName, fieldName)
	}

	f.RefAtomUUID = refUUID
	s.Fields[fieldName] = f
	return nil
}

func fieldRefKey(schemaName, fieldName string) string {
	return "field_ref:" + schemaName + "." + fieldName
}

// Package transform implements the transform manager (spec.md §4.J): it
// persists parsed transforms, indexes them by the field they depend on,
// and executes one on demand by reading its inputs through the resolver,
// evaluating its DSL body, and writing the result through the mutation
// engine.
package transform

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/datafold/datafold/pkg/bus"
	"github.com/datafold/datafold/pkg/mutation"
	"github.com/datafold/datafold/pkg/resolver"
	"github.com/datafold/datafold/pkg/storage"
	"github.com/datafold/datafold/pkg/transform/dsl"
	"github.com/datafold/datafold/pkg/types"
)

// Manager owns the transform registry, the field_key -> {transform_id}
// trigger index, and on-demand execution. Registrations and the trigger
// index are persisted under storage.NamespaceTransform/
// NamespaceTransformMapping (spec.md §4.J); Load reconstructs the
// in-memory indexes (including re-parsing each DSL body, since *dsl.Expr
// itself isn't serialized) on process start.
type Manager struct {
	db       *storage.DbOperations
	resolver *resolver.Resolver
	mutation *mutation.Engine
	bus      *bus.Bus

	mu           sync.RWMutex
	transforms   map[string]*types.TransformRegistration
	parsed       map[string]*dsl.Expr
	triggerIndex map[string][]string // "schema.field" -> transform ids
	outputIndex  map[string]string   // "schema.field" (output) -> transform id
}

// New creates a transform Manager backed by db.
func New(db *storage.DbOperations, r *resolver.Resolver, m *mutation.Engine, b *bus.Bus) *Manager {
	return &Manager{
		db:           db,
		resolver:     r,
		mutation:     m,
		bus:          b,
		transforms:   map[string]*types.TransformRegistration{},
		parsed:       map[string]*dsl.Expr{},
		triggerIndex: map[string][]string{},
		outputIndex:  map[string]string{},
	}
}

// Load reconstructs the manager's view of every persisted
// TransformRegistration, re-parsing each one's DSL body and rebuilding the
// trigger and output indexes. Called once at startup, before any
// Register/Execute call.
func (m *Manager) Load() error {
	entries, err := m.db.ScanAll(storage.NamespaceTransform)
	if err != nil {
		return types.WrapError(types.ErrStorage, err, "failed to scan transforms")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		var reg types.TransformRegistration
		if err := json.Unmarshal(e.Value, &reg); err != nil {
			return types.WrapError(types.ErrSerialization, err, "failed to decode transform %s", e.Key)
		}
		expr, err := dsl.Parse(reg.Transform.LogicSource)
		if err != nil {
			return types.WrapError(types.ErrInvalidData, err, "failed to reparse transform %s", reg.TransformID)
		}

		regCopy := reg
		m.transforms[reg.TransformID] = &regCopy
		m.parsed[reg.TransformID] = expr
		for _, fieldKey := range reg.TriggerFields {
			m.triggerIndex[fieldKey] = append(m.triggerIndex[fieldKey], reg.TransformID)
		}
		m.outputIndex[reg.Transform.OutputKey()] = reg.TransformID
	}
	return nil
}

// Register parses t.LogicSource, computes its static input dependencies
// (overriding any caller-supplied InputDependencies so the declared set is
// always the deterministic one spec.md §4.I requires), persists the
// registration, and adds it to the trigger index under each dependency's
// field key. It returns the generated transform id.
func (m *Manager) Register(t types.Transform) (string, error) {
	expr, err := dsl.Parse(t.LogicSource)
	if err != nil {
		return "", err
	}
	t.InputDependencies = dsl.Dependencies(expr)

	id := uuid.NewString()
	reg := &types.TransformRegistration{
		TransformID:   id,
		Transform:     t,
		TriggerFields: t.InputDependencies,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.Put(storage.NamespaceTransform, id, reg); err != nil {
		return "", types.WrapError(types.ErrStorage, err, "failed to persist transform %s", id)
	}
	for _, fieldKey := range t.InputDependencies {
		ids := append(append([]string(nil), m.triggerIndex[fieldKey]...), id)
		if err := m.db.Put(storage.NamespaceTransformMapping, fieldKey, ids); err != nil {
			return "", types.WrapError(types.ErrStorage, err, "failed to persist trigger mapping for %s", fieldKey)
		}
	}

	m.transforms[id] = reg
	m.parsed[id] = expr
	for _, fieldKey := range t.InputDependencies {
		m.triggerIndex[fieldKey] = append(m.triggerIndex[fieldKey], id)
	}
	m.outputIndex[t.OutputKey()] = id
	return id, nil
}

// ByOutput returns the transform registration that writes schemaName.fieldName,
// if one is already registered. Used to make expanding a field's embedded
// TransformRef into a registration idempotent across repeated schema
// approvals and engine restarts.
func (m *Manager) ByOutput(schemaName, fieldName string) (*types.TransformRegistration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.outputIndex[schemaName+"."+fieldName]
	if !ok {
		return nil, false
	}
	reg, ok := m.transforms[id]
	return reg, ok
}

// TriggeredBy returns the ids of every transform that declares fieldKey
// ("schema.field") as an input dependency.
func (m *Manager) TriggeredBy(fieldKey string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.triggerIndex[fieldKey]...)
}

// Get returns the registration for transformID.
func (m *Manager) Get(transformID string) (*types.TransformRegistration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.transforms[transformID]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "transform %s not found", transformID)
	}
	return reg, nil
}

// Execute runs the §4.J algorithm for transformID: read every input
// dependency via the resolver, bind them into the DSL environment,
// evaluate, and write the result through the mutation engine as the
// transform's declared output field. It publishes TransformExecuted
// (with the error message if any) regardless of outcome.
func (m *Manager) Execute(transformID string) (any, error) {
	m.mu.RLock()
	reg, ok := m.transforms[transformID]
	expr := m.parsed[transformID]
	m.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "transform %s not found", transformID)
	}

	result, err := m.execute(reg, expr)

	payload := bus.TransformExecutedPayload{TransformID: transformID, Result: result}
	if err != nil {
		payload.Err = err.Error()
	}
	m.bus.Publish(bus.TopicTransformExecuted, bus.Event{Payload: payload})

	return result, err
}

func (m *Manager) execute(reg *types.TransformRegistration, expr *dsl.Expr) (any, error) {
	env := dsl.Env{}
	for _, fieldKey := range reg.Transform.InputDependencies {
		schemaName, fieldName, err := splitFieldKey(fieldKey)
		if err != nil {
			return nil, err
		}
		raw, err := m.resolver.Resolve(schemaName, fieldName, nil)
		if err != nil {
			return nil, err
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, types.WrapError(types.ErrSerialization, err, "failed to decode %s", fieldKey)
		}
		env[fieldKey] = decoded
	}

	result, err := dsl.Eval(expr, env)
	if err != nil {
		return nil, err
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, types.WrapError(types.ErrSerialization, err, "failed to encode transform result")
	}

	_, err = m.mutation.Apply(types.Mutation{
		SchemaName:   reg.Transform.OutputSchema,
		MutationType: types.MutationType{Kind: types.MutationUpdate},
		FieldsAndValues: map[string]json.RawMessage{
			reg.Transform.OutputField: resultJSON,
		},
		PubKey:        "transform:" + reg.TransformID,
		TrustDistance: 0,
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func splitFieldKey(fieldKey string) (schemaName, fieldName string, err error) {
	for i := len(fieldKey) - 1; i >= 0; i-- {
		if fieldKey[i] == '.' {
			return fieldKey[:i], fieldKey[i+1:], nil
		}
	}
	return "", "", types.NewError(types.ErrInvalidData, "malformed field key %q", fieldKey)
}

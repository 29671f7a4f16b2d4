// Package mutation implements the mutation engine (spec.md §4.G): the sole
// write path into the atom/atom-ref layer. It checks per-field write
// permission, appends atoms, advances refs, and notifies the bus and the
// transform orchestrator as each field is written.
//
// Grounded on spec.md §4.G and original_source's fold_db_core/mutation.rs
// for the per-field publish ordering (§9's resolved open question: publish
// FieldValueSet once per field, not once at the end of the mutation).
package mutation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/datafold/datafold/pkg/atom"
	"github.com/datafold/datafold/pkg/atomref"
	"github.com/datafold/datafold/pkg/bus"
	"github.com/datafold/datafold/pkg/schema"
	"github.com/datafold/datafold/pkg/types"
)

// TaskNotifier is the orchestrator's enqueue hook, injected to avoid a
// package import cycle (the orchestrator drives transform execution,
// which writes through this same engine). Step 3.d of spec.md §4.G.
type TaskNotifier interface {
	AddTask(schemaName, fieldName, mutationHash string) error
}

// Engine applies mutations to the atom/atom-ref layer.
type Engine struct {
	schemas  *schema.Manager
	refs     *atomref.Store
	atoms    *atom.Store
	bus      *bus.Bus
	notifier TaskNotifier
}

// New creates a mutation Engine. notifier may be nil in contexts (such as
// isolated tests) that don't exercise the orchestrator hand-off.
func New(schemas *schema.Manager, refs *atomref.Store, atoms *atom.Store, b *bus.Bus, notifier TaskNotifier) *Engine {
	return &Engine{schemas: schemas, refs: refs, atoms: atoms, bus: b, notifier: notifier}
}

// Apply runs m through the full §4.G algorithm: schema/approval and
// non-empty checks, then per-field permission check, atom append, ref
// advance (or first-write ref allocation), FieldValueSet publication, and
// orchestrator notification — finishing with a MutationExecuted
// publication. It returns the mutation hash.
func (e *Engine) Apply(m types.Mutation) (string, error) {
	if len(m.FieldsAndValues) == 0 {
		return "", types.NewError(types.ErrInvalidData, "No fields to write")
	}

	s, err := e.schemas.RequireApproved(m.SchemaName)
	if err != nil {
		return "", err
	}

	hash, err := mutationHash(m)
	if err != nil {
		return "", types.WrapError(types.ErrSerialization, err, "failed to hash mutation")
	}

	fieldNames := make([]string, 0, len(m.FieldsAndValues))
	for name := range m.FieldsAndValues {
		fieldNames = append(fieldNames, name)
	}
	sort.Strings(fieldNames)

	for _, fieldName := range fieldNames {
		field, ok := s.Fields[fieldName]
		if !ok {
			return "", types.NewError(types.ErrInvalidData, "schema %s has no field %s", m.SchemaName, fieldName)
		}
		if !field.Permissions.CheckWrite(m.PubKey, m.TrustDistance) {
			return "", types.NewError(types.ErrPermissionDenied, "write denied for %s.%s", m.SchemaName, fieldName)
		}

		value := m.FieldsAndValues[fieldName]
		if err := e.applyField(m, s, fieldName, field, value, hash); err != nil {
			return "", err
		}
	}

	e.bus.Publish(bus.TopicMutationExecuted, bus.Event{
		Payload: bus.MutationExecutedPayload{SchemaName: m.SchemaName, MutationHash: hash},
	})

	return hash, nil
}

func (e *Engine) applyField(m types.Mutation, s *types.Schema, fieldName string, field types.Field, value json.RawMessage, hash string) error {
	schemaName := s.Name
	refUUID := field.RefAtomUUID

	switch m.MutationType.Kind {
	case types.MutationCreate, types.MutationUpdate:
		if field.FieldType == types.FieldTypeRange {
			if m.MutationType.RangeKeyValue == "" {
				return types.NewError(types.ErrInvalidData, "range_key_value required for %s.%s (range key %s)", schemaName, fieldName, s.RangeKey)
			}
			if refUUID == "" {
				newRef, err := e.refs.Create(types.RefKindRange, "")
				if err != nil {
					return err
				}
				if err := e.schemas.UpdateFieldRefAtomUUID(schemaName, fieldName, newRef); err != nil {
					return err
				}
				refUUID = newRef
			}
			atomUUID, err := e.atoms.Create(schemaName, m.PubKey, "", value, types.AtomStatusActive)
			if err != nil {
				return err
			}
			if err := e.refs.RangeUpsert(refUUID, m.MutationType.RangeKeyValue, atomUUID, m.PubKey); err != nil {
				return err
			}
			break
		}

		if refUUID == "" {
			kind := refKindFor(field.FieldType)
			newRef, err := e.refs.Create(kind, "")
			if err != nil {
				return err
			}
			if err := e.schemas.UpdateFieldRefAtomUUID(schemaName, fieldName, newRef); err != nil {
				return err
			}
			refUUID = newRef
		}

		ref, err := e.refs.Get(refUUID)
		if err != nil {
			return err
		}
		atomUUID, err := e.atoms.Create(schemaName, m.PubKey, ref.Target, value, types.AtomStatusActive)
		if err != nil {
			return err
		}
		if err := e.refs.Advance(refUUID, atomUUID, m.PubKey); err != nil {
			return err
		}

	case types.MutationDelete:
		if refUUID == "" {
			return types.NewError(types.ErrInvalidData, "cannot delete unset field %s.%s", schemaName, fieldName)
		}
		ref, err := e.refs.Get(refUUID)
		if err != nil {
			return err
		}
		atomUUID, err := e.atoms.Create(schemaName, m.PubKey, ref.Target, value, types.AtomStatusDeleted)
		if err != nil {
			return err
		}
		if err := e.refs.Advance(refUUID, atomUUID, m.PubKey); err != nil {
			return err
		}

	case types.MutationAddToCollection, types.MutationUpdateToCollection:
		if refUUID == "" {
			newRef, err := e.refs.Create(types.RefKindCollection, "")
			if err != nil {
				return err
			}
			if err := e.schemas.UpdateFieldRefAtomUUID(schemaName, fieldName, newRef); err != nil {
				return err
			}
			refUUID = newRef
		}
		atomUUID, err := e.atoms.Create(schemaName, m.PubKey, "", value, types.AtomStatusActive)
		if err != nil {
			return err
		}
		if err := e.refs.CollectionUpsert(refUUID, m.MutationType.MemberID, atomUUID, m.PubKey); err != nil {
			return err
		}

	case types.MutationDeleteFromCollection:
		if refUUID == "" {
			return types.NewError(types.ErrInvalidData, "cannot delete from unset field %s.%s", schemaName, fieldName)
		}
		if err := e.refs.CollectionDelete(refUUID, m.MutationType.MemberID, m.PubKey); err != nil {
			return err
		}

	default:
		return types.NewError(types.ErrInvalidData, "unknown mutation type %q", m.MutationType.Kind)
	}

	// Best-effort per §4.G's ordering note: the atom/ref write above is
	// already durable, so a publish or notify failure here doesn't fail
	// the mutation.
	e.bus.Publish(bus.TopicFieldValueSet, bus.Event{
		Payload: bus.FieldValueSetPayload{
			SchemaName:   schemaName,
			FieldName:    fieldName,
			Value:        value,
			Source:       m.PubKey,
			MutationHash: hash,
		},
	})
	if e.notifier != nil {
		e.notifier.AddTask(schemaName, fieldName, hash)
	}

	return nil
}

// refKindFor maps a Single/Collection field to its ref kind. Range fields
// are handled separately in applyField, above, since they need a
// RangeKeyValue to address the entry being written.
func refKindFor(ft types.FieldType) types.RefKind {
	if ft == types.FieldTypeCollection {
		return types.RefKindCollection
	}
	return types.RefKindSingle
}

// mutationHash computes a stable content hash over m, used as the
// orchestrator's dedup key alongside a transform id (spec.md §8 invariant
// 3). Field order is sorted before hashing so logically identical
// mutations hash identically regardless of map iteration order.
func mutationHash(m types.Mutation) (string, error) {
	fieldNames := make([]string, 0, len(m.FieldsAndValues))
	for name := range m.FieldsAndValues {
		fieldNames = append(fieldNames, name)
	}
	sort.Strings(fieldNames)

	type canonicalField struct {
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
	}
	canonical := struct {
		SchemaName   string           `json:"schema_name"`
		MutationKind string           `json:"mutation_kind"`
		MemberID     string           `json:"member_id,omitempty"`
		RangeKey     string           `json:"range_key_value,omitempty"`
		Fields       []canonicalField `json:"fields"`
		PubKey       string           `json:"pub_key"`
	}{
		SchemaName:   m.SchemaName,
		MutationKind: m.MutationType.Kind,
		MemberID:     m.MutationType.MemberID,
		RangeKey:     m.MutationType.RangeKeyValue,
		PubKey:       m.PubKey,
	}
	for _, name := range fieldNames {
		canonical.Fields = append(canonical.Fields, canonicalField{Name: name, Value: m.FieldsAndValues[name]})
	}

	data, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Package resolver implements the field resolver (spec.md §4.F): the sole
// legitimate read path for a field's current value. The query engine and
// the transform manager both route through this package so field-read
// semantics never diverge between the two callers.
package resolver

import (
	"encoding/json"

	"github.com/datafold/datafold/pkg/atom"
	"github.com/datafold/datafold/pkg/atomref"
	"github.com/datafold/datafold/pkg/schema"
	"github.com/datafold/datafold/pkg/types"
)

// Resolver reads field values by walking schema -> field_ref -> atom-ref ->
// atom.
type Resolver struct {
	schemas *schema.Manager
	refs    *atomref.Store
	atoms   *atom.Store
}

// New creates a Resolver over the given schema manager and atom/atom-ref
// stores.
func New(schemas *schema.Manager, refs *atomref.Store, atoms *atom.Store) *Resolver {
	return &Resolver{schemas: schemas, refs: refs, atoms: atoms}
}

// Resolve returns the current JSON value of schemaName.fieldName. If
// filter is non-nil the field must be Range-kinded and only entries
// matching filter are returned, as a JSON object keyed by range key. An
// unset ref (the field has never been written) resolves to JSON null, not
// an error.
func (r *Resolver) Resolve(schemaName, fieldName string, filter *types.FilterExpr) (json.RawMessage, error) {
	s, err := r.schemas.Get(schemaName)
	if err != nil {
		return nil, err
	}
	field, ok := s.Fields[fieldName]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "field %s.%s not found", schemaName, fieldName)
	}
	if field.RefAtomUUID == "" {
		return json.RawMessage("null"), nil
	}

	ref, err := r.refs.Get(field.RefAtomUUID)
	if err != nil {
		return nil, err
	}

	switch ref.Kind {
	case types.RefKindSingle:
		return r.resolveSingle(ref)
	case types.RefKindCollection:
		return r.resolveCollection(ref)
	case types.RefKindRange:
		return r.resolveRange(ref, filter)
	default:
		return nil, types.NewError(types.ErrInvalidData, "unknown ref kind %q", ref.Kind)
	}
}

func (r *Resolver) resolveSingle(ref *types.AtomRef) (json.RawMessage, error) {
	if ref.Target == "" {
		return json.RawMessage("null"), nil
	}
	a, err := r.atoms.Get(ref.Target)
	if err != nil {
		return nil, err
	}
	return a.Content, nil
}

func (r *Resolver) resolveCollection(ref *types.AtomRef) (json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	for memberID, atomUUID := range ref.Members {
		a, err := r.atoms.Get(atomUUID)
		if err != nil {
			return nil, err
		}
		out[memberID] = a.Content
	}
	return json.Marshal(out)
}

func (r *Resolver) resolveRange(ref *types.AtomRef, filter *types.FilterExpr) (json.RawMessage, error) {
	var entries []atomref.Entry
	if filter == nil {
		keys := make([]string, 0, len(ref.Entries))
		for k := range ref.Entries {
			keys = append(keys, k)
		}
		for _, k := range keys {
			entries = append(entries, atomref.Entry{Key: k, AtomUUID: ref.Entries[k]})
		}
	} else {
		var err error
		entries, err = r.refs.RangeFilter(ref.UUID, *filter, r.atoms)
		if err != nil {
			return nil, err
		}
	}

	out := map[string]json.RawMessage{}
	for _, e := range entries {
		a, err := r.atoms.Get(e.AtomUUID)
		if err != nil {
			return nil, err
		}
		out[e.Key] = a.Content
	}
	return json.Marshal(out)
}

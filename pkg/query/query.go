// Package query implements the query engine (spec.md §4.H): validates a
// read request against schema approval and per-field read permission, then
// assembles the requested fields through the resolver.
package query

import (
	"encoding/json"

	"github.com/datafold/datafold/pkg/bus"
	"github.com/datafold/datafold/pkg/resolver"
	"github.com/datafold/datafold/pkg/schema"
	"github.com/datafold/datafold/pkg/types"
)

// Engine runs queries against a schema manager and field resolver.
type Engine struct {
	schemas  *schema.Manager
	resolver *resolver.Resolver
	bus      *bus.Bus
}

// New creates a query Engine.
func New(schemas *schema.Manager, resolver *resolver.Resolver, b *bus.Bus) *Engine {
	return &Engine{schemas: schemas, resolver: resolver, bus: b}
}

// Run validates q and returns {field: value} for every requested field,
// dropping null-valued fields when q.Format is "compact". A range-keyed
// schema requires q.Filter.RangeFilter[rangeKey] to be present. Per
// spec.md §7, an unknown field, a permission denial, or a resolve failure
// is not fatal to the whole query: it is collected into the result map as
// a `{"error": "..."}` value alongside any fields that did resolve. Only
// a failure that precedes field iteration (schema not Approved, no
// fields requested, missing range filter) aborts the query outright.
func (e *Engine) Run(q types.Query) (map[string]json.RawMessage, error) {
	s, err := e.schemas.RequireApproved(q.SchemaName)
	if err != nil {
		return nil, err
	}
	if len(q.Fields) == 0 {
		return nil, types.NewError(types.ErrInvalidData, "No fields requested")
	}

	var rangeFilter *types.FilterExpr
	if s.IsRangeKeyed() {
		if q.Filter == nil || q.Filter.RangeFilter == nil {
			return nil, types.NewError(types.ErrInvalidData, "missing range filter for range key %s", s.RangeKey)
		}
		f, ok := q.Filter.RangeFilter[s.RangeKey]
		if !ok {
			return nil, types.NewError(types.ErrInvalidData, "missing range filter for range key %s", s.RangeKey)
		}
		rangeFilter = &f
	}

	result := make(map[string]json.RawMessage, len(q.Fields))
	for _, fieldName := range q.Fields {
		field, ok := s.Fields[fieldName]
		if !ok {
			result[fieldName] = fieldErrorJSON(types.NewError(types.ErrInvalidData, "schema %s has no field %s", q.SchemaName, fieldName))
			continue
		}
		if !field.Permissions.CheckRead(q.PubKey, q.TrustDistance) {
			result[fieldName] = fieldErrorJSON(types.NewError(types.ErrPermissionDenied, "read denied for %s.%s", q.SchemaName, fieldName))
			continue
		}

		var filter *types.FilterExpr
		if field.FieldType == types.FieldTypeRange {
			filter = rangeFilter
		}

		value, err := e.resolver.Resolve(q.SchemaName, fieldName, filter)
		if err != nil {
			result[fieldName] = fieldErrorJSON(err)
			continue
		}
		if q.Format == "compact" && isJSONNull(value) {
			continue
		}
		result[fieldName] = value
	}

	if e.bus != nil {
		e.bus.Publish(bus.TopicQueryExecuted, bus.Event{
			Payload: bus.QueryExecutedPayload{SchemaName: q.SchemaName, Fields: q.Fields},
		})
	}

	return result, nil
}

func isJSONNull(v json.RawMessage) bool {
	return string(v) == "null"
}

// fieldErrorJSON encodes err as the field-level error value spec.md §7
// calls for: a denied/missing field sits in the result map next to
// successful fields rather than failing the whole query.
func fieldErrorJSON(err error) json.RawMessage {
	data, marshalErr := json.Marshal(struct {
		Error string `json:"error"`
	}{Error: err.Error()})
	if marshalErr != nil {
		return json.RawMessage(`{"error":"unknown error"}`)
	}
	return data
}

// Package types holds the shared domain entities for DataFold's core: atoms,
// atom-references, schemas, fields, transforms, mutations, and queries.
package types

import (
	"encoding/json"
	"time"
)

// AtomStatus marks the lifecycle state of an Atom. Deletion is logical:
// a tombstone atom is appended, never an in-place mutation.
type AtomStatus string

const (
	AtomStatusActive  AtomStatus = "active"
	AtomStatusDeleted AtomStatus = "deleted"
)

// Atom is an immutable value cell. Atoms are created only by the mutation
// engine and are never mutated after creation; "deletion" appends a new
// tombstone atom with Status == AtomStatusDeleted.
type Atom struct {
	UUID         string          `json:"uuid"`
	SchemaName   string          `json:"schema_name"`
	SourcePubKey string          `json:"source_pub_key"`
	CreatedAt    time.Time       `json:"created_at"`
	PrevAtomUUID string          `json:"prev_atom_uuid,omitempty"`
	Content      json.RawMessage `json:"content"`
	Status       AtomStatus      `json:"status"`
}

// RefKind distinguishes the three AtomRef variants.
type RefKind string

const (
	RefKindSingle     RefKind = "single"
	RefKindCollection RefKind = "collection"
	RefKindRange      RefKind = "range"
)

// AtomRef is a mutable pointer into the atom chain. Its Kind determines
// which of Target / Members / Entries is meaningful.
//
//   - Single:     Target holds the one designated atom uuid.
//   - Collection: Members maps an external member id to an atom uuid.
//   - Range:      Entries maps a lexicographically ordered string key to an
//     atom uuid.
type AtomRef struct {
	UUID      string            `json:"uuid"`
	Kind      RefKind           `json:"kind"`
	Target    string            `json:"atom_uuid,omitempty"`
	Members   map[string]string `json:"members,omitempty"`
	Entries   map[string]string `json:"entries,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
	UpdatedBy string            `json:"updated_by"`
}

// TrustRequirement is a field's read/write permission gate: either no
// requirement at all, or a maximum trust distance from the schema owner.
type TrustRequirement struct {
	NoRequirement bool `json:"no_requirement,omitempty"`
	Distance      *int `json:"distance,omitempty"`
}

// Allows reports whether a caller at the given trust distance satisfies
// this requirement, ignoring any explicit allow-list.
func (t TrustRequirement) Allows(trustDistance int) bool {
	if t.NoRequirement {
		return true
	}
	if t.Distance == nil {
		return false
	}
	return trustDistance <= *t.Distance
}

// AllowList grants access to named public keys regardless of trust
// distance. Each key maps to a usage count that is stored with the list;
// Admits checks membership only and does not consult or decrement it.
type AllowList struct {
	Keys map[string]int `json:"keys,omitempty"`
}

// Admits reports whether pubKey appears on the allow-list.
func (a AllowList) Admits(pubKey string) bool {
	if a.Keys == nil {
		return false
	}
	_, ok := a.Keys[pubKey]
	return ok
}

// PermissionPolicy holds the read/write trust-distance gates and their
// explicit allow-list overrides for one field.
type PermissionPolicy struct {
	ReadPolicy     TrustRequirement `json:"read_policy"`
	WritePolicy    TrustRequirement `json:"write_policy"`
	ReadAllowList  AllowList        `json:"read_allow_list,omitempty"`
	WriteAllowList AllowList        `json:"write_allow_list,omitempty"`
}

// CheckRead reports whether (pubKey, trustDistance) may read a field
// governed by this policy.
func (p PermissionPolicy) CheckRead(pubKey string, trustDistance int) bool {
	return p.ReadPolicy.Allows(trustDistance) || p.ReadAllowList.Admits(pubKey)
}

// CheckWrite reports whether (pubKey, trustDistance) may write a field
// governed by this policy.
func (p PermissionPolicy) CheckWrite(pubKey string, trustDistance int) bool {
	return p.WritePolicy.Allows(trustDistance) || p.WriteAllowList.Admits(pubKey)
}

// FieldType is the compile-time variant of a schema field.
type FieldType string

const (
	FieldTypeSingle     FieldType = "Single"
	FieldTypeCollection FieldType = "Collection"
	FieldTypeRange      FieldType = "Range"
)

// Field is a compile-time schema entity. RefAtomUUID is runtime state: it
// starts empty and is assigned by the schema manager the first time the
// mutation engine writes the field (see pkg/schema's field_ref namespace).
type Field struct {
	Name          string            `json:"name"`
	FieldType     FieldType         `json:"field_type"`
	Permissions   PermissionPolicy  `json:"permission_policy"`
	PaymentConfig map[string]any    `json:"payment_config,omitempty"`
	FieldMappers  map[string]string `json:"field_mappers,omitempty"`
	Transform     *TransformRef     `json:"transform,omitempty"`
	RefAtomUUID   string            `json:"ref_atom_uuid,omitempty"`
}

// TransformRef is the inline transform declaration embedded in a field
// definition's on-disk schema file; cmd/datafold's engine
// (registerFieldTransforms) expands this into a full TransformRegistration
// when the schema is approved and again for every Approved schema at start-up.
type TransformRef struct {
	Name              string   `json:"name"`
	LogicSource       string   `json:"logic"`
	Reversible        bool     `json:"reversible,omitempty"`
	Signature         string   `json:"signature,omitempty"`
	InputDependencies []string `json:"input_dependencies,omitempty"`
}

// SchemaState tracks a schema's lifecycle independent of any atom.
type SchemaState string

const (
	SchemaAvailable SchemaState = "Available"
	SchemaApproved  SchemaState = "Approved"
	SchemaBlocked   SchemaState = "Blocked"
)

// Schema is the canonical, interpreted, in-memory form of a schema
// definition. RangeKey names the distinguished field that partitions
// entries when the schema is range-keyed.
type Schema struct {
	Name          string           `json:"name"`
	Fields        map[string]Field `json:"fields"`
	PaymentConfig map[string]any   `json:"payment_config,omitempty"`
	RangeKey      string           `json:"range_key,omitempty"`
}

// IsRangeKeyed reports whether this schema declares a range key field.
func (s *Schema) IsRangeKeyed() bool {
	return s.RangeKey != ""
}

// Transform is a registered, parsed derived-field computation.
type Transform struct {
	Name              string   `json:"name"`
	LogicSource       string   `json:"logic_source"`
	Reversible        bool     `json:"reversible,omitempty"`
	Signature         string   `json:"signature,omitempty"`
	InputDependencies []string `json:"input_dependencies"`
	OutputSchema      string   `json:"output_schema"`
	OutputField       string   `json:"output_field"`
}

// OutputKey returns the "schema.field" key this transform writes.
func (t *Transform) OutputKey() string {
	return t.OutputSchema + "." + t.OutputField
}

// TransformRegistration is the transform manager's persisted index entry:
// the transform, its id and its trigger fields. InputRefs and OutputRef are
// part of the record, but transform.Manager.Register leaves them empty.
type TransformRegistration struct {
	TransformID   string    `json:"transform_id"`
	Transform     Transform `json:"transform"`
	InputRefs     []string  `json:"input_refs"`
	TriggerFields []string  `json:"trigger_fields"`
	OutputRef     string    `json:"output_ref"`
}

// MutationType is one of the six mutation variants of spec.md §4.G.
type MutationType struct {
	Kind string `json:"kind"`
	// MemberID is populated for AddToCollection / UpdateToCollection /
	// DeleteFromCollection.
	MemberID string `json:"member_id,omitempty"`
	// RangeKeyValue addresses the entry within a Range-typed field's
	// AtomRef for Create/Update; it is the value of the schema's
	// declared RangeKey for this write, e.g. "warehouse:north".
	RangeKeyValue string `json:"range_key_value,omitempty"`
}

const (
	MutationCreate               = "Create"
	MutationUpdate               = "Update"
	MutationDelete               = "Delete"
	MutationAddToCollection      = "AddToCollection"
	MutationUpdateToCollection   = "UpdateToCollection"
	MutationDeleteFromCollection = "DeleteFromCollection"
)

// Mutation is the input to the mutation engine (spec.md §4.G).
type Mutation struct {
	SchemaName      string                     `json:"schema_name"`
	MutationType    MutationType               `json:"mutation_type"`
	FieldsAndValues map[string]json.RawMessage `json:"fields_and_values"`
	PubKey          string                     `json:"pub_key"`
	TrustDistance   int                        `json:"trust_distance"`
}

// Query is the input to the query engine (spec.md §4.H).
type Query struct {
	SchemaName    string       `json:"schema_name"`
	Fields        []string     `json:"fields"`
	PubKey        string       `json:"pub_key"`
	TrustDistance int          `json:"trust_distance"`
	Filter        *QueryFilter `json:"filter,omitempty"`
	Format        string       `json:"format,omitempty"` // "" or "compact"
}

// QueryFilter carries the range-key filter expression for range-keyed
// schemas, keyed by range-key field name.
type QueryFilter struct {
	RangeFilter map[string]FilterExpr `json:"range_filter,omitempty"`
}

// QueueItem is a pending (or historical) transform invocation, keyed by the
// transform id and the mutation hash that triggered it.
type QueueItem struct {
	TransformID  string `json:"transform_id"`
	MutationHash string `json:"mutation_hash"`
}

// Key returns the dedup key "transform_id|mutation_hash".
func (q QueueItem) Key() string {
	return q.TransformID + "|" + q.MutationHash
}

// QueueItemState is the orchestrator's per-item state machine position.
type QueueItemState string

const (
	QueueItemQueued     QueueItemState = "Queued"
	QueueItemRunning    QueueItemState = "Running"
	QueueItemSucceeded  QueueItemState = "Succeeded"
	QueueItemFailed     QueueItemState = "Failed"
	QueueItemDeadLetter QueueItemState = "DeadLetter"
)

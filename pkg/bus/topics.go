package bus

// Topic names are stable strings reused by the whole core and by test
// doubles (spec.md §6). Fire-and-forget events use these directly;
// request/response pairs use "<Name>Request" / "<Name>Response" by
// convention.
const (
	TopicFieldValueSet      = "FieldValueSet"
	TopicAtomCreated        = "AtomCreated"
	TopicAtomUpdated        = "AtomUpdated"
	TopicAtomRefCreated     = "AtomRefCreated"
	TopicAtomRefUpdated     = "AtomRefUpdated"
	TopicSchemaLoaded       = "SchemaLoaded"
	TopicSchemaChanged      = "SchemaChanged"
	TopicTransformTriggered = "TransformTriggered"
	TopicTransformExecuted  = "TransformExecuted"
	TopicQueryExecuted      = "QueryExecuted"
	TopicMutationExecuted   = "MutationExecuted"

	TopicAtomCreateRequest          = "AtomCreateRequest"
	TopicAtomCreateResponse         = "AtomCreateResponse"
	TopicFieldValueSetRequest       = "FieldValueSetRequest"
	TopicFieldValueSetResponse      = "FieldValueSetResponse"
	TopicSchemaLoadRequest          = "SchemaLoadRequest"
	TopicSchemaLoadResponse         = "SchemaLoadResponse"
	TopicTransformExecutionRequest  = "TransformExecutionRequest"
	TopicTransformExecutionResponse = "TransformExecutionResponse"
)

// FieldValueSetPayload is the payload of a FieldValueSet event: the field
// that changed, its new value, and the pub key that wrote it.
type FieldValueSetPayload struct {
	SchemaName   string `json:"schema_name"`
	FieldName    string `json:"field_name"`
	Value        any    `json:"value"`
	Source       string `json:"source"`
	MutationHash string `json:"mutation_hash"`
}

// TransformExecutedPayload is the payload of a TransformExecuted event.
type TransformExecutedPayload struct {
	TransformID string `json:"transform_id"`
	Result      any    `json:"result"`
	Err         string `json:"error,omitempty"`
}

// MutationExecutedPayload is the payload of a MutationExecuted event.
type MutationExecutedPayload struct {
	SchemaName   string `json:"schema_name"`
	MutationHash string `json:"mutation_hash"`
}

// QueryExecutedPayload is the payload of a QueryExecuted event.
type QueryExecutedPayload struct {
	SchemaName string `json:"schema_name"`
	Fields     []string `json:"fields"`
}

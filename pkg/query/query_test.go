package query

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datafold/datafold/pkg/atom"
	"github.com/datafold/datafold/pkg/atomref"
	"github.com/datafold/datafold/pkg/bus"
	"github.com/datafold/datafold/pkg/mutation"
	"github.com/datafold/datafold/pkg/resolver"
	"github.com/datafold/datafold/pkg/schema"
	"github.com/datafold/datafold/pkg/storage"
	"github.com/datafold/datafold/pkg/types"
)

func intPtr(i int) *int { return &i }

func newTestEnv(t *testing.T) (*Engine, *schema.Manager, *mutation.Engine) {
	t.Helper()
	dir, err := os.MkdirTemp("", "datafold-query-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schemas := schema.New(db)
	refs := atomref.New(db)
	atoms := atom.New(db)
	b := bus.New()
	res := resolver.New(schemas, refs, atoms)
	mut := mutation.New(schemas, refs, atoms, b, nil)

	return New(schemas, res, b), schemas, mut
}

// TestQueryS3RangeFilterOrdering mirrors scenario S3.
func TestQueryS3RangeFilterOrdering(t *testing.T) {
	dir, err := os.MkdirTemp("", "datafold-query-s3-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schemas := schema.New(db)
	refs := atomref.New(db)
	atoms := atom.New(db)
	res := resolver.New(schemas, refs, atoms)
	q := New(schemas, res, bus.New())

	require.NoError(t, schemas.Register(types.Schema{
		Name:     "inventory",
		RangeKey: "location",
		Fields: map[string]types.Field{
			"qty": {
				Name:      "qty",
				FieldType: types.FieldTypeRange,
				Permissions: types.PermissionPolicy{
					ReadPolicy: types.TrustRequirement{NoRequirement: true},
				},
			},
		},
	}))
	require.NoError(t, schemas.Approve("inventory"))

	refUUID, err := refs.Create(types.RefKindRange, "")
	require.NoError(t, err)
	require.NoError(t, schemas.UpdateFieldRefAtomUUID("inventory", "qty", refUUID))

	for key, val := range map[string]string{
		"warehouse:north": "25",
		"warehouse:south": "18",
		"store:downtown":  "5",
	} {
		id, err := atoms.Create("inventory", "alice", "", json.RawMessage(val), types.AtomStatusActive)
		require.NoError(t, err)
		require.NoError(t, refs.RangeUpsert(refUUID, key, id, "alice"))
	}

	prefix := "warehouse:"
	out, err := q.Run(types.Query{
		SchemaName: "inventory",
		Fields:     []string{"qty"},
		Filter: &types.QueryFilter{
			RangeFilter: map[string]types.FilterExpr{
				"location": {KeyPrefix: &prefix},
			},
		},
	})
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out["qty"], &decoded))
	require.Len(t, decoded, 2)
	require.Contains(t, decoded, "warehouse:north")
	require.Contains(t, decoded, "warehouse:south")

	raw := string(out["qty"])
	require.Less(t, strings.Index(raw, `"warehouse:north"`), strings.Index(raw, `"warehouse:south"`))
}

// TestQueryS2PermissionDenial mirrors scenario S2: a denied field does not
// fail the whole query, it surfaces as a per-field error in the result map.
func TestQueryS2PermissionDenial(t *testing.T) {
	q, schemas, _ := newTestEnv(t)

	require.NoError(t, schemas.Register(types.Schema{
		Name: "user",
		Fields: map[string]types.Field{
			"email": {
				Name:      "email",
				FieldType: types.FieldTypeSingle,
				Permissions: types.PermissionPolicy{
					ReadPolicy: types.TrustRequirement{Distance: intPtr(1)},
				},
			},
		},
	}))
	require.NoError(t, schemas.Approve("user"))

	out, err := q.Run(types.Query{
		SchemaName:    "user",
		Fields:        []string{"email"},
		PubKey:        "anon",
		TrustDistance: 3,
	})
	require.NoError(t, err)
	require.Contains(t, string(out["email"]), "read denied")
}

// TestQueryCollectsPerFieldErrorsAlongsideSuccess mirrors spec.md §7:
// an unknown field and a denied field both surface as errors in the
// result map without losing the value of a field that did resolve.
func TestQueryCollectsPerFieldErrorsAlongsideSuccess(t *testing.T) {
	q, schemas, mut := newTestEnv(t)

	require.NoError(t, schemas.Register(types.Schema{
		Name: "user",
		Fields: map[string]types.Field{
			"username": {
				Name:      "username",
				FieldType: types.FieldTypeSingle,
				Permissions: types.PermissionPolicy{
					ReadPolicy:  types.TrustRequirement{NoRequirement: true},
					WritePolicy: types.TrustRequirement{NoRequirement: true},
				},
			},
			"email": {
				Name:      "email",
				FieldType: types.FieldTypeSingle,
				Permissions: types.PermissionPolicy{
					ReadPolicy:  types.TrustRequirement{Distance: intPtr(0)},
					WritePolicy: types.TrustRequirement{NoRequirement: true},
				},
			},
		},
	}))
	require.NoError(t, schemas.Approve("user"))

	_, err := mut.Apply(types.Mutation{
		SchemaName:      "user",
		MutationType:    types.MutationType{Kind: types.MutationCreate},
		FieldsAndValues: map[string]json.RawMessage{"username": json.RawMessage(`"alice"`)},
		PubKey:          "alice",
	})
	require.NoError(t, err)

	out, err := q.Run(types.Query{
		SchemaName:    "user",
		Fields:        []string{"username", "email", "missing"},
		PubKey:        "anon",
		TrustDistance: 5,
	})
	require.NoError(t, err)
	require.JSONEq(t, `"alice"`, string(out["username"]))
	require.Contains(t, string(out["email"]), "read denied")
	require.Contains(t, string(out["missing"]), "no field")
}

func TestQueryMissingRangeFilterIsInvalidData(t *testing.T) {
	q, schemas, _ := newTestEnv(t)

	require.NoError(t, schemas.Register(types.Schema{
		Name:     "inventory",
		RangeKey: "location",
		Fields: map[string]types.Field{
			"qty": {Name: "qty", FieldType: types.FieldTypeRange, Permissions: types.PermissionPolicy{ReadPolicy: types.TrustRequirement{NoRequirement: true}}},
		},
	}))
	require.NoError(t, schemas.Approve("inventory"))

	_, err := q.Run(types.Query{
		SchemaName:    "inventory",
		Fields:        []string{"qty"},
		PubKey:        "anon",
		TrustDistance: 0,
	})
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrInvalidData, kind)
}

func TestQueryCompactFormatDropsNulls(t *testing.T) {
	q, schemas, _ := newTestEnv(t)

	require.NoError(t, schemas.Register(types.Schema{
		Name: "user",
		Fields: map[string]types.Field{
			"username": {Name: "username", FieldType: types.FieldTypeSingle, Permissions: types.PermissionPolicy{ReadPolicy: types.TrustRequirement{NoRequirement: true}}},
			"bio":      {Name: "bio", FieldType: types.FieldTypeSingle, Permissions: types.PermissionPolicy{ReadPolicy: types.TrustRequirement{NoRequirement: true}}},
		},
	}))
	require.NoError(t, schemas.Approve("user"))

	out, err := q.Run(types.Query{
		SchemaName: "user",
		Fields:     []string{"username", "bio"},
		Format:     "compact",
	})
	require.NoError(t, err)
	require.NotContains(t, out, "username")
	require.NotContains(t, out, "bio")
}

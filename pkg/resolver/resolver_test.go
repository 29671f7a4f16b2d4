package resolver

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datafold/datafold/pkg/atom"
	"github.com/datafold/datafold/pkg/atomref"
	"github.com/datafold/datafold/pkg/schema"
	"github.com/datafold/datafold/pkg/storage"
	"github.com/datafold/datafold/pkg/types"
)

func newTestEnv(t *testing.T) (*Resolver, *schema.Manager, *atomref.Store, *atom.Store) {
	t.Helper()
	dir, err := os.MkdirTemp("", "datafold-resolver-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schemas := schema.New(db)
	refs := atomref.New(db)
	atoms := atom.New(db)
	return New(schemas, refs, atoms), schemas, refs, atoms
}

func TestResolveUnsetFieldReturnsNull(t *testing.T) {
	r, schemas, _, _ := newTestEnv(t)

	require.NoError(t, schemas.Register(types.Schema{
		Name: "user",
		Fields: map[string]types.Field{
			"email": {Name: "email", FieldType: types.FieldTypeSingle},
		},
	}))

	out, err := r.Resolve("user", "email", nil)
	require.NoError(t, err)
	require.JSONEq(t, `null`, string(out))
}

func TestResolveSingleField(t *testing.T) {
	r, schemas, refs, atoms := newTestEnv(t)

	refUUID, err := refs.Create(types.RefKindSingle, "")
	require.NoError(t, err)

	require.NoError(t, schemas.Register(types.Schema{
		Name: "user",
		Fields: map[string]types.Field{
			"email": {Name: "email", FieldType: types.FieldTypeSingle},
		},
	}))
	require.NoError(t, schemas.UpdateFieldRefAtomUUID("user", "email", refUUID))

	atomUUID, err := atoms.Create("user", "alice", "", json.RawMessage(`"alice@example.com"`), types.AtomStatusActive)
	require.NoError(t, err)
	require.NoError(t, refs.Advance(refUUID, atomUUID, "alice"))

	out, err := r.Resolve("user", "email", nil)
	require.NoError(t, err)
	require.JSONEq(t, `"alice@example.com"`, string(out))
}

func TestResolveRangeFieldWithFilter(t *testing.T) {
	r, schemas, refs, atoms := newTestEnv(t)

	refUUID, err := refs.Create(types.RefKindRange, "")
	require.NoError(t, err)

	require.NoError(t, schemas.Register(types.Schema{
		Name:     "inventory",
		RangeKey: "location",
		Fields: map[string]types.Field{
			"stock": {Name: "stock", FieldType: types.FieldTypeRange},
		},
	}))
	require.NoError(t, schemas.UpdateFieldRefAtomUUID("inventory", "stock", refUUID))

	for _, kv := range []struct{ k, v string }{
		{"warehouse:north", "25"},
		{"warehouse:south", "18"},
		{"store:downtown", "5"},
	} {
		id, err := atoms.Create("inventory", "alice", "", json.RawMessage(kv.v), types.AtomStatusActive)
		require.NoError(t, err)
		require.NoError(t, refs.RangeUpsert(refUUID, kv.k, id, "alice"))
	}

	prefix := "warehouse:"
	out, err := r.Resolve("inventory", "stock", &types.FilterExpr{KeyPrefix: &prefix})
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 2)
	require.Contains(t, decoded, "warehouse:north")
	require.Contains(t, decoded, "warehouse:south")
}

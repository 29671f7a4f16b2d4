package atomref

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datafold/datafold/pkg/atom"
	"github.com/datafold/datafold/pkg/storage"
	"github.com/datafold/datafold/pkg/types"
)

func newTestEnv(t *testing.T) (*Store, *atom.Store) {
	t.Helper()
	dir, err := os.MkdirTemp("", "datafold-atomref-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db), atom.New(db)
}

func TestAdvanceIsIdempotentForSameAtom(t *testing.T) {
	refs, atoms := newTestEnv(t)

	refUUID, err := refs.Create(types.RefKindSingle, "")
	require.NoError(t, err)

	a1, err := atoms.Create("user", "alice", "", json.RawMessage(`"alice"`), types.AtomStatusActive)
	require.NoError(t, err)

	require.NoError(t, refs.Advance(refUUID, a1, "alice"))
	ref, err := refs.Get(refUUID)
	require.NoError(t, err)
	require.Equal(t, a1, ref.Target)

	// Re-advancing to the same atom is a no-op w.r.t. the target.
	require.NoError(t, refs.Advance(refUUID, a1, "alice"))
	ref, err = refs.Get(refUUID)
	require.NoError(t, err)
	require.Equal(t, a1, ref.Target)
}

func TestRangeFilterKeyPrefixOrdering(t *testing.T) {
	refs, atoms := newTestEnv(t)

	refUUID, err := refs.Create(types.RefKindRange, "")
	require.NoError(t, err)

	entries := map[string]string{
		"warehouse:north": "25",
		"warehouse:south": "18",
		"store:downtown":  "5",
	}
	for k, v := range entries {
		id, err := atoms.Create("inventory", "alice", "", json.RawMessage(`"`+v+`"`), types.AtomStatusActive)
		require.NoError(t, err)
		require.NoError(t, refs.RangeUpsert(refUUID, k, id, "alice"))
	}

	prefix := "warehouse:"
	out, err := refs.RangeFilter(refUUID, types.FilterExpr{KeyPrefix: &prefix}, atoms)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "warehouse:north", out[0].Key)
	require.Equal(t, "warehouse:south", out[1].Key)
}

func TestRangeFilterKeyRangeHalfOpen(t *testing.T) {
	refs, atoms := newTestEnv(t)

	refUUID, err := refs.Create(types.RefKindRange, "")
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c", "d"} {
		id, err := atoms.Create("s", "alice", "", json.RawMessage(`"v"`), types.AtomStatusActive)
		require.NoError(t, err)
		require.NoError(t, refs.RangeUpsert(refUUID, k, id, "alice"))
	}

	out, err := refs.RangeFilter(refUUID, types.FilterExpr{KeyRange: &types.KeyRangeArg{Start: "b", End: "d"}}, atoms)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "b", out[0].Key)
	require.Equal(t, "c", out[1].Key)
}

func TestCollectionUpsertAndDelete(t *testing.T) {
	refs, atoms := newTestEnv(t)

	refUUID, err := refs.Create(types.RefKindCollection, "")
	require.NoError(t, err)

	id, err := atoms.Create("s", "alice", "", json.RawMessage(`"v"`), types.AtomStatusActive)
	require.NoError(t, err)

	require.NoError(t, refs.CollectionUpsert(refUUID, "member-1", id, "alice"))
	ref, err := refs.Get(refUUID)
	require.NoError(t, err)
	require.Equal(t, id, ref.Members["member-1"])

	require.NoError(t, refs.CollectionDelete(refUUID, "member-1", "alice"))
	ref, err = refs.Get(refUUID)
	require.NoError(t, err)
	_, ok := ref.Members["member-1"]
	require.False(t, ok)
}

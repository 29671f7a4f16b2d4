package atom

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datafold/datafold/pkg/storage"
	"github.com/datafold/datafold/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "datafold-atom-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db)
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("user", "alice", "", json.RawMessage(`"alice"`), types.AtomStatusActive)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	a, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, "user", a.SchemaName)
	require.Equal(t, types.AtomStatusActive, a.Status)
	require.Empty(t, a.PrevAtomUUID)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("does-not-exist")
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrNotFound, kind)
}

func TestHistoryWalksPrevChain(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.Create("user", "alice", "", json.RawMessage(`"alice"`), types.AtomStatusActive)
	require.NoError(t, err)

	id2, err := s.Create("user", "alice", id1, json.RawMessage(`"alice2"`), types.AtomStatusActive)
	require.NoError(t, err)

	id3, err := s.Create("user", "alice", id2, json.RawMessage(`"alice3"`), types.AtomStatusActive)
	require.NoError(t, err)

	chain, err := s.History(id3)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, id3, chain[0].UUID)
	require.Equal(t, id2, chain[1].UUID)
	require.Equal(t, id1, chain[2].UUID)
	require.Empty(t, chain[2].PrevAtomUUID)
}

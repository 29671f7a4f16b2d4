// Package atom implements the append-only atom store (spec.md §4.B): the
// sole unit of immutable state in DataFold. Atoms are created by the
// mutation engine and never mutated afterward.
package atom

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/datafold/datafold/pkg/storage"
	"github.com/datafold/datafold/pkg/types"
)

// Store persists and retrieves Atoms through the KV namespace of pkg/storage.
type Store struct {
	db *storage.DbOperations
}

// New creates an atom Store backed by db.
func New(db *storage.DbOperations) *Store {
	return &Store{db: db}
}

// Create appends a new immutable atom and returns its uuid. prevAtomUUID
// should be the ref's target uuid at the instant of creation (spec.md
// §4.B's prev_atom_uuid invariant); pass "" for a ref's first atom.
func (s *Store) Create(schemaName, pubKey, prevAtomUUID string, content json.RawMessage, status types.AtomStatus) (string, error) {
	a := types.Atom{
		UUID:         uuid.NewString(),
		SchemaName:   schemaName,
		SourcePubKey: pubKey,
		CreatedAt:    time.Now(),
		PrevAtomUUID: prevAtomUUID,
		Content:      content,
		Status:       status,
	}
	if err := s.db.Put(storage.NamespaceAtom, a.UUID, a); err != nil {
		return "", types.WrapError(types.ErrStorage, err, "failed to persist atom")
	}
	return a.UUID, nil
}

// Get retrieves the atom with the given uuid.
func (s *Store) Get(uuid string) (*types.Atom, error) {
	var a types.Atom
	found, err := s.db.Get(storage.NamespaceAtom, uuid, &a)
	if err != nil {
		return nil, types.WrapError(types.ErrStorage, err, "failed to read atom")
	}
	if !found {
		return nil, types.NewError(types.ErrNotFound, "atom not found")
	}
	return &a, nil
}

// CountByStatus scans every persisted atom and tallies them by status, for
// metrics reporting.
func (s *Store) CountByStatus() (map[types.AtomStatus]int, error) {
	entries, err := s.db.ScanAll(storage.NamespaceAtom)
	if err != nil {
		return nil, types.WrapError(types.ErrStorage, err, "failed to scan atoms")
	}
	counts := map[types.AtomStatus]int{}
	for _, e := range entries {
		var a types.Atom
		if err := json.Unmarshal(e.Value, &a); err != nil {
			return nil, types.WrapError(types.ErrSerialization, err, "failed to decode atom %s", e.Key)
		}
		counts[a.Status]++
	}
	return counts, nil
}

// History walks the prev_atom_uuid chain starting at the atom currently
// designated by startUUID (typically an AtomRef's Target), returning atoms
// newest-first. The chain is strictly linear by construction (spec.md §9):
// Create never introduces cycles, so this walk always terminates.
func (s *Store) History(startUUID string) ([]*types.Atom, error) {
	var chain []*types.Atom
	cur := startUUID
	for cur != "" {
		a, err := s.Get(cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, a)
		cur = a.PrevAtomUUID
	}
	return chain, nil
}

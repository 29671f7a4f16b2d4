// Package atomref implements the mutable atom-reference store (spec.md
// §4.C): single/collection/range pointers into the atom chain, advanced
// only by the mutation engine and read by everyone else through the field
// resolver.
package atomref

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/datafold/datafold/pkg/storage"
	"github.com/datafold/datafold/pkg/types"
)

// Store persists and advances AtomRefs.
type Store struct {
	db *storage.DbOperations
}

// New creates an AtomRef Store backed by db.
func New(db *storage.DbOperations) *Store {
	return &Store{db: db}
}

// Create allocates a new AtomRef of the given kind. firstAtomUUID is the
// initial target for a Single ref; it is ignored for Collection/Range refs
// (those start empty and are populated by Advance/CollectionUpsert/
// RangeUpsert).
func (s *Store) Create(kind types.RefKind, firstAtomUUID string) (string, error) {
	ref := types.AtomRef{
		UUID:      uuid.NewString(),
		Kind:      kind,
		UpdatedAt: time.Now(),
	}
	switch kind {
	case types.RefKindSingle:
		ref.Target = firstAtomUUID
	case types.RefKindCollection:
		ref.Members = map[string]string{}
	case types.RefKindRange:
		ref.Entries = map[string]string{}
	}
	if err := s.db.Put(storage.NamespaceRef, ref.UUID, ref); err != nil {
		return "", types.WrapError(types.ErrStorage, err, "failed to persist atom-ref")
	}
	return ref.UUID, nil
}

// Get retrieves the AtomRef with the given uuid.
func (s *Store) Get(refUUID string) (*types.AtomRef, error) {
	var ref types.AtomRef
	found, err := s.db.Get(storage.NamespaceRef, refUUID, &ref)
	if err != nil {
		return nil, types.WrapError(types.ErrStorage, err, "failed to read atom-ref")
	}
	if !found {
		return nil, types.NewError(types.ErrNotFound, "atom-ref not found")
	}
	return &ref, nil
}

// CountByKind scans every persisted atom-ref and tallies them by kind, for
// metrics reporting.
func (s *Store) CountByKind() (map[types.RefKind]int, error) {
	entries, err := s.db.ScanAll(storage.NamespaceRef)
	if err != nil {
		return nil, types.WrapError(types.ErrStorage, err, "failed to scan atom-refs")
	}
	counts := map[types.RefKind]int{}
	for _, e := range entries {
		var ref types.AtomRef
		if err := json.Unmarshal(e.Value, &ref); err != nil {
			return nil, types.WrapError(types.ErrSerialization, err, "failed to decode atom-ref %s", e.Key)
		}
		counts[ref.Kind]++
	}
	return counts, nil
}

// Advance repoints a Single ref at newAtomUUID. Advancing to the atom the
// ref already targets is a no-op (idempotent w.r.t. (ref_uuid, atom_uuid)
// pairs, per spec.md §4.C), but UpdatedAt/UpdatedBy are still refreshed so
// observers can tell a redundant advance from a stale read.
//
// This is a read-modify-write of a single KV key: it is the enforcement
// point for the AtomRef-freshness invariant (spec.md §8 invariant 1) —
// once this call returns, the next Get/resolve of this ref observes
// newAtomUUID.
func (s *Store) Advance(refUUID, newAtomUUID, by string) error {
	ref, err := s.Get(refUUID)
	if err != nil {
		return err
	}
	if ref.Kind != types.RefKindSingle {
		return types.NewError(types.ErrInvalidData, "Advance requires a Single atom-ref")
	}
	ref.Target = newAtomUUID
	ref.UpdatedAt = time.Now()
	ref.UpdatedBy = by
	if err := s.db.Put(storage.NamespaceRef, ref.UUID, *ref); err != nil {
		return types.WrapError(types.ErrStorage, err, "failed to advance atom-ref")
	}
	return nil
}

// CollectionUpsert sets (or replaces) the atom uuid for memberID within a
// Collection ref.
func (s *Store) CollectionUpsert(refUUID, memberID, atomUUID, by string) error {
	ref, err := s.Get(refUUID)
	if err != nil {
		return err
	}
	if ref.Kind != types.RefKindCollection {
		return types.NewError(types.ErrInvalidData, "CollectionUpsert requires a Collection atom-ref")
	}
	if ref.Members == nil {
		ref.Members = map[string]string{}
	}
	ref.Members[memberID] = atomUUID
	ref.UpdatedAt = time.Now()
	ref.UpdatedBy = by
	if err := s.db.Put(storage.NamespaceRef, ref.UUID, *ref); err != nil {
		return types.WrapError(types.ErrStorage, err, "failed to upsert collection member")
	}
	return nil
}

// CollectionDelete removes memberID from a Collection ref.
func (s *Store) CollectionDelete(refUUID, memberID, by string) error {
	ref, err := s.Get(refUUID)
	if err != nil {
		return err
	}
	if ref.Kind != types.RefKindCollection {
		return types.NewError(types.ErrInvalidData, "CollectionDelete requires a Collection atom-ref")
	}
	delete(ref.Members, memberID)
	ref.UpdatedAt = time.Now()
	ref.UpdatedBy = by
	if err := s.db.Put(storage.NamespaceRef, ref.UUID, *ref); err != nil {
		return types.WrapError(types.ErrStorage, err, "failed to delete collection member")
	}
	return nil
}

// RangeUpsert sets (or replaces) the atom uuid for key within a Range ref.
func (s *Store) RangeUpsert(refUUID, key, atomUUID, by string) error {
	ref, err := s.Get(refUUID)
	if err != nil {
		return err
	}
	if ref.Kind != types.RefKindRange {
		return types.NewError(types.ErrInvalidData, "RangeUpsert requires a Range atom-ref")
	}
	if ref.Entries == nil {
		ref.Entries = map[string]string{}
	}
	ref.Entries[key] = atomUUID
	ref.UpdatedAt = time.Now()
	ref.UpdatedBy = by
	if err := s.db.Put(storage.NamespaceRef, ref.UUID, *ref); err != nil {
		return types.WrapError(types.ErrStorage, err, "failed to upsert range entry")
	}
	return nil
}

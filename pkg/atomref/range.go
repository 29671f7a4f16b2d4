package atomref

import (
	"bytes"
	"path/filepath"
	"sort"

	"github.com/datafold/datafold/pkg/atom"
	"github.com/datafold/datafold/pkg/types"
)

// Entry is one (key, atom) pair returned by RangeFilter, ordered ascending
// by Key.
type Entry struct {
	Key      string
	AtomUUID string
}

// RangeFilter applies f to the Range ref refUUID and returns the matching
// entries in ascending key order. atoms is used only by the Value variant,
// which must decode each candidate atom's content to compare it against
// the filter value (spec.md §9: kept as an O(n) linear scan, not indexed).
func (s *Store) RangeFilter(refUUID string, f types.FilterExpr, atoms *atom.Store) ([]Entry, error) {
	ref, err := s.Get(refUUID)
	if err != nil {
		return nil, err
	}
	if ref.Kind != types.RefKindRange {
		return nil, types.NewError(types.ErrInvalidData, "RangeFilter requires a Range atom-ref")
	}

	keys := make([]string, 0, len(ref.Entries))
	for k := range ref.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	switch {
	case f.Literal != nil:
		return matchKeys(ref, keys, []string{*f.Literal}), nil
	case f.Key != nil:
		return matchKeys(ref, keys, []string{*f.Key}), nil
	case f.Keys != nil:
		return matchKeys(ref, keys, f.Keys), nil
	case f.KeyPrefix != nil:
		var out []Entry
		for _, k := range keys {
			if len(k) >= len(*f.KeyPrefix) && k[:len(*f.KeyPrefix)] == *f.KeyPrefix {
				out = append(out, Entry{Key: k, AtomUUID: ref.Entries[k]})
			}
		}
		return out, nil
	case f.KeyPattern != nil:
		var out []Entry
		for _, k := range keys {
			if ok, _ := filepath.Match(*f.KeyPattern, k); ok {
				out = append(out, Entry{Key: k, AtomUUID: ref.Entries[k]})
			}
		}
		return out, nil
	case f.KeyRange != nil:
		var out []Entry
		start, end := f.KeyRange.Start, f.KeyRange.End
		for _, k := range keys {
			if k >= start && k < end {
				out = append(out, Entry{Key: k, AtomUUID: ref.Entries[k]})
			}
		}
		return out, nil
	case f.Value != nil:
		if atoms == nil {
			return nil, types.NewError(types.ErrInvalidData, "Value filter requires an atom store")
		}
		var out []Entry
		target := []byte(*f.Value)
		for _, k := range keys {
			a, err := atoms.Get(ref.Entries[k])
			if err != nil {
				continue
			}
			if bytes.Equal(bytes.Trim(a.Content, `"`), target) {
				out = append(out, Entry{Key: k, AtomUUID: ref.Entries[k]})
			}
		}
		return out, nil
	default:
		return nil, types.NewError(types.ErrInvalidData, "unknown range filter variant")
	}
}

func matchKeys(ref *types.AtomRef, orderedKeys, wanted []string) []Entry {
	want := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		want[w] = true
	}
	var out []Entry
	for _, k := range orderedKeys {
		if want[k] {
			out = append(out, Entry{Key: k, AtomUUID: ref.Entries[k]})
		}
	}
	return out
}

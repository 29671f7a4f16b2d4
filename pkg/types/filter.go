package types

import (
	"encoding/json"
	"fmt"
)

// FilterExpr is the exhaustive set of range-key filter variants a query or
// a range AtomRef scan may apply (spec.md §4.C, §6). Exactly one field is
// set; which one is determined by the wire shape during unmarshal.
type FilterExpr struct {
	Literal    *string      `json:"-"`
	Key        *string      `json:"Key,omitempty"`
	Keys       []string     `json:"Keys,omitempty"`
	KeyPrefix  *string      `json:"KeyPrefix,omitempty"`
	KeyPattern *string      `json:"KeyPattern,omitempty"`
	KeyRange   *KeyRangeArg `json:"KeyRange,omitempty"`
	Value      *string      `json:"Value,omitempty"`
}

// KeyRangeArg is the half-open, lexicographically ordered [Start, End)
// bound of a KeyRange filter.
type KeyRangeArg struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// UnmarshalJSON accepts both a bare string (interpreted as Literal, which
// atomref.RangeFilter treats identically to Key) and the tagged-object forms of
// spec.md §6.
func (f *FilterExpr) UnmarshalJSON(data []byte) error {
	var lit string
	if err := json.Unmarshal(data, &lit); err == nil {
		f.Literal = &lit
		return nil
	}

	type alias FilterExpr
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("unknown range filter variant: %w", err)
	}
	*f = FilterExpr(a)
	return nil
}

// MarshalJSON renders a Literal-only filter back to a bare string, and the
// tagged form otherwise.
func (f FilterExpr) MarshalJSON() ([]byte, error) {
	if f.Literal != nil {
		return json.Marshal(*f.Literal)
	}
	type alias FilterExpr
	return json.Marshal(alias(f))
}

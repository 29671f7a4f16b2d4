package dsl

import (
	"github.com/alecthomas/participle/v2"

	"github.com/datafold/datafold/pkg/types"
)

// wrapParseError turns a participle parse failure into a types.Error of
// kind ParseError, preserving the source position when participle
// provides one.
func wrapParseError(err error) error {
	if perr, ok := err.(participle.Error); ok {
		pos := perr.Position()
		return types.NewError(types.ErrParse, "%s (at %d:%d)", perr.Message(), pos.Line, pos.Column)
	}
	return types.WrapError(types.ErrParse, err, "failed to parse transform expression")
}

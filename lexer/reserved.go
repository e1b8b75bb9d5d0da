package lexer

import (
	"github.com/embergc/corevm/gc"
	"github.com/embergc/corevm/object"
)

// InitReservedWords interns all 22 reserved words once and tags each
// one's TString.Extra with its Kind (llex.c's luaX_init: "ts->extra =
// cast_byte(i+1)"). Identifier scanning then recognizes a reserved
// word by checking Extra instead of a map lookup per identifier.
// Call once per runtime state, before any lexer runs against it.
func InitReservedWords(c *gc.Collector, it *object.InternTable) {
	for i, w := range reservedWords {
		s := c.InternString(it, w)
		s.Extra = int32(firstReserved) + int32(i)
	}
}

// ReservedIndex reports the Kind a previously-interned reserved word
// was tagged with by InitReservedWords, or ok=false if s is an
// ordinary identifier.
func ReservedIndex(s *object.TString) (Kind, bool) {
	if s.Extra >= int32(firstReserved) && s.Extra <= int32(lastReserved) {
		return Kind(s.Extra), true
	}
	return 0, false
}

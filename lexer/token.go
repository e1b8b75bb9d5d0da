package lexer

import (
	"fmt"

	"github.com/embergc/corevm/object"
)

// Kind identifies a token's lexical class. Single-byte
// ASCII symbols use their own byte value as their Kind, exactly as
// llex.c's token2str does for "token < FIRST_RESERVED"; everything
// above 255 is a reserved word, a compound symbol, or one of the four
// semantic tokens.
type Kind int

// EOF is returned once the underlying byte stream is exhausted. It is
// negative, outside the 0..255 range Kind(b) takes for a raw byte, so
// the two can never collide.
const EOF Kind = -1

// Reserved words, in declaration order. KindAnd+i is word i's Kind,
// and also the value stashed in that word's interned TString.Extra
// (see reserved.go) so identifier scanning never needs a map lookup.
const (
	KindAnd Kind = 257 + iota
	KindBreak
	KindDo
	KindElse
	KindElseif
	KindEnd
	KindFalse
	KindFor
	KindFunction
	KindGoto
	KindIf
	KindIn
	KindLocal
	KindNil
	KindNot
	KindOr
	KindRepeat
	KindReturn
	KindThen
	KindTrue
	KindUntil
	KindWhile

	// Compound symbols.
	KindIDiv    // //
	KindConcat  // ..
	KindDots    // ...
	KindEq      // ==
	KindGE      // >=
	KindLE      // <=
	KindNE      // ~=
	KindShl     // <<
	KindShr     // >>
	KindDbColon // ::

	// Semantic tokens.
	KindInt    // i64 payload
	KindFloat  // f64 payload
	KindString // interned TString payload
	KindName   // interned TString payload
)

// firstReserved/lastReserved bound the reserved-word Kind range.
const (
	firstReserved = KindAnd
	lastReserved  = KindWhile
)

// reservedWords lists the 22 reserved words in the exact order their
// Kind constants above are declared.
var reservedWords = [...]string{
	"and", "break", "do", "else", "elseif",
	"end", "false", "for", "function", "goto", "if",
	"in", "local", "nil", "not", "or", "repeat",
	"return", "then", "true", "until", "while",
}

var kindNames = map[Kind]string{
	KindIDiv: "//", KindConcat: "..", KindDots: "...",
	KindEq: "==", KindGE: ">=", KindLE: "<=", KindNE: "~=",
	KindShl: "<<", KindShr: ">>", KindDbColon: "::",
	KindInt: "<integer>", KindFloat: "<float>",
	KindString: "<string>", KindName: "<name>",
}

func init() {
	for i, w := range reservedWords {
		kindNames[firstReserved+Kind(i)] = w
	}
}

// String renders k the way llex.c's token2str does: a quoted literal
// for symbols/reserved words, a bare angle-bracket name for the
// semantic classes.
func (k Kind) String() string {
	if k == EOF {
		return "<eof>"
	}
	if k >= 0 && k < 256 {
		return fmt.Sprintf("'%c'", byte(k))
	}
	if s, ok := kindNames[k]; ok {
		if k < KindInt {
			return fmt.Sprintf("'%s'", s)
		}
		return s
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Position is a byte offset paired with its 1-based line/column.
type Position struct {
	Offset int
	Line   int
	Column int
}

// Token is one lexical unit: a Kind plus whichever payload field that
// Kind defines.
type Token struct {
	Kind Kind
	Pos  Position

	Int   int64
	Float float64
	Str   *object.TString // KindString and KindName
}

// Text renders the token's source-visible spelling, used for error
// messages (llex.c's txtToken) and tests.
func (t Token) Text() string {
	switch t.Kind {
	case KindInt:
		return fmt.Sprintf("%d", t.Int)
	case KindFloat:
		return fmt.Sprintf("%g", t.Float)
	case KindString, KindName:
		if t.Str != nil {
			return t.Str.Content()
		}
		return ""
	default:
		return t.Kind.String()
	}
}

func (t Token) String() string {
	return fmt.Sprintf("%s@%d:%d", t.Text(), t.Pos.Line, t.Pos.Column)
}

package lexer

import (
	"testing"

	"github.com/embergc/corevm/gc"
	"github.com/embergc/corevm/mem"
	"github.com/embergc/corevm/object"
)

func newTestEnv(t *testing.T) (*gc.Collector, *object.InternTable) {
	t.Helper()
	m := mem.New(nil, nil, nil)
	c := gc.New(m, nil, 0xC0FFEE)
	it := object.NewInternTable(c.Seed())
	InitReservedWords(c, it)
	return c, it
}

func tokenize(t *testing.T, src string) []Token {
	t.Helper()
	c, it := newTestEnv(t)
	l := NewFromString(c, it, nil, "test", src, 0x10FFFF)
	var toks []Token
	for {
		tok, err := l.Next()
		if err != nil {
			t.Fatalf("tokenize(%q): %v", src, err)
		}
		toks = append(toks, tok)
		if tok.Kind == EOF {
			break
		}
	}
	return toks
}

func tokenizeErr(t *testing.T, src string) error {
	t.Helper()
	c, it := newTestEnv(t)
	l := NewFromString(c, it, nil, "test", src, 0x10FFFF)
	for {
		tok, err := l.Next()
		if err != nil {
			return err
		}
		if tok.Kind == EOF {
			return nil
		}
	}
}

// Scenario 1: [==[hello]=]world]==] -> one string literal
// token with payload "hello]=]world".
func TestLongStringBracketLevels(t *testing.T) {
	toks := tokenize(t, "[==[hello]=]world]==]")
	if len(toks) != 2 || toks[0].Kind != KindString {
		t.Fatalf("got %v", toks)
	}
	if got := toks[0].Str.Content(); got != "hello]=]world" {
		t.Errorf("content = %q, want %q", got, "hello]=]world")
	}
}

// Scenario 2: "\u{1F600}" -> four bytes F0 9F 98 80.
func TestUTF8Escape(t *testing.T) {
	toks := tokenize(t, `"\u{1F600}"`)
	if len(toks) != 2 || toks[0].Kind != KindString {
		t.Fatalf("got %v", toks)
	}
	want := []byte{0xF0, 0x9F, 0x98, 0x80}
	got := []byte(toks[0].Str.Content())
	if string(got) != string(want) {
		t.Errorf("content = %x, want %x", got, want)
	}
}

func TestUTF8EscapeRoundTrip(t *testing.T) {
	for _, cp := range []uint64{0, 0x7f, 0x80, 0x7ff, 0x800, 0xffff, 0x10000,
		0x1F600, 0x1FFFFF, 0x200000, 0x3FFFFFF, 0x4000000, 0x7FFFFFFF} {
		enc := encodeExtendedUTF8(cp)
		dec, n, ok := decodeExtendedUTF8(enc)
		if !ok {
			t.Fatalf("decode(%x) failed, encoded=% x", cp, enc)
		}
		if n != len(enc) {
			t.Errorf("decode(%x) consumed %d bytes, want %d", cp, n, len(enc))
		}
		if dec != cp {
			t.Errorf("decode(encode(%x)) = %x, want %x", cp, dec, cp)
		}
	}
}

// Scenario 3: 0xe+1 -> integer 14, '+', integer 1. The
// '+' is consumed as an exponent sign only after 'p'/'P' in hex form,
// never after the hex digit 'e'.
func TestNumeralAmbiguity(t *testing.T) {
	toks := tokenize(t, "0xe+1")
	if len(toks) != 4 {
		t.Fatalf("got %d tokens: %v", len(toks), toks)
	}
	if toks[0].Kind != KindInt || toks[0].Int != 14 {
		t.Errorf("tok[0] = %v, want integer 14", toks[0])
	}
	if toks[1].Kind != Kind('+') {
		t.Errorf("tok[1] = %v, want '+'", toks[1])
	}
	if toks[2].Kind != KindInt || toks[2].Int != 1 {
		t.Errorf("tok[2] = %v, want integer 1", toks[2])
	}
	if toks[3].Kind != EOF {
		t.Errorf("tok[3] = %v, want EOF", toks[3])
	}
}

func TestHexFloatExponent(t *testing.T) {
	toks := tokenize(t, "0x1p4")
	if len(toks) != 2 || toks[0].Kind != KindFloat {
		t.Fatalf("got %v", toks)
	}
	if toks[0].Float != 16.0 {
		t.Errorf("value = %v, want 16", toks[0].Float)
	}
}

func TestDecimalFloatExponent(t *testing.T) {
	toks := tokenize(t, "1.5e2")
	if len(toks) != 2 || toks[0].Kind != KindFloat || toks[0].Float != 150.0 {
		t.Fatalf("got %v", toks)
	}
}

func TestIntegerOverflowFallsBackToFloat(t *testing.T) {
	toks := tokenize(t, "99999999999999999999")
	if len(toks) != 2 || toks[0].Kind != KindFloat {
		t.Fatalf("got %v, want a float (overflowed i64)", toks)
	}
}

func TestReservedWordsAndIdentifiers(t *testing.T) {
	toks := tokenize(t, "while x do end notreserved")
	want := []Kind{KindWhile, KindName, KindDo, KindEnd, KindName, EOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("tok[%d].Kind = %v, want %v", i, toks[i].Kind, k)
		}
	}
	if toks[1].Str.Content() != "x" {
		t.Errorf("tok[1] content = %q, want x", toks[1].Str.Content())
	}
}

func TestCompoundSymbols(t *testing.T) {
	toks := tokenize(t, "== ~= <= >= << >> // .. ... ::")
	want := []Kind{KindEq, KindNE, KindLE, KindGE, KindShl, KindShr, KindIDiv,
		KindConcat, KindDots, KindDbColon, EOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("tok[%d].Kind = %v, want %v", i, toks[i].Kind, k)
		}
	}
}

func TestSingleByteSymbolsAndDotDisambiguation(t *testing.T) {
	toks := tokenize(t, "+ - * ( ) { } . .5")
	wantKinds := []Kind{Kind('+'), Kind('-'), Kind('*'), Kind('('), Kind(')'),
		Kind('{'), Kind('}'), Kind('.'), KindFloat, EOF}
	if len(toks) != len(wantKinds) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(wantKinds), toks)
	}
	for i, k := range wantKinds {
		if toks[i].Kind != k {
			t.Errorf("tok[%d].Kind = %v, want %v", i, toks[i].Kind, k)
		}
	}
	if toks[8].Float != 0.5 {
		t.Errorf(".5 = %v, want 0.5", toks[8].Float)
	}
}

func TestShortStringEscapes(t *testing.T) {
	toks := tokenize(t, `"a\tb\n\65\x41\z   c"`)
	if len(toks) != 2 || toks[0].Kind != KindString {
		t.Fatalf("got %v", toks)
	}
	want := "a\tb\nAAc"
	if got := toks[0].Str.Content(); got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestLineContinuationEscape(t *testing.T) {
	toks := tokenize(t, "\"a\\\nb\"")
	if len(toks) != 2 || toks[0].Kind != KindString {
		t.Fatalf("got %v", toks)
	}
	if got := toks[0].Str.Content(); got != "a\nb" {
		t.Errorf("content = %q, want %q", got, "a\nb")
	}
}

func TestLongComment(t *testing.T) {
	toks := tokenize(t, "--[[ this is\na long comment ]] x")
	if len(toks) != 2 || toks[0].Kind != KindName || toks[0].Str.Content() != "x" {
		t.Fatalf("got %v", toks)
	}
}

func TestLineComment(t *testing.T) {
	toks := tokenize(t, "x -- trailing comment\ny")
	if len(toks) != 3 {
		t.Fatalf("got %v", toks)
	}
	if toks[0].Str.Content() != "x" || toks[1].Str.Content() != "y" {
		t.Fatalf("got %v", toks)
	}
	if toks[1].Pos.Line != 2 {
		t.Errorf("line = %d, want 2", toks[1].Pos.Line)
	}
}

func TestShortStringUnterminated(t *testing.T) {
	err := tokenizeErr(t, `"never closes`)
	if err == nil {
		t.Fatal("expected unterminated string error")
	}
}

func TestShortStringNoEmbeddedNewline(t *testing.T) {
	err := tokenizeErr(t, "\"a\nb\"")
	if err == nil {
		t.Fatal("expected error for literal newline in short string")
	}
}

func TestMalformedNumber(t *testing.T) {
	err := tokenizeErr(t, "3x")
	if err == nil {
		t.Fatal("expected malformed number error")
	}
}

func TestDoubleLookaheadIsAnError(t *testing.T) {
	c, it := newTestEnv(t)
	l := NewFromString(c, it, nil, "test", "a b", 0x10FFFF)
	if _, err := l.Lookahead(); err != nil {
		t.Fatalf("first lookahead: %v", err)
	}
	if _, err := l.Lookahead(); err == nil {
		t.Fatal("expected double-lookahead error")
	}
}

func TestLookaheadThenNextDrainsPending(t *testing.T) {
	c, it := newTestEnv(t)
	l := NewFromString(c, it, nil, "test", "a b", 0x10FFFF)
	peeked, err := l.Lookahead()
	if err != nil {
		t.Fatalf("lookahead: %v", err)
	}
	consumed, err := l.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if peeked.Str.Content() != consumed.Str.Content() {
		t.Fatalf("lookahead %v != next %v", peeked, consumed)
	}
	second, err := l.Lookahead()
	if err != nil {
		t.Fatalf("second lookahead: %v", err)
	}
	if second.Str.Content() != "b" {
		t.Errorf("second lookahead = %v, want b", second)
	}
}

// Interning the same bytes twice returns the same pointer (spec
// invariant 3) and anchoring doesn't allocate a second object.
func TestIdenticalIdentifiersInternToSamePointer(t *testing.T) {
	toks := tokenize(t, "foo foo")
	if len(toks) != 3 {
		t.Fatalf("got %v", toks)
	}
	if toks[0].Str != toks[1].Str {
		t.Errorf("two identical short strings interned to different objects")
	}
}
